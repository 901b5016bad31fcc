package binance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/brhmrsln/x-bot/internal/domain"
)

const exchangeInfoJSON = `{"symbols":[
 {"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT","filters":[
  {"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"556.80","maxPrice":"4529764"},
  {"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"},
  {"filterType":"PERCENT_PRICE","multiplierUp":"1.0500","multiplierDown":"0.9500","multiplierDecimal":"4"}]},
 {"symbol":"ETHUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT","filters":[
  {"filterType":"PRICE_FILTER","tickSize":"0.01"},
  {"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001"}]},
 {"symbol":"SOLUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT","filters":[]},
 {"symbol":"BTCUSDT_260327","status":"TRADING","contractType":"CURRENT_QUARTER","quoteAsset":"USDT","filters":[]},
 {"symbol":"XRPUSDT","status":"SETTLING","contractType":"PERPETUAL","quoteAsset":"USDT","filters":[]},
 {"symbol":"ETHBTC","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"BTC","filters":[]}
]}`

type route struct {
	method string
	suffix string
	status int
	body   string
}

type fakeBinance struct {
	mu       sync.Mutex
	routes   []route
	info     string
	requests []*http.Request
	forms    []map[string]string
}

// setInfo replaces the exchangeInfo payload.
func (f *fakeBinance) setInfo(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = body
}

func (f *fakeBinance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := make(map[string]string)
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.forms = append(f.forms, form)
	f.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/exchangeInfo") {
		f.mu.Lock()
		body := f.info
		f.mu.Unlock()
		if body == "" {
			body = exchangeInfoJSON
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
		return
	}
	for _, rt := range f.routes {
		if rt.method != "" && rt.method != r.Method {
			continue
		}
		if strings.HasSuffix(r.URL.Path, rt.suffix) {
			w.Header().Set("Content-Type", "application/json")
			status := rt.status
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			io.WriteString(w, rt.body)
			return
		}
	}
	http.NotFound(w, r)
}

// lastForm returns the parameters of the most recent request whose path
// ends in suffix.
func (f *fakeBinance) lastForm(method, suffix string) map[string]string {
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method && strings.HasSuffix(f.requests[i].URL.Path, suffix) {
			return f.forms[i]
		}
	}
	return nil
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newTestClient(t *testing.T, routes ...route) (*Client, *fakeBinance) {
	t.Helper()
	fake := &fakeBinance{routes: routes}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := New(Config{APIKey: "k", APISecret: "s", BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return c, fake
}

func TestBaseURLFor(t *testing.T) {
	if got := BaseURLFor("LIVE"); got != LiveBaseURL {
		t.Errorf("BaseURLFor(LIVE) = %q", got)
	}
	if got := BaseURLFor("TESTNET"); got != TestnetBaseURL {
		t.Errorf("BaseURLFor(TESTNET) = %q", got)
	}
	if got := BaseURLFor(""); got != TestnetBaseURL {
		t.Errorf("BaseURLFor(\"\") = %q, want testnet", got)
	}
}

func TestMarkPrice(t *testing.T) {
	c, _ := newTestClient(t, route{suffix: "/premiumIndex",
		body: `[{"symbol":"BTCUSDT","markPrice":"50000.10","indexPrice":"50001","lastFundingRate":"0.0001","nextFundingTime":0,"time":0}]`})

	got, err := c.MarkPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("MarkPrice: %v", err)
	}
	if got != 50000.10 {
		t.Errorf("MarkPrice = %v, want 50000.10", got)
	}
}

func TestSymbolRules(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	r, err := c.SymbolRules(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("SymbolRules: %v", err)
	}
	if r.QuantityStep != 0.001 || r.MinQuantity != 0.001 || r.PriceTick != 0.1 {
		t.Errorf("rules = %+v", r)
	}
	if r.PercentBandUp != 1.05 || r.PercentBandDown != 0.95 {
		t.Errorf("band = %v/%v, want 1.05/0.95", r.PercentBandUp, r.PercentBandDown)
	}

	if _, err := c.SymbolRules(ctx, "ETHUSDT"); err != nil {
		t.Fatalf("SymbolRules(ETHUSDT): %v", err)
	}
	if n := len(fake.requests); n != 1 {
		t.Errorf("exchange info fetched %d times, want 1 (cached)", n)
	}

	if _, err := c.SymbolRules(ctx, "DOGEUSDT"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown symbol err = %v, want ErrNotFound", err)
	}
}

func TestSymbolRulesRefetchesOnMiss(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	if _, err := c.SymbolRules(ctx, "BTCUSDT"); err != nil {
		t.Fatalf("SymbolRules: %v", err)
	}
	fake.setInfo(`{"symbols":[
	 {"symbol":"NEWUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT","filters":[
	  {"filterType":"PRICE_FILTER","tickSize":"0.0001"},
	  {"filterType":"LOT_SIZE","stepSize":"1","minQty":"1"}]}]}`)
	c.mu.Lock()
	c.rulesAt = time.Now().Add(-2 * missRefresh)
	c.mu.Unlock()

	r, err := c.SymbolRules(ctx, "NEWUSDT")
	if err != nil {
		t.Fatalf("SymbolRules(NEWUSDT): %v", err)
	}
	if r.PriceTick != 0.0001 || r.QuantityStep != 1 {
		t.Errorf("rules = %+v", r)
	}
	if n := len(fake.requests); n != 2 {
		t.Errorf("exchange info fetched %d times, want 2", n)
	}

	if _, err := c.SymbolRules(ctx, "GONEUSDT"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown symbol err = %v, want ErrNotFound", err)
	}
	if n := len(fake.requests); n != 2 {
		t.Errorf("fresh cache refetched on miss: %d requests", n)
	}
}

func TestOpenMarketEntryFilled(t *testing.T) {
	c, fake := newTestClient(t, route{method: http.MethodPost, suffix: "/order",
		body: `{"orderId":1001,"symbol":"BTCUSDT","status":"FILLED","executedQty":"0.021","avgPrice":"50000.0","side":"BUY","type":"MARKET"}`})

	ack, err := c.OpenMarketEntry(context.Background(), "BTCUSDT", domain.OrderSideBuy, 0.0219)
	if err != nil {
		t.Fatalf("OpenMarketEntry: %v", err)
	}
	if !ack.Filled() || ack.OrderID != "1001" || ack.ExecutedQty != 0.021 || ack.AvgPrice != 50000 {
		t.Errorf("ack = %+v", ack)
	}

	form := fake.lastForm(http.MethodPost, "/order")
	if form["quantity"] != "0.021" {
		t.Errorf("quantity = %q, want floored 0.021", form["quantity"])
	}
	if form["side"] != "BUY" || form["type"] != "MARKET" {
		t.Errorf("side/type = %q/%q", form["side"], form["type"])
	}
	if _, ok := form["reduceOnly"]; ok && form["reduceOnly"] == "true" {
		t.Error("entry must not be reduce-only")
	}
}

func TestPlaceStopOrderParams(t *testing.T) {
	c, fake := newTestClient(t, route{method: http.MethodPost, suffix: "/order",
		body: `{"orderId":2002,"symbol":"BTCUSDT","status":"NEW","executedQty":"0","avgPrice":"0"}`})

	ack, err := c.PlaceStopOrder(context.Background(), domain.ProtectiveOrder{
		Symbol:       "BTCUSDT",
		Side:         domain.OrderSideSell,
		Quantity:     0.02,
		TriggerPrice: 49500.06,
		ReduceOnly:   true,
	})
	if err != nil {
		t.Fatalf("PlaceStopOrder: %v", err)
	}
	if ack.OrderID != "2002" || ack.Status != domain.OrderStatusActive {
		t.Errorf("ack = %+v", ack)
	}

	form := fake.lastForm(http.MethodPost, "/order")
	if form["type"] != "STOP_MARKET" {
		t.Errorf("type = %q, want STOP_MARKET", form["type"])
	}
	if form["stopPrice"] != "49500.1" {
		t.Errorf("stopPrice = %q, want 49500.1", form["stopPrice"])
	}
	if form["reduceOnly"] != "true" {
		t.Errorf("reduceOnly = %q, want true", form["reduceOnly"])
	}
	if form["workingType"] != "MARK_PRICE" {
		t.Errorf("workingType = %q, want MARK_PRICE", form["workingType"])
	}
}

func TestQueryOrderStatus(t *testing.T) {
	c, _ := newTestClient(t, route{method: http.MethodGet, suffix: "/order",
		body: `{"orderId":3003,"symbol":"BTCUSDT","status":"EXPIRED","avgPrice":"0","executedQty":"0"}`})

	info, err := c.QueryOrder(context.Background(), "BTCUSDT", "3003")
	if err != nil {
		t.Fatalf("QueryOrder: %v", err)
	}
	if info.Status != domain.OrderStatusInactive || info.RawStatus != "EXPIRED" {
		t.Errorf("info = %+v", info)
	}

	if _, err := c.QueryOrder(context.Background(), "BTCUSDT", "not-a-number"); err == nil {
		t.Error("expected error for malformed order id")
	}
}

func TestCancelUnknownOrderIsSuccess(t *testing.T) {
	c, _ := newTestClient(t, route{method: http.MethodDelete, suffix: "/order",
		status: http.StatusBadRequest, body: `{"code":-2011,"msg":"Unknown order sent."}`})

	if err := c.CancelOrder(context.Background(), "BTCUSDT", "42"); err != nil {
		t.Errorf("CancelOrder: %v, want nil", err)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests"}`, true},
		{"timeout", http.StatusServiceUnavailable, `{"code":-1007,"msg":"Timeout waiting for response"}`, true},
		{"clock drift", http.StatusBadRequest, `{"code":-1021,"msg":"Timestamp outside recvWindow"}`, true},
		{"gateway html", http.StatusBadGateway, `<html>bad gateway</html>`, true},
		{"margin insufficient", http.StatusBadRequest, `{"code":-2019,"msg":"Margin is insufficient."}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, route{suffix: "/premiumIndex", status: tt.status, body: tt.body})
			_, err := c.MarkPrice(context.Background(), "BTCUSDT")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, domain.ErrTransient); got != tt.transient {
				t.Errorf("transient = %v, want %v (err %v)", got, tt.transient, err)
			}
		})
	}
}

func TestGetOrderFillDetail(t *testing.T) {
	c, fake := newTestClient(t,
		route{method: http.MethodGet, suffix: "/order",
			body: `{"orderId":77,"symbol":"BTCUSDT","status":"FILLED","time":900,"updateTime":1000}`},
		route{suffix: "/userTrades", body: `[
	 {"orderId":77,"symbol":"BTCUSDT","side":"SELL","price":"49500","qty":"0.01","commission":"0.495","realizedPnl":"-5","time":1000},
	 {"orderId":77,"symbol":"BTCUSDT","side":"SELL","price":"49500","qty":"0.01","commission":"0.495","realizedPnl":"-5","time":1001},
	 {"orderId":12,"symbol":"BTCUSDT","side":"BUY","price":"50000","qty":"0.02","commission":"1.0","realizedPnl":"0","time":900}]`})
	ctx := context.Background()

	d, err := c.GetOrderFillDetail(ctx, "BTCUSDT", "77")
	if err != nil {
		t.Fatalf("GetOrderFillDetail: %v", err)
	}
	if !approx(d.Commission, 0.99) {
		t.Errorf("commission = %v, want 0.99", d.Commission)
	}
	if !approx(d.Quantity, 0.02) || !approx(d.AvgPrice, 49500) {
		t.Errorf("detail = %+v", d)
	}
	form := fake.lastForm(http.MethodGet, "/userTrades")
	if form["startTime"] != "900" || form["endTime"] != "61000" {
		t.Errorf("trade window = [%s, %s], want [900, 61000]", form["startTime"], form["endTime"])
	}

	if _, err := c.GetOrderFillDetail(ctx, "BTCUSDT", "999"); !errors.Is(err, domain.ErrNoFillDetail) {
		t.Errorf("missing order err = %v, want ErrNoFillDetail", err)
	}
}

func TestGetOrderFillDetailUnknownOrder(t *testing.T) {
	c, _ := newTestClient(t, route{method: http.MethodGet, suffix: "/order",
		status: http.StatusBadRequest, body: `{"code":-2013,"msg":"Order does not exist."}`})

	if _, err := c.GetOrderFillDetail(context.Background(), "BTCUSDT", "5"); !errors.Is(err, domain.ErrNoFillDetail) {
		t.Errorf("err = %v, want ErrNoFillDetail", err)
	}
}

func TestFillWindow(t *testing.T) {
	hour := time.Hour.Milliseconds()
	tests := []struct {
		name       string
		order      futures.Order
		start, end int64
		ok         bool
	}{
		{"recent fill", futures.Order{Time: 900, UpdateTime: 1000}, 900, 61000, true},
		{"old stop filled later", futures.Order{Time: 1000, UpdateTime: 10 * hour}, 9 * hour, 10*hour + 60000, true},
		{"no update time", futures.Order{Time: 5000}, 5000, 65000, true},
		{"no times", futures.Order{}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := fillWindow(&tt.order)
			if start != tt.start || end != tt.end || ok != tt.ok {
				t.Errorf("got [%d, %d] %v, want [%d, %d] %v", start, end, ok, tt.start, tt.end, tt.ok)
			}
		})
	}
}

func TestLastClosingFill(t *testing.T) {
	c, _ := newTestClient(t, route{suffix: "/userTrades", body: `[
	 {"orderId":12,"symbol":"BTCUSDT","side":"BUY","price":"50000","qty":"0.02","commission":"1.0","time":900},
	 {"orderId":40,"symbol":"BTCUSDT","side":"SELL","price":"49000","qty":"0.005","commission":"0.1","time":950},
	 {"orderId":41,"symbol":"BTCUSDT","side":"SELL","price":"49800","qty":"0.02","commission":"0.4","time":1200}]`})

	d, err := c.LastClosingFill(context.Background(), "BTCUSDT", domain.OrderSideSell, time.UnixMilli(800))
	if err != nil {
		t.Fatalf("LastClosingFill: %v", err)
	}
	if d.OrderID != "41" || !approx(d.AvgPrice, 49800) {
		t.Errorf("detail = %+v, want order 41 at 49800", d)
	}
}

func TestListOpenPositionsSkipsFlat(t *testing.T) {
	c, _ := newTestClient(t, route{suffix: "/positionRisk", body: `[
	 {"symbol":"BTCUSDT","positionAmt":"0.020","positionSide":"BOTH"},
	 {"symbol":"ETHUSDT","positionAmt":"0.000","positionSide":"BOTH"},
	 {"symbol":"SOLUSDT","positionAmt":"-3","positionSide":"BOTH"}]`})

	got, err := c.ListOpenPositions(context.Background())
	if err != nil {
		t.Fatalf("ListOpenPositions: %v", err)
	}
	if len(got) != 2 || got["BTCUSDT"] != 0.02 || got["SOLUSDT"] != -3 {
		t.Errorf("positions = %v", got)
	}
}

func TestScannerRanksByQuoteVolume(t *testing.T) {
	c, _ := newTestClient(t, route{suffix: "/ticker/24hr", body: `[
	 {"symbol":"ETHUSDT","quoteVolume":"900000000"},
	 {"symbol":"BTCUSDT","quoteVolume":"2000000000"},
	 {"symbol":"SOLUSDT","quoteVolume":"1000"},
	 {"symbol":"BTCUSDT_260327","quoteVolume":"5000000000"},
	 {"symbol":"XRPUSDT","quoteVolume":"5000000000"},
	 {"symbol":"ETHBTC","quoteVolume":"5000000000"}]`})

	s := NewScanner(c, ScannerConfig{TopN: 5, MinQuoteVolume: 1_000_000}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got, err := s.TopSymbols(context.Background())
	if err != nil {
		t.Fatalf("TopSymbols: %v", err)
	}
	want := []string{"BTCUSDT", "ETHUSDT"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("TopSymbols = %v, want %v", got, want)
	}
}

func TestScannerStaticSymbols(t *testing.T) {
	s := NewScanner(nil, ScannerConfig{StaticSymbols: []string{"BTCUSDT", "ETHUSDT"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got, err := s.TopSymbols(context.Background())
	if err != nil {
		t.Fatalf("TopSymbols: %v", err)
	}
	if len(got) != 2 || got[0] != "BTCUSDT" {
		t.Errorf("TopSymbols = %v", got)
	}
}
