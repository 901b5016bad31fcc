package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brhmrsln/x-bot/internal/domain"
)

var errTransient = fmt.Errorf("connection reset: %w", domain.ErrTransient)

// fakeGateway is an in-memory exchange. Orders are keyed by id; tests set
// their status directly.
type fakeGateway struct {
	mu sync.Mutex

	mark      map[string]float64
	rules     map[string]domain.SymbolRules
	amounts   map[string]float64
	orders    map[string]domain.OrderInfo
	fills     map[string]domain.FillDetail
	lastFill  map[string]domain.FillDetail
	candles   []domain.Candle
	entryAck  *domain.OrderAck
	nextID    int
	listErr   error
	queryErr  error
	orderErrs map[string]error
	stopErr   error
	amountErr error

	leverage  map[string]int
	entries   []domain.OrderAck
	stops     []domain.ProtectiveOrder
	tps       []domain.ProtectiveOrder
	closes    []float64
	cancelled []string
	klineReqs []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		mark: map[string]float64{"BTCUSDT": 50000},
		rules: map[string]domain.SymbolRules{"BTCUSDT": {
			Symbol:          "BTCUSDT",
			QuantityStep:    0.001,
			MinQuantity:     0.001,
			PriceTick:       0.1,
			PercentBandUp:   1.05,
			PercentBandDown: 0.95,
		}},
		amounts:   map[string]float64{},
		orders:    map[string]domain.OrderInfo{},
		fills:     map[string]domain.FillDetail{},
		lastFill:  map[string]domain.FillDetail{},
		leverage:  map[string]int{},
		orderErrs: map[string]error{},
	}
}

func (g *fakeGateway) id() string {
	g.nextID++
	return fmt.Sprintf("%d", 1000+g.nextID)
}

func (g *fakeGateway) setOrder(id string, status domain.OrderStatus, avg float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[id] = domain.OrderInfo{OrderID: id, Status: status, RawStatus: string(status), AvgPrice: avg}
}

func (g *fakeGateway) MarkPrice(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.mark[symbol]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return m, nil
}

func (g *fakeGateway) SymbolRules(_ context.Context, symbol string) (domain.SymbolRules, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rules[symbol]
	if !ok {
		return domain.SymbolRules{}, domain.ErrNotFound
	}
	return r, nil
}

func (g *fakeGateway) SetLeverage(_ context.Context, symbol string, leverage int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leverage[symbol] = leverage
	return nil
}

func (g *fakeGateway) OpenMarketEntry(_ context.Context, symbol string, side domain.OrderSide, quantity float64) (domain.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ack := domain.OrderAck{
		OrderID:     g.id(),
		Status:      domain.OrderStatusFilled,
		RawStatus:   "FILLED",
		ExecutedQty: quantity,
		AvgPrice:    g.mark[symbol],
	}
	if g.entryAck != nil {
		ack = *g.entryAck
	}
	if ack.Filled() {
		amt := ack.ExecutedQty
		if side == domain.OrderSideSell {
			amt = -amt
		}
		g.amounts[symbol] = amt
	}
	g.entries = append(g.entries, ack)
	return ack, nil
}

func (g *fakeGateway) PlaceStopOrder(_ context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopErr != nil {
		return domain.OrderAck{}, g.stopErr
	}
	g.stops = append(g.stops, order)
	id := g.id()
	g.orders[id] = domain.OrderInfo{OrderID: id, Status: domain.OrderStatusActive, RawStatus: "NEW"}
	return domain.OrderAck{OrderID: id, Status: domain.OrderStatusActive, RawStatus: "NEW"}, nil
}

func (g *fakeGateway) PlaceTakeProfitOrder(_ context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tps = append(g.tps, order)
	id := g.id()
	g.orders[id] = domain.OrderInfo{OrderID: id, Status: domain.OrderStatusActive, RawStatus: "NEW"}
	return domain.OrderAck{OrderID: id, Status: domain.OrderStatusActive, RawStatus: "NEW"}, nil
}

func (g *fakeGateway) ClosePositionMarket(_ context.Context, symbol string, _ domain.OrderSide, quantity float64) (domain.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes = append(g.closes, quantity)
	delete(g.amounts, symbol)
	return domain.OrderAck{OrderID: g.id(), Status: domain.OrderStatusFilled, RawStatus: "FILLED", ExecutedQty: quantity}, nil
}

func (g *fakeGateway) QueryOrder(_ context.Context, _ string, orderID string) (domain.OrderInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.queryErr != nil {
		return domain.OrderInfo{}, g.queryErr
	}
	if err := g.orderErrs[orderID]; err != nil {
		return domain.OrderInfo{}, err
	}
	info, ok := g.orders[orderID]
	if !ok {
		return domain.OrderInfo{OrderID: orderID, Status: domain.OrderStatusUnknown, RawStatus: "UNKNOWN"}, nil
	}
	return info, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, _ string, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, orderID)
	if info, ok := g.orders[orderID]; ok {
		info.Status = domain.OrderStatusInactive
		info.RawStatus = "CANCELED"
		g.orders[orderID] = info
	}
	return nil
}

func (g *fakeGateway) GetOrderFillDetail(_ context.Context, _ string, orderID string) (domain.FillDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.fills[orderID]
	if !ok {
		return domain.FillDetail{}, domain.ErrNoFillDetail
	}
	return f, nil
}

func (g *fakeGateway) LastClosingFill(_ context.Context, symbol string, _ domain.OrderSide, _ time.Time) (domain.FillDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.lastFill[symbol]
	if !ok {
		return domain.FillDetail{}, domain.ErrNoFillDetail
	}
	return f, nil
}

func (g *fakeGateway) ListOpenPositions(context.Context) (map[string]float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make(map[string]float64, len(g.amounts))
	for k, v := range g.amounts {
		if v != 0 {
			out[k] = v
		}
	}
	return out, nil
}

func (g *fakeGateway) PositionAmount(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.amountErr != nil {
		return 0, g.amountErr
	}
	return g.amounts[symbol], nil
}

func (g *fakeGateway) Klines(_ context.Context, symbol, interval string, _ int) ([]domain.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.klineReqs = append(g.klineReqs, symbol+"@"+interval)
	return g.candles, nil
}

type memState struct {
	mu      sync.Mutex
	saved   map[string]domain.Position
	saves   int
	saveErr error
}

func (s *memState) Load(context.Context) (map[string]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ClonePositions(s.saved), nil
}

func (s *memState) Save(_ context.Context, positions map[string]domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = domain.ClonePositions(positions)
	return nil
}

type memLedger struct {
	mu      sync.Mutex
	records []domain.TradeRecord
	err     error
}

func (l *memLedger) Append(_ context.Context, rec domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.records = append(l.records, rec)
	return nil
}

type stubSignals struct {
	mu      sync.Mutex
	signals map[string]domain.Signal
	calls   []string
	htf     bool
	panics  bool
}

func (s *stubSignals) Name() string { return "stub" }

func (s *stubSignals) GenerateSignal(_ context.Context, symbol string, _ domain.MarketData) (domain.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("indicator blew up")
	}
	s.calls = append(s.calls, symbol)
	if sig, ok := s.signals[symbol]; ok {
		return sig, nil
	}
	return domain.Signal{Action: domain.ActionHold}, nil
}

func (s *stubSignals) NeedsHigherTimeframe() bool { return s.htf }
func (s *stubSignals) MinCandles() int            { return 10 }

type stubScanner struct {
	symbols []string
	err     error
}

func (s stubScanner) TopSymbols(context.Context) ([]string, error) {
	return s.symbols, s.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	titles []string
}

func (n *recordingNotifier) NotifyAsync(_ context.Context, event, title, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.titles = append(n.titles, title)
}

type harness struct {
	eng      *Engine
	gw       *fakeGateway
	state    *memState
	ledger   *memLedger
	signals  *stubSignals
	notifier *recordingNotifier
	metrics  *Metrics
	sleeps   []time.Duration
}

func newHarness(cfg Config, symbols ...string) *harness {
	h := &harness{
		gw:       newFakeGateway(),
		state:    &memState{},
		ledger:   &memLedger{},
		signals:  &stubSignals{signals: map[string]domain.Signal{}},
		notifier: &recordingNotifier{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}
	eng, err := New(cfg, Deps{
		Gateway:  h.gw,
		State:    h.state,
		Ledger:   h.ledger,
		Signals:  h.signals,
		Scanner:  stubScanner{symbols: symbols},
		Notifier: h.notifier,
		Metrics:  h.metrics,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		panic(err)
	}
	eng.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	h.eng = eng
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PositionSizeUSDT = 1000
	return cfg
}

// seed tracks the standard BTCUSDT long from the worked examples with live
// stop and take-profit orders.
func (h *harness) seed() domain.Position {
	p := domain.Position{
		Symbol:            "BTCUSDT",
		Side:              domain.SideLong,
		Quantity:          0.02,
		EntryPrice:        50000,
		EntryCommission:   1.0,
		StopOrderID:       "stop-1",
		TakeProfitOrderID: "tp-1",
		StopPrice:         49500,
		TakeProfitPrice:   51000,
		EntryReason:       "stub",
		CreatedAt:         time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	h.gw.setOrder("stop-1", domain.OrderStatusActive, 0)
	h.gw.setOrder("tp-1", domain.OrderStatusActive, 0)
	h.gw.amounts["BTCUSDT"] = 0.02
	h.eng.track(context.Background(), p)
	return p
}

var errLedgerDown = errors.New("disk full")
