// Package binance implements domain.ExchangeGateway for Binance USDT-M
// futures on top of github.com/adshao/go-binance/v2.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/brhmrsln/x-bot/internal/domain"
	"github.com/brhmrsln/x-bot/internal/exchange"
)

const (
	TestnetBaseURL = "https://testnet.binancefuture.com"
	LiveBaseURL    = "https://fapi.binance.com"

	rulesTTL = time.Hour
	// missRefresh is the minimum cache age before a lookup miss refetches
	// exchange info.
	missRefresh = time.Minute
	// fillLookback bounds how long before an order's last update its fills
	// are searched for.
	fillLookback = time.Hour
)

// BaseURLFor returns the futures REST root for a trading mode
// ("TESTNET" or "LIVE").
func BaseURLFor(tradingMode string) string {
	if strings.EqualFold(tradingMode, "LIVE") {
		return LiveBaseURL
	}
	return TestnetBaseURL
}

// Config holds credentials and endpoint settings.
type Config struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	RecvWindow time.Duration
	// FillConfirmDelay is how long to wait before re-reading a market order
	// whose immediate response did not report FILLED.
	FillConfirmDelay time.Duration
}

// Client is the Binance futures gateway.
type Client struct {
	api        *futures.Client
	recvWindow int64
	confirm    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	rules   map[string]domain.SymbolRules
	rulesAt time.Time
	symbols []futures.Symbol
}

// New creates a Client. No request is made until the first call.
func New(cfg Config, logger *slog.Logger) *Client {
	api := futures.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		api.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	confirm := cfg.FillConfirmDelay
	if confirm <= 0 {
		confirm = time.Second
	}
	return &Client{
		api:        api,
		recvWindow: cfg.RecvWindow.Milliseconds(),
		confirm:    confirm,
		logger:     logger.With(slog.String("component", "binance")),
	}
}

func (c *Client) opts() []futures.RequestOption {
	if c.recvWindow <= 0 {
		return nil
	}
	return []futures.RequestOption{futures.WithRecvWindow(c.recvWindow)}
}

// MarkPrice returns the current mark price for symbol.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	res, err := c.api.NewPremiumIndexService().Symbol(symbol).Do(ctx, c.opts()...)
	if err != nil {
		return 0, classify(ctx, "mark price", err)
	}
	for _, p := range res {
		if p.Symbol == symbol || len(res) == 1 {
			price := parseFloat(p.MarkPrice)
			if price <= 0 {
				return 0, fmt.Errorf("binance: mark price %s: non-positive value %q", symbol, p.MarkPrice)
			}
			return price, nil
		}
	}
	return 0, fmt.Errorf("binance: mark price %s: %w", symbol, domain.ErrNotFound)
}

// SetLeverage changes the symbol leverage. "No need to change" answers are
// success.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx, c.opts()...)
	if err != nil {
		if apiCode(err) == codeNoNeedToChangeLeverage || apiCode(err) == codeNoNeedToChangeMargin {
			return nil
		}
		return classify(ctx, "set leverage", err)
	}
	return nil
}

// OpenMarketEntry submits a market order and, when the immediate response is
// not FILLED yet, re-reads it once after a short delay.
func (c *Client) OpenMarketEntry(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (domain.OrderAck, error) {
	rules, err := c.SymbolRules(ctx, symbol)
	if err != nil {
		return domain.OrderAck{}, err
	}
	qty := exchange.FormatQuantity(quantity, rules.QuantityStep)

	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx, c.opts()...)
	if err != nil {
		return domain.OrderAck{}, classify(ctx, "market entry", err)
	}
	ack := ackFromCreate(res)
	if ack.Filled() {
		return ack, nil
	}

	select {
	case <-ctx.Done():
		return ack, nil
	case <-time.After(c.confirm):
	}
	info, err := c.QueryOrder(ctx, symbol, ack.OrderID)
	if err != nil {
		c.logger.WarnContext(ctx, "entry fill confirmation failed",
			slog.String("symbol", symbol),
			slog.String("order_id", ack.OrderID),
			slog.String("error", err.Error()),
		)
		return ack, nil
	}
	ack.Status = info.Status
	ack.RawStatus = info.RawStatus
	ack.ExecutedQty = info.ExecutedQty
	ack.AvgPrice = info.AvgPrice
	return ack, nil
}

// PlaceStopOrder places a STOP_MARKET trigger order.
func (c *Client) PlaceStopOrder(ctx context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	return c.placeTrigger(ctx, futures.OrderTypeStopMarket, order)
}

// PlaceTakeProfitOrder places a TAKE_PROFIT_MARKET trigger order.
func (c *Client) PlaceTakeProfitOrder(ctx context.Context, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	return c.placeTrigger(ctx, futures.OrderTypeTakeProfitMarket, order)
}

func (c *Client) placeTrigger(ctx context.Context, typ futures.OrderType, order domain.ProtectiveOrder) (domain.OrderAck, error) {
	rules, err := c.SymbolRules(ctx, order.Symbol)
	if err != nil {
		return domain.OrderAck{}, err
	}
	res, err := c.api.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(futures.SideType(order.Side)).
		Type(typ).
		StopPrice(exchange.FormatPrice(order.TriggerPrice, rules.PriceTick)).
		Quantity(exchange.FormatQuantity(order.Quantity, rules.QuantityStep)).
		ReduceOnly(order.ReduceOnly).
		WorkingType(futures.WorkingTypeMarkPrice).
		Do(ctx, c.opts()...)
	if err != nil {
		return domain.OrderAck{}, classify(ctx, strings.ToLower(string(typ)), err)
	}
	return ackFromCreate(res), nil
}

// ClosePositionMarket sends a reduce-only market order.
func (c *Client) ClosePositionMarket(ctx context.Context, symbol string, side domain.OrderSide, quantity float64) (domain.OrderAck, error) {
	rules, err := c.SymbolRules(ctx, symbol)
	if err != nil {
		return domain.OrderAck{}, err
	}
	res, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(exchange.FormatQuantity(quantity, rules.QuantityStep)).
		ReduceOnly(true).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx, c.opts()...)
	if err != nil {
		return domain.OrderAck{}, classify(ctx, "reduce-only close", err)
	}
	return ackFromCreate(res), nil
}

// QueryOrder reads the current state of an order.
func (c *Client) QueryOrder(ctx context.Context, symbol, orderID string) (domain.OrderInfo, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return domain.OrderInfo{}, err
	}
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx, c.opts()...)
	if err != nil {
		if apiCode(err) == codeNoSuchOrder {
			return domain.OrderInfo{OrderID: orderID, Status: domain.OrderStatusUnknown}, nil
		}
		return domain.OrderInfo{}, classify(ctx, "query order", err)
	}
	raw := string(o.Status)
	return domain.OrderInfo{
		OrderID:     orderID,
		Status:      domain.ParseOrderStatus(raw),
		RawStatus:   raw,
		AvgPrice:    parseFloat(o.AvgPrice),
		ExecutedQty: parseFloat(o.ExecutedQuantity),
	}, nil
}

// CancelOrder cancels an order. An order the exchange no longer knows is
// already gone, so that answer counts as success.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	_, err = c.api.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx, c.opts()...)
	if err != nil {
		if code := apiCode(err); code == codeUnknownOrder || code == codeNoSuchOrder {
			return nil
		}
		return classify(ctx, "cancel order", err)
	}
	return nil
}

// GetOrderFillDetail sums commission and realized PnL over all fills of an
// order. The trade listing is bounded to the hour before the order's last
// update so old or busy-symbol fills are not pushed out of the page.
func (c *Client) GetOrderFillDetail(ctx context.Context, symbol, orderID string) (domain.FillDetail, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return domain.FillDetail{}, err
	}
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx, c.opts()...)
	if err != nil {
		if apiCode(err) == codeNoSuchOrder {
			return domain.FillDetail{}, fmt.Errorf("binance: order %s %s: %w", symbol, orderID, domain.ErrNoFillDetail)
		}
		return domain.FillDetail{}, classify(ctx, "query order", err)
	}

	svc := c.api.NewListAccountTradeService().Symbol(symbol).Limit(1000)
	if start, end, ok := fillWindow(o); ok {
		svc = svc.StartTime(start).EndTime(end)
	}
	trades, err := svc.Do(ctx, c.opts()...)
	if err != nil {
		return domain.FillDetail{}, classify(ctx, "account trades", err)
	}
	var fills []*futures.AccountTrade
	for _, t := range trades {
		if t.OrderID == id {
			fills = append(fills, t)
		}
	}
	if len(fills) == 0 {
		return domain.FillDetail{}, fmt.Errorf("binance: order %s %s: %w", symbol, orderID, domain.ErrNoFillDetail)
	}
	return aggregateFills(orderID, fills), nil
}

// fillWindow returns the millisecond range holding the fills of o: from an
// hour before its last update (never before creation) to a minute after.
func fillWindow(o *futures.Order) (start, end int64, ok bool) {
	last := o.UpdateTime
	if last == 0 {
		last = o.Time
	}
	if last == 0 {
		return 0, 0, false
	}
	start = max(o.Time, last-fillLookback.Milliseconds())
	return start, last + time.Minute.Milliseconds(), true
}

// LastClosingFill returns the fills of the most recent order on side since
// the given time.
func (c *Client) LastClosingFill(ctx context.Context, symbol string, side domain.OrderSide, since time.Time) (domain.FillDetail, error) {
	svc := c.api.NewListAccountTradeService().Symbol(symbol).Limit(1000)
	if !since.IsZero() {
		svc = svc.StartTime(since.UnixMilli())
	}
	trades, err := svc.Do(ctx, c.opts()...)
	if err != nil {
		return domain.FillDetail{}, classify(ctx, "account trades", err)
	}

	var lastID int64
	var lastTime int64
	for _, t := range trades {
		if string(t.Side) != string(side) {
			continue
		}
		if t.Time >= lastTime {
			lastTime = t.Time
			lastID = t.OrderID
		}
	}
	if lastTime == 0 {
		return domain.FillDetail{}, fmt.Errorf("binance: closing fill %s: %w", symbol, domain.ErrNoFillDetail)
	}
	var fills []*futures.AccountTrade
	for _, t := range trades {
		if t.OrderID == lastID {
			fills = append(fills, t)
		}
	}
	return aggregateFills(strconv.FormatInt(lastID, 10), fills), nil
}

// ListOpenPositions returns every symbol with a non-zero position amount.
func (c *Client) ListOpenPositions(ctx context.Context) (map[string]float64, error) {
	risks, err := c.api.NewGetPositionRiskService().Do(ctx, c.opts()...)
	if err != nil {
		return nil, classify(ctx, "position risk", err)
	}
	out := make(map[string]float64)
	for _, r := range risks {
		amt := parseFloat(r.PositionAmt)
		if amt != 0 {
			out[r.Symbol] += amt
		}
	}
	return out, nil
}

// PositionAmount returns the signed net position amount for symbol.
func (c *Client) PositionAmount(ctx context.Context, symbol string) (float64, error) {
	risks, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx, c.opts()...)
	if err != nil {
		return 0, classify(ctx, "position risk", err)
	}
	var total float64
	for _, r := range risks {
		if r.Symbol == symbol {
			total += parseFloat(r.PositionAmt)
		}
	}
	return total, nil
}

// Klines returns up to limit candles, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	ks, err := c.api.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx, c.opts()...)
	if err != nil {
		return nil, classify(ctx, "klines", err)
	}
	out := make([]domain.Candle, 0, len(ks))
	for _, k := range ks {
		out = append(out, domain.Candle{
			OpenTime: time.UnixMilli(k.OpenTime).UTC(),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		})
	}
	return out, nil
}

func ackFromCreate(res *futures.CreateOrderResponse) domain.OrderAck {
	raw := string(res.Status)
	return domain.OrderAck{
		OrderID:     strconv.FormatInt(res.OrderID, 10),
		Status:      domain.ParseOrderStatus(raw),
		RawStatus:   raw,
		ExecutedQty: parseFloat(res.ExecutedQuantity),
		AvgPrice:    parseFloat(res.AvgPrice),
	}
}

func aggregateFills(orderID string, fills []*futures.AccountTrade) domain.FillDetail {
	d := domain.FillDetail{OrderID: orderID}
	var notional float64
	for _, f := range fills {
		qty := parseFloat(f.Quantity)
		d.Commission += parseFloat(f.Commission)
		d.RealizedPnL += parseFloat(f.RealizedPnl)
		d.Quantity += qty
		notional += parseFloat(f.Price) * qty
	}
	if d.Quantity > 0 {
		d.AvgPrice = notional / d.Quantity
	}
	return d
}

func parseOrderID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: invalid order id %q: %w", id, err)
	}
	return n, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

// Binance error codes the gateway reacts to.
const (
	codeDisconnected           = -1001
	codeTooManyRequests        = -1003
	codeTimeout                = -1007
	codeTimestampOutOfWindow   = -1021
	codeUnknownOrder           = -2011
	codeNoSuchOrder            = -2013
	codeNoNeedToChangeMargin   = -4046
	codeNoNeedToChangeLeverage = -4048
)

func apiCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// classify wraps err and marks it transient when the exchange could not
// give a definitive answer: network failures, unparseable error bodies,
// rate limits, timeouts and clock drift.
func classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("binance: %s: %w", op, err)
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 0, codeDisconnected, codeTooManyRequests, codeTimeout, codeTimestampOutOfWindow:
			return fmt.Errorf("binance: %s: %w: %w", op, domain.ErrTransient, err)
		}
		return fmt.Errorf("binance: %s: %w", op, err)
	}
	return fmt.Errorf("binance: %s: %w: %w", op, domain.ErrTransient, err)
}

var _ domain.ExchangeGateway = (*Client)(nil)
