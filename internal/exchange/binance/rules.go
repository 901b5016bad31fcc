package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// SymbolRules returns the trading filters for symbol. Exchange info is
// cached for an hour; a symbol missing from a cache older than a minute
// triggers one refetch so new listings resolve.
func (c *Client) SymbolRules(ctx context.Context, symbol string) (domain.SymbolRules, error) {
	if err := c.refreshRules(ctx, false); err != nil {
		return domain.SymbolRules{}, err
	}
	r, ok, age := c.cachedRules(symbol)
	if !ok && age >= missRefresh {
		if err := c.refreshRules(ctx, true); err != nil {
			return domain.SymbolRules{}, err
		}
		r, ok, _ = c.cachedRules(symbol)
	}
	if !ok {
		return domain.SymbolRules{}, fmt.Errorf("binance: rules for %s: %w", symbol, domain.ErrNotFound)
	}
	return r, nil
}

func (c *Client) cachedRules(symbol string) (domain.SymbolRules, bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rules[symbol]
	return r, ok, time.Since(c.rulesAt)
}

func (c *Client) refreshRules(ctx context.Context, force bool) error {
	c.mu.Lock()
	fresh := c.rules != nil && time.Since(c.rulesAt) < rulesTTL
	c.mu.Unlock()
	if fresh && !force {
		return nil
	}

	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return classify(ctx, "exchange info", err)
	}
	rules := make(map[string]domain.SymbolRules, len(info.Symbols))
	for _, s := range info.Symbols {
		rules[s.Symbol] = rulesFromSymbol(s)
	}

	c.mu.Lock()
	c.rules = rules
	c.symbols = info.Symbols
	c.rulesAt = time.Now()
	c.mu.Unlock()
	return nil
}

func rulesFromSymbol(s futures.Symbol) domain.SymbolRules {
	r := domain.SymbolRules{Symbol: s.Symbol}
	for _, f := range s.Filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			r.QuantityStep = filterFloat(f, "stepSize")
			r.MinQuantity = filterFloat(f, "minQty")
		case "PRICE_FILTER":
			r.PriceTick = filterFloat(f, "tickSize")
		case "PERCENT_PRICE":
			r.PercentBandUp = filterFloat(f, "multiplierUp")
			r.PercentBandDown = filterFloat(f, "multiplierDown")
		}
	}
	return r
}

func filterFloat(f map[string]interface{}, key string) float64 {
	switch v := f[key].(type) {
	case string:
		return parseFloat(v)
	case float64:
		return v
	}
	return 0
}
