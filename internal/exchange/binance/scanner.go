package binance

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// ScannerConfig controls candidate selection.
type ScannerConfig struct {
	TopN           int
	MinQuoteVolume float64
	QuoteAsset     string
	StaticSymbols  []string
}

// Scanner ranks tradable perpetual contracts by 24h quote volume.
type Scanner struct {
	client *Client
	cfg    ScannerConfig
	logger *slog.Logger
}

// NewScanner creates a Scanner backed by client.
func NewScanner(client *Client, cfg ScannerConfig, logger *slog.Logger) *Scanner {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &Scanner{client: client, cfg: cfg, logger: logger.With(slog.String("component", "scanner"))}
}

// TopSymbols returns the configured static list when set; otherwise the
// TopN TRADING perpetual contracts quoted in QuoteAsset whose 24h quote
// volume reaches MinQuoteVolume, highest volume first.
func (s *Scanner) TopSymbols(ctx context.Context) ([]string, error) {
	if len(s.cfg.StaticSymbols) > 0 {
		return append([]string(nil), s.cfg.StaticSymbols...), nil
	}
	if err := s.client.refreshRules(ctx, false); err != nil {
		return nil, err
	}

	s.client.mu.Lock()
	eligible := make(map[string]bool, len(s.client.symbols))
	for _, sym := range s.client.symbols {
		if sym.Status == "TRADING" &&
			string(sym.ContractType) == "PERPETUAL" &&
			strings.EqualFold(sym.QuoteAsset, s.cfg.QuoteAsset) {
			eligible[sym.Symbol] = true
		}
	}
	s.client.mu.Unlock()

	stats, err := s.client.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, classify(ctx, "24h tickers", err)
	}

	type ranked struct {
		symbol string
		volume float64
	}
	var candidates []ranked
	for _, st := range stats {
		if !eligible[st.Symbol] {
			continue
		}
		vol := parseFloat(st.QuoteVolume)
		if vol < s.cfg.MinQuoteVolume {
			continue
		}
		candidates = append(candidates, ranked{st.Symbol, vol})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].volume > candidates[j].volume
	})
	if s.cfg.TopN > 0 && len(candidates) > s.cfg.TopN {
		candidates = candidates[:s.cfg.TopN]
	}

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.symbol
	}
	s.logger.DebugContext(ctx, "scan candidates ranked",
		slog.Int("eligible", len(eligible)),
		slog.Int("selected", len(out)),
	)
	return out, nil
}
