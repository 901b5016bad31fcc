// Package ledger records closed trades.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Header is the CSV column order.
var Header = []string{
	"timestamp_utc", "symbol", "side", "quantity", "entry_price", "exit_price",
	"pnl_usdt", "pnl_percentage", "entry_reason", "exit_reason",
	"gross_pnl_usdt", "entry_commission", "exit_commission", "total_commission",
}

// ExitPriceUnavailable is written when the exit price of a trade is unknown.
const ExitPriceUnavailable = "unavailable"

// CSVLedger appends one row per closed trade. The header is written when
// the file is created or empty.
type CSVLedger struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewCSVLedger creates a ledger writing to path.
func NewCSVLedger(path string, logger *slog.Logger) *CSVLedger {
	return &CSVLedger{path: path, logger: logger.With(slog.String("component", "ledger_csv"))}
}

// Append writes rec and flushes it to disk before returning.
func (l *CSVLedger) Append(ctx context.Context, rec domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ledger: mkdir: %w", err)
		}
	}
	needHeader := false
	info, err := os.Stat(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		needHeader = true
	case err != nil:
		return fmt.Errorf("ledger: stat: %w", err)
	case info.Size() == 0:
		needHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(Header); err != nil {
			return fmt.Errorf("ledger: write header: %w", err)
		}
	}
	if err := w.Write(Row(rec)); err != nil {
		return fmt.Errorf("ledger: write row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("ledger: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("ledger: sync: %w", err)
	}

	l.logger.InfoContext(ctx, "trade recorded",
		slog.String("symbol", rec.Symbol),
		slog.String("exit_reason", string(rec.ExitReason)),
		slog.Float64("net_pnl", rec.NetPnL),
	)
	return nil
}

// Row renders rec in Header order.
func Row(rec domain.TradeRecord) []string {
	exit := ExitPriceUnavailable
	if rec.ExitPriceKnown {
		exit = num(rec.ExitPrice, 8)
	}
	ts := rec.ClosedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return []string{
		ts.UTC().Format("2006-01-02 15:04:05"),
		rec.Symbol,
		string(rec.Side),
		num(rec.Quantity, 8),
		num(rec.EntryPrice, 8),
		exit,
		num(rec.NetPnL, 4),
		num(rec.PnLPercentage, 4),
		rec.EntryReason,
		string(rec.ExitReason),
		num(rec.GrossPnL, 4),
		num(rec.EntryCommission, 6),
		num(rec.ExitCommission, 6),
		num(rec.TotalCommission, 6),
	}
}

func num(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'f', prec, 64)
	// trim trailing zeros but keep at least one digit after the point
	for len(s) > 2 && s[len(s)-1] == '0' && s[len(s)-2] != '.' {
		s = s[:len(s)-1]
	}
	return s
}

var _ domain.TradeLedger = (*CSVLedger)(nil)
