package ledger

import (
	"context"
	"log/slog"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// Fanout writes to a primary ledger whose failure is returned, then to any
// number of secondary sinks whose failures are only logged.
type Fanout struct {
	primary   domain.TradeLedger
	secondary []domain.TradeLedger
	logger    *slog.Logger
}

// NewFanout builds a Fanout. Nil secondaries are skipped.
func NewFanout(primary domain.TradeLedger, logger *slog.Logger, secondary ...domain.TradeLedger) *Fanout {
	f := &Fanout{primary: primary, logger: logger.With(slog.String("component", "ledger"))}
	for _, s := range secondary {
		if s != nil {
			f.secondary = append(f.secondary, s)
		}
	}
	return f
}

func (f *Fanout) Append(ctx context.Context, rec domain.TradeRecord) error {
	if err := f.primary.Append(ctx, rec); err != nil {
		return err
	}
	for _, s := range f.secondary {
		if err := s.Append(ctx, rec); err != nil {
			f.logger.WarnContext(ctx, "secondary ledger append failed",
				slog.String("symbol", rec.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

var _ domain.TradeLedger = (*Fanout)(nil)
