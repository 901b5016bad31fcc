package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to the
// multipart manager.
const multipartThreshold = 8 * 1024 * 1024

// TradeRangeStore lists closed trades in a time window.
type TradeRangeStore interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error)
}

// ObjectStore is what the archiver needs from object storage.
type ObjectStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, path string) (bool, error)
}

// TradeArchiver copies each UTC day of closed trades to one JSONL object:
//
//	<prefix>/2024/05/01.jsonl
//
// Trades are never deleted from the source store.
type TradeArchiver struct {
	store  ObjectStore
	trades TradeRangeStore
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewTradeArchiver creates a TradeArchiver writing under prefix.
func NewTradeArchiver(store ObjectStore, trades TradeRangeStore, prefix string, logger *slog.Logger) *TradeArchiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeArchiver{
		store:  store,
		trades: trades,
		prefix: prefix,
		logger: logger.With(slog.String("component", "trade_archiver")),
		now:    time.Now,
	}
}

// ArchiveDay uploads the trades closed on day (UTC) and returns how many were
// written. An empty day uploads nothing. Re-running overwrites the object.
func (a *TradeArchiver) ArchiveDay(ctx context.Context, day time.Time) (int, error) {
	from := startOfDay(day)
	records, err := a.trades.ListBetween(ctx, from, from.Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: list trades: %w", from.Format(time.DateOnly), err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	data, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", from.Format(time.DateOnly), err)
	}

	key := a.dayPath(from)
	if len(data) > multipartThreshold {
		err = a.store.PutMultipart(ctx, key, bytes.NewReader(data), minPartSize)
	} else {
		err = a.store.Put(ctx, key, bytes.NewReader(data), "application/x-ndjson")
	}
	if err != nil {
		return 0, err
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("key", key),
		slog.Int("trades", len(records)),
		slog.Int("bytes", len(data)),
	)
	return len(records), nil
}

// Run archives on every tick of interval until ctx is cancelled. Each pass
// rewrites today's object and uploads yesterday's once it is missing, so a
// day closed while the process was down is still archived. Failures are
// logged and retried on the next tick.
func (a *TradeArchiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.pass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *TradeArchiver) pass(ctx context.Context) {
	today := startOfDay(a.now())
	yesterday := today.Add(-24 * time.Hour)

	done, err := a.store.Exists(ctx, a.dayPath(yesterday))
	if err != nil {
		a.logger.WarnContext(ctx, "archive check failed", slog.String("error", err.Error()))
	} else if !done {
		if _, err := a.ArchiveDay(ctx, yesterday); err != nil {
			a.logger.WarnContext(ctx, "archive failed",
				slog.String("day", yesterday.Format(time.DateOnly)),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := a.ArchiveDay(ctx, today); err != nil {
		a.logger.WarnContext(ctx, "archive failed",
			slog.String("day", today.Format(time.DateOnly)),
			slog.String("error", err.Error()),
		)
	}
}

func (a *TradeArchiver) dayPath(day time.Time) string {
	return path.Join(a.prefix, day.Format("2006/01/02")+".jsonl")
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
