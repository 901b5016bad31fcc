package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// StateStore persists the open-position map. Load never fails hard on a
// missing or corrupt file: it returns an empty map and reports the problem
// through its error so the caller can log it and start anyway.
type StateStore interface {
	Load(ctx context.Context) (map[string]Position, error)
	Save(ctx context.Context, positions map[string]Position) error
}

// TradeLedger is the append-only sink for closed trades.
type TradeLedger interface {
	Append(ctx context.Context, rec TradeRecord) error
}

// TradeStore persists and queries closed trades.
type TradeStore interface {
	TradeLedger
	ListRecent(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore records engine lifecycle events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
