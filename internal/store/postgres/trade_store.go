package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, symbol, side, quantity, entry_price, exit_price,
	gross_pnl, net_pnl, pnl_percentage, entry_commission, exit_commission,
	total_commission, entry_reason, exit_reason, COALESCE(closing_order_id, ''),
	opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t        domain.TradeRecord
			side     string
			reason   string
			exit     *float64
			openedAt *time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &exit,
			&t.GrossPnL, &t.NetPnL, &t.PnLPercentage, &t.EntryCommission, &t.ExitCommission,
			&t.TotalCommission, &t.EntryReason, &reason, &t.ClosingOrderID,
			&openedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.CloseReason(reason)
		if exit != nil {
			t.ExitPrice = *exit
			t.ExitPriceKnown = true
		}
		if openedAt != nil {
			t.OpenedAt = *openedAt
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Append inserts one closed trade. Re-appending the same record id is a
// no-op so a retried closure never double counts.
func (s *TradeStore) Append(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, symbol, side, quantity, entry_price, exit_price,
			gross_pnl, net_pnl, pnl_percentage,
			entry_commission, exit_commission, total_commission,
			entry_reason, exit_reason, closing_order_id, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14, NULLIF($15, ''), $16, $17
		) ON CONFLICT (id) DO NOTHING`

	var exit *float64
	if rec.ExitPriceKnown {
		exit = &rec.ExitPrice
	}
	var openedAt *time.Time
	if !rec.OpenedAt.IsZero() {
		openedAt = &rec.OpenedAt
	}

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Symbol, string(rec.Side), rec.Quantity, rec.EntryPrice, exit,
		rec.GrossPnL, rec.NetPnL, rec.PnLPercentage,
		rec.EntryCommission, rec.ExitCommission, rec.TotalCommission,
		rec.EntryReason, string(rec.ExitReason), rec.ClosingOrderID, openedAt, rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns trades newest first with pagination and optional time
// filtering on closed_at.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := listQuery(`SELECT `+tradeSelectCols+` FROM trades WHERE 1=1`, "closed_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListBetween returns trades closed in [from, to) oldest first, for
// archiving.
func (s *TradeStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades
		WHERE closed_at >= $1 AND closed_at < $2 ORDER BY closed_at ASC`
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades between: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades between: %w", err)
	}
	return trades, nil
}

// listQuery appends the time window, newest-first order and pagination of
// opts to base, numbering placeholders after any already in base.
func listQuery(base, tsCol string, opts domain.ListOpts, args ...any) (string, []any) {
	query := base
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND %s >= $%d", tsCol, argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND %s <= $%d", tsCol, argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY " + tsCol + " DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
