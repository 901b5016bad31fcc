package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brhmrsln/x-bot/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "xbot", User: "u", Password: "p"})
	want := "postgres://u:p@db:5432/xbot?sslmode=disable"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN not preferred: %q", got)
	}
	escaped := DSN(ClientConfig{Host: "db", Database: "xbot", User: "u", Password: "p@ss/w", SSLMode: "require"})
	if escaped != "postgres://u:p%40ss%2Fw@db:5432/xbot?sslmode=require" {
		t.Fatalf("password not escaped: %q", escaped)
	}
}

func TestPendingMigrations(t *testing.T) {
	got := pending([]string{"001_init.sql", "002_index.sql", "003_more.sql"}, []string{"002_index.sql", "001_init.sql"})
	if len(got) != 1 || got[0] != "003_more.sql" {
		t.Fatalf("pending = %v", got)
	}
	files, err := migrationFiles()
	if err != nil || len(files) == 0 || files[0] != "001_init.sql" {
		t.Fatalf("migrationFiles = %v, %v", files, err)
	}
}

func TestListQuery(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := listQuery("SELECT * FROM trades WHERE symbol = $1", "closed_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20}, "BTCUSDT")

	want := "SELECT * FROM trades WHERE symbol = $1 AND closed_at >= $2 ORDER BY closed_at DESC LIMIT $3 OFFSET $4"
	if q != want {
		t.Fatalf("query:\n got %s\nwant %s", q, want)
	}
	if len(args) != 4 || args[0] != "BTCUSDT" || args[2] != 10 || args[3] != 20 {
		t.Fatalf("args = %v", args)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"trades", "audit_log"} {
		if !strings.Contains(string(data), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("migration does not create %s", table)
		}
	}
}

// TestTradeStoreRoundTrip runs against XBOT_TEST_POSTGRES_DSN when set.
func TestTradeStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("XBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("XBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	store := NewTradeStore(c.Pool())
	closed := time.Now().UTC().Truncate(time.Second)
	rec := domain.TradeRecord{
		ID: uuid.NewString(), Symbol: "BTCUSDT", Side: domain.SideLong,
		Quantity: 0.02, EntryPrice: 50000, GrossPnL: 0, NetPnL: -1,
		EntryCommission: 1, TotalCommission: 1, ExitReason: domain.CloseReasonExternal,
		ClosedAt: closed,
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("duplicate Append should be a no-op: %v", err)
	}

	got, err := store.ListBetween(ctx, closed.Add(-time.Second), closed.Add(time.Second))
	if err != nil {
		t.Fatalf("ListBetween: %v", err)
	}
	var found int
	for _, g := range got {
		if g.ID == rec.ID {
			found++
			if g.ExitPriceKnown || g.ExitReason != domain.CloseReasonExternal || g.NetPnL != -1 {
				t.Fatalf("round trip mismatch: %+v", g)
			}
		}
	}
	if found != 1 {
		t.Fatalf("found %d copies of the record", found)
	}
}

func TestAuditStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("XBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("XBOT_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	audit := NewAuditStore(c.Pool())
	marker := uuid.NewString()
	if err := audit.Log(ctx, "position_opened", map[string]any{"symbol": "BTCUSDT", "marker": marker}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	entries, err := audit.List(ctx, domain.ListOpts{Limit: 20})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, e := range entries {
		if e.Detail["marker"] == marker {
			if e.Event != "position_opened" || e.Detail["symbol"] != "BTCUSDT" {
				t.Fatalf("unexpected entry %+v", e)
			}
			return
		}
	}
	t.Fatal("logged entry not listed")
}
