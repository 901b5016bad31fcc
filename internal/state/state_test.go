package state

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePositions() map[string]domain.Position {
	return map[string]domain.Position{
		"BTCUSDT": {
			Symbol:            "BTCUSDT",
			Side:              domain.SideLong,
			Quantity:          0.02,
			EntryPrice:        50000,
			EntryCommission:   1.0,
			StopOrderID:       "11",
			TakeProfitOrderID: "12",
			StopPrice:         49500,
			TakeProfitPrice:   51000,
			EntryReason:       "ema cross",
			CreatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		"ETHUSDT": {
			Symbol:      "ETHUSDT",
			Side:        domain.SideShort,
			Quantity:    1.5,
			EntryPrice:  3000,
			StopOrderID: "21",
			EntryReason: "rsi",
			CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
}

func TestJSONStoreMissingFile(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewJSONStore(path, testLogger())
	ctx := context.Background()

	want := samplePositions()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load returned %d positions, want %d", len(got), len(want))
	}
	for sym, p := range want {
		if got[sym] != p {
			t.Errorf("%s = %+v, want %+v", sym, got[sym], p)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d files after save, want only the state file", len(entries))
	}
}

func TestJSONStoreSaveReplaces(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "state.json"), testLogger())
	ctx := context.Background()

	if err := s.Save(ctx, samplePositions()); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, map[string]domain.Position{}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Load after empty save = %v", got)
	}
}

func TestJSONStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewJSONStore(path, testLogger()).Load(context.Background())
	if err == nil {
		t.Error("expected decode error")
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load = %v, want empty non-nil map", got)
	}
}

func TestJSONStoreDropsInvalidEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{
	  "BTCUSDT": {"symbol":"BTCUSDT","side":"LONG","quantity":0.02,"entry_price":50000,"entry_reason":"x","created_at":"2026-01-02T03:04:05Z"},
	  "ETHUSDT": {"symbol":"ETHUSDT","side":"SIDEWAYS","quantity":1,"entry_price":3000},
	  "SOLUSDT": {"symbol":"SOLUSDT","side":"SHORT","quantity":0,"entry_price":150},
	  "XRPUSDT": {"symbol":"DOGEUSDT","side":"SHORT","quantity":10,"entry_price":0.5}
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := NewJSONStore(path, testLogger()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Load kept %d entries, want 1: %v", len(got), got)
	}
	if _, ok := got["BTCUSDT"]; !ok {
		t.Error("valid BTCUSDT entry was dropped")
	}
}

func TestBoltStoreRoundTrip(t *testing.T) {
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "state.db"), testLogger())
	if err != nil {
		t.Fatalf("NewBoltStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	empty, err := s.Load(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("fresh Load = %v, %v", empty, err)
	}

	want := samplePositions()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	delete(want, "ETHUSDT")
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got["BTCUSDT"] != want["BTCUSDT"] {
		t.Errorf("Load = %+v", got)
	}
}
