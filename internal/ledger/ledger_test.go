package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stopLossRecord() domain.TradeRecord {
	return domain.TradeRecord{
		Symbol:          "BTCUSDT",
		Side:            domain.SideLong,
		Quantity:        0.02,
		EntryPrice:      50000,
		ExitPrice:       49500,
		ExitPriceKnown:  true,
		GrossPnL:        -10,
		NetPnL:          -11.99,
		PnLPercentage:   -1.199,
		EntryCommission: 1,
		ExitCommission:  0.99,
		TotalCommission: 1.99,
		EntryReason:     "ema cross",
		ExitReason:      domain.CloseReasonStopLoss,
		ClosedAt:        time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestCSVLedgerAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades", "history.csv")
	l := NewCSVLedger(path, testLogger())
	ctx := context.Background()

	if err := l.Append(ctx, stopLossRecord()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	ext := stopLossRecord()
	ext.ExitPriceKnown = false
	ext.ExitPrice = 0
	ext.ExitReason = domain.CloseReasonExternal
	if err := l.Append(ctx, ext); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(Header, ",") {
		t.Errorf("header = %v", rows[0])
	}

	first := rows[1]
	want := map[int]string{
		0: "2026-03-04 05:06:07", 1: "BTCUSDT", 2: "LONG", 3: "0.02",
		4: "50000.0", 5: "49500.0", 6: "-11.99", 9: "STOP_LOSS",
		10: "-10.0", 11: "1.0", 12: "0.99", 13: "1.99",
	}
	for i, v := range want {
		if first[i] != v {
			t.Errorf("column %s = %q, want %q", Header[i], first[i], v)
		}
	}
	if rows[2][5] != ExitPriceUnavailable {
		t.Errorf("unknown exit price written as %q", rows[2][5])
	}
}

type failingLedger struct{ calls int }

func (f *failingLedger) Append(context.Context, domain.TradeRecord) error {
	f.calls++
	return errors.New("disk full")
}

type recordingLedger struct{ recs []domain.TradeRecord }

func (r *recordingLedger) Append(_ context.Context, rec domain.TradeRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

func TestFanoutPrimaryFailureStops(t *testing.T) {
	primary := &failingLedger{}
	secondary := &recordingLedger{}
	f := NewFanout(primary, testLogger(), secondary)

	if err := f.Append(context.Background(), stopLossRecord()); err == nil {
		t.Fatal("expected primary error")
	}
	if len(secondary.recs) != 0 {
		t.Error("secondary written after primary failure")
	}
}

func TestFanoutSecondaryFailureIgnored(t *testing.T) {
	primary := &recordingLedger{}
	secondary := &failingLedger{}
	f := NewFanout(primary, testLogger(), nil, secondary)

	if err := f.Append(context.Background(), stopLossRecord()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(primary.recs) != 1 || secondary.calls != 1 {
		t.Errorf("primary=%d secondary=%d", len(primary.recs), secondary.calls)
	}
}
