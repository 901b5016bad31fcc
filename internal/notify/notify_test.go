package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brhmrsln/x-bot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
	return c.err
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.titles)
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &captureSender{}
	n := NewNotifier([]Sender{s}, []string{EventPositionClosed}, testLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, EventPositionOpened, "opened", ""); err != nil {
		t.Fatal(err)
	}
	if err := n.Notify(ctx, EventPositionClosed, "closed", ""); err != nil {
		t.Fatal(err)
	}
	if s.count() != 1 || s.titles[0] != "closed" {
		t.Errorf("delivered %v, want only closed", s.titles)
	}
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &captureSender{err: errors.New("boom")}
	good := &captureSender{}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), EventEngineError, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "capture: boom") {
		t.Errorf("err = %v", err)
	}
	if good.count() != 1 {
		t.Error("failure of one sender blocked the other")
	}
}

func TestNotifierWithoutSendersIsDisabled(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if n.Enabled(EventPositionOpened) {
		t.Fatal("notifier without senders reports enabled")
	}
	n.NotifyAsync(context.Background(), EventPositionOpened, "t", "m")
	n.Wait()
}

func TestNotifyAsyncSurvivesCanceledContext(t *testing.T) {
	s := &captureSender{}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.NotifyAsync(ctx, EventPositionOpened, "opened", "")
	n.Wait()

	if s.count() != 1 {
		t.Errorf("delivered %d, want 1", s.count())
	}
}

func TestTelegramSender(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithBaseURL(srv.URL)
	if err := s.Send(context.Background(), "POSITION CLOSED", "Exit Reason: STOP_LOSS <x>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "42" || gotBody["parse_mode"] != "HTML" {
		t.Errorf("body = %v", gotBody)
	}
	if !strings.Contains(gotBody["text"], "<b>POSITION CLOSED</b>") || !strings.Contains(gotBody["text"], "&lt;x&gt;") {
		t.Errorf("text = %q", gotBody["text"])
	}
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewTelegramSender("T", "1").WithBaseURL(srv.URL).Send(context.Background(), "a", "b")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want status 400", err)
	}
}

func TestDiscordSenderTruncates(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), "t", strings.Repeat("x", 5000)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n := len([]rune(got["content"])); n != discordMaxContent {
		t.Errorf("content length = %d, want %d", n, discordMaxContent)
	}
}

func TestPositionMessages(t *testing.T) {
	p := domain.Position{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: 0.02, EntryPrice: 50000,
		StopOrderID: "1", StopPrice: 49500, TakeProfitOrderID: "2", TakeProfitPrice: 51000,
		CreatedAt: time.Now(),
	}
	title, msg := PositionOpened(p)
	if !strings.Contains(title, "NEW POSITION OPENED") {
		t.Errorf("title = %q", title)
	}
	for _, want := range []string{"BTCUSDT", "LONG", "Entry: 50000", "Quantity: 0.02", "49500 (-1.00%)", "51000 (+2.00%)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("opened message missing %q:\n%s", want, msg)
		}
	}

	p.TakeProfitOrderID = ""
	_, msg = PositionOpened(p)
	if !strings.Contains(msg, "Take Profit: not placed") {
		t.Errorf("missing take-profit not reported:\n%s", msg)
	}

	rec := domain.TradeRecord{
		Symbol: "BTCUSDT", Side: domain.SideLong, EntryPrice: 50000,
		ExitReason: domain.CloseReasonExternal, NetPnL: -1, TotalCommission: 1,
	}
	title, msg = PositionClosed(rec)
	if !strings.Contains(title, "POSITION CLOSED") || !strings.Contains(msg, "Exit: unavailable") {
		t.Errorf("closed = %q\n%s", title, msg)
	}
	if !strings.Contains(msg, "Net PnL: -1.0000 USDT") {
		t.Errorf("net pnl line wrong:\n%s", msg)
	}
}
