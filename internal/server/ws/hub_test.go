package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brhmrsln/x-bot/internal/cache/memory"
	"github.com/brhmrsln/x-bot/internal/domain"
)

type fixedCount int

func (f fixedCount) OpenCount() int { return int(f) }

func TestHubRelaysPositionEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewEventBus(10)
	hub := NewHub(bus, fixedCount(2), slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "TRADE", StrategyName: "simple_ema_crossover"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if typ != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", typ)
	}
	var status struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Type != "bot_status" || status.Payload["mode"] != "trade" || status.Payload["open_positions"] != float64(2) {
		t.Fatalf("unexpected status %+v", status)
	}

	event, _ := json.Marshal(domain.PositionEvent{Type: domain.EventPositionOpened, Symbol: "BTCUSDT"})
	// The hub subscribes asynchronously; publish until the event arrives.
	got := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			got <- msg
		}
	}()
	deadline := time.After(5 * time.Second)
	for {
		_ = bus.Publish(ctx, domain.ChannelPositions, event)
		select {
		case msg := <-got:
			if string(msg) != string(event) {
				t.Fatalf("got %s, want %s", msg, event)
			}
			return
		case <-deadline:
			t.Fatal("position event not relayed")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestClientChannelMatching(t *testing.T) {
	c := &client{subs: map[string]bool{"positions": true, "trades:*": true}}
	cases := map[string]bool{
		"positions":      true,
		"trades:BTCUSDT": true,
		"orders":         false,
	}
	for channel, want := range cases {
		if got := c.wants(channel); got != want {
			t.Errorf("wants(%q) = %v, want %v", channel, got, want)
		}
	}

	c.apply(control{Action: "unsubscribe", Channels: []string{"positions"}})
	if c.wants("positions") {
		t.Fatal("positions still subscribed after unsubscribe")
	}
}
