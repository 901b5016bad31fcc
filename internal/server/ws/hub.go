// Package ws streams engine events to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// relayedChannels are the event bus channels forwarded to clients.
var relayedChannels = []string{domain.ChannelPositions}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is applied by the CORS layer in front of /ws.
	CheckOrigin: func(*http.Request) bool { return true },
}

// PositionCounter reports how many positions the engine is tracking.
type PositionCounter interface {
	OpenCount() int
}

// Config is the runtime metadata sent to clients on connect.
type Config struct {
	Mode         string
	StrategyName string
	StartedAt    time.Time
}

// Hub relays event bus messages to every connected client subscribed to the
// message's channel. A client whose buffer is full misses the message.
type Hub struct {
	bus       domain.EventBus
	positions PositionCounter
	cfg       Config
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub reading from bus. positions may be nil.
func NewHub(bus domain.EventBus, positions PositionCounter, logger *slog.Logger, cfg Config) *Hub {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		positions: positions,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ws")),
		clients:   make(map[*client]struct{}),
	}
}

// Run subscribes to the relayed channels and forwards their messages until
// ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, channel := range relayedChannels {
		if h.bus == nil {
			break
		}
		msgs, err := h.bus.Subscribe(ctx, channel)
		if err != nil {
			h.logger.ErrorContext(ctx, "subscribe failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for data := range msgs {
				h.Broadcast(channel, data)
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.close()
	}
	clear(h.clients)
	h.mu.Unlock()
	return nil
}

// Broadcast queues data for every client subscribed to channel.
func (h *Hub) Broadcast(channel string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		if !c.enqueue(data) {
			h.logger.Warn("dropping message for slow client", slog.String("channel", channel))
		}
	}
}

// HandleWS upgrades the request and serves the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, relayedChannels)
	c.enqueue(h.status())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("clients", n))

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info("client disconnected", slog.Int("clients", n))
	}
}

// status is the bot_status envelope a client receives first.
func (h *Hub) status() []byte {
	open := 0
	if h.positions != nil {
		open = h.positions.OpenCount()
	}
	data, _ := json.Marshal(map[string]any{
		"type": "bot_status",
		"payload": map[string]any{
			"mode":           h.cfg.Mode,
			"strategy_name":  h.cfg.StrategyName,
			"open_positions": open,
			"uptime_seconds": max(int64(time.Since(h.cfg.StartedAt).Seconds()), 0),
		},
	})
	return data
}
