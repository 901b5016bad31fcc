// Package notify delivers trade alerts to Telegram and Discord. Alerts are
// filtered by event type so operators receive only the ones they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// sendTimeout bounds a single background delivery.
const sendTimeout = 15 * time.Second

// Sender is one chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans alerts out to its senders.
type Notifier struct {
	senders []Sender
	allow   map[string]bool
	logger  *slog.Logger
	pending sync.WaitGroup
}

// NewNotifier builds a Notifier forwarding only the listed event types, or
// every type when events is empty.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		allow:   make(map[string]bool, len(events)),
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			n.allow[e] = true
		}
	}
	return n
}

// Enabled reports whether event would be delivered.
func (n *Notifier) Enabled(event string) bool {
	return len(n.senders) > 0 && (len(n.allow) == 0 || n.allow[event])
}

// Notify delivers to every sender. One sender failing does not stop the
// others; all failures are joined into the returned error.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notification failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyAsync delivers in the background so a slow chat API never stalls
// the engine. The delivery outlives cancellation of ctx but not sendTimeout.
func (n *Notifier) NotifyAsync(ctx context.Context, event, title, message string) {
	if n == nil || !n.Enabled(event) {
		return
	}
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		_ = n.Notify(sendCtx, event, title, message)
	}()
}

// Wait blocks until background deliveries have finished.
func (n *Notifier) Wait() {
	n.pending.Wait()
}
