package domain

import (
	"context"
	"time"
)

// LockManager grants exclusive, expiring ownership of a key. The returned
// func releases it; Acquire fails with ErrLockHeld when another owner has it.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// StreamMessage is one entry of an append-only event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus carries position events: Publish/Subscribe for live consumers,
// StreamAppend/StreamRead for replay. Subscribe channels close when ctx ends.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
