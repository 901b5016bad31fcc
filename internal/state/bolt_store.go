package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/brhmrsln/x-bot/internal/domain"
)

const bucketPositions = "positions"

// BoltStore keeps one bbolt key per open position.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string, logger *slog.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("state: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketPositions))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state: create bucket: %w", err)
	}
	return &BoltStore{db: db, logger: logger.With(slog.String("component", "state_bolt"))}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load reads every position. Entries that fail to decode are dropped.
func (s *BoltStore) Load(ctx context.Context) (map[string]domain.Position, error) {
	raw := make(map[string]domain.Position)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketPositions)).ForEach(func(k, v []byte) error {
			var p domain.Position
			if err := json.Unmarshal(v, &p); err != nil {
				s.logger.WarnContext(ctx, "dropping undecodable state entry",
					slog.String("symbol", string(k)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			raw[string(k)] = p
			return nil
		})
	})
	if err != nil {
		return map[string]domain.Position{}, fmt.Errorf("state: read bolt: %w", err)
	}
	return sanitize(ctx, s.logger, raw), nil
}

// Save replaces the bucket contents in one transaction.
func (s *BoltStore) Save(ctx context.Context, positions map[string]domain.Position) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketPositions)); err != nil {
			return err
		}
		b, err := tx.CreateBucket([]byte(bucketPositions))
		if err != nil {
			return err
		}
		for sym, p := range positions {
			data, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("encode %s: %w", sym, err)
			}
			if err := b.Put([]byte(sym), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("state: save bolt: %w", err)
	}
	s.logger.DebugContext(ctx, "state saved", slog.Int("positions", len(positions)))
	return nil
}

var _ domain.StateStore = (*BoltStore)(nil)
