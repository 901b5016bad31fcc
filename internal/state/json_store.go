// Package state persists the engine's open-position map between restarts.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// JSONStore keeps positions in a single JSON document keyed by symbol.
// Saves replace the whole file atomically.
type JSONStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewJSONStore creates a store for path. The file does not have to exist.
func NewJSONStore(path string, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		path:   path,
		logger: logger.With(slog.String("component", "state_json")),
	}
}

// Path returns the backing file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads the state file. A missing file yields an empty map and no
// error. A malformed file yields an empty map and the decode error.
func (s *JSONStore) Load(ctx context.Context) (map[string]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.InfoContext(ctx, "no state file, starting empty", slog.String("path", s.path))
		return map[string]domain.Position{}, nil
	}
	if err != nil {
		return map[string]domain.Position{}, fmt.Errorf("state: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return map[string]domain.Position{}, nil
	}

	var raw map[string]domain.Position
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]domain.Position{}, fmt.Errorf("state: decode %s: %w", s.path, err)
	}
	return sanitize(ctx, s.logger, raw), nil
}

// Save writes positions to a temp file in the same directory, syncs it and
// renames it over the state file.
func (s *JSONStore) Save(ctx context.Context, positions map[string]domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if positions == nil {
		positions = map[string]domain.Position{}
	}
	data, err := json.MarshalIndent(positions, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("state: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("state: rename: %w", err)
	}

	s.logger.DebugContext(ctx, "state saved",
		slog.String("path", s.path),
		slog.Int("positions", len(positions)),
	)
	return nil
}

// sanitize drops entries that fail validation or whose key does not match
// the embedded symbol.
func sanitize(ctx context.Context, logger *slog.Logger, raw map[string]domain.Position) map[string]domain.Position {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]domain.Position, len(raw))
	for _, k := range keys {
		p := raw[k]
		if p.Symbol == "" {
			p.Symbol = k
		}
		if p.Symbol != k {
			logger.WarnContext(ctx, "dropping state entry with mismatched symbol",
				slog.String("key", k),
				slog.String("symbol", p.Symbol),
			)
			continue
		}
		if err := p.Validate(); err != nil {
			logger.WarnContext(ctx, "dropping invalid state entry",
				slog.String("symbol", k),
				slog.String("error", err.Error()),
			)
			continue
		}
		out[k] = p
	}
	return out
}

var _ domain.StateStore = (*JSONStore)(nil)
