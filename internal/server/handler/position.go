package handler

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// PositionSource exposes the engine's in-memory open positions.
type PositionSource interface {
	Snapshot() []domain.Position
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionSource
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionSource, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type listPositionsResponse struct {
	Count     int               `json:"count"`
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the currently tracked positions ordered by symbol.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.Snapshot()
	if positions == nil {
		positions = []domain.Position{}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	writeJSON(w, http.StatusOK, listPositionsResponse{Count: len(positions), Positions: positions})
}
