package handler

import (
	"log/slog"
	"net/http"

	"github.com/brhmrsln/x-bot/internal/domain"
)

// TradeHandler serves closed-trade history and the audit trail from
// PostgreSQL. Either store may be nil when no database is configured, in
// which case its endpoint answers 503.
type TradeHandler struct {
	trades domain.TradeStore
	audit  domain.AuditStore
	logger *slog.Logger
}

func NewTradeHandler(trades domain.TradeStore, audit domain.AuditStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, audit: audit, logger: logger}
}

type page[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListTrades returns closed trades newest first.
// GET /api/trades?limit=50&offset=0&since=2024-01-01T00:00:00Z
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history is not enabled")
		return
	}
	opts, err := listOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trades, err := h.trades.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, page[domain.TradeRecord]{Items: orEmpty(trades), Limit: opts.Limit, Offset: opts.Offset})
}

// ListAudit returns engine lifecycle events newest first.
// GET /api/audit?limit=50
func (h *TradeHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log is not enabled")
		return
	}
	opts, err := listOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page[domain.AuditEntry]{Items: orEmpty(entries), Limit: opts.Limit, Offset: opts.Offset})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
