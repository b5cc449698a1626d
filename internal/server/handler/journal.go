package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// JournalHandler serves the activity journal. Either store may be nil when
// the journal is disabled.
type JournalHandler struct {
	trades domain.TradeStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(trades domain.TradeStore, audit domain.AuditStore, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{trades: trades, audit: audit, logger: logger}
}

// ListTrades returns journaled trades, newest first.
// GET /api/journal/trades?limit=100
func (h *JournalHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeServiceError(w, r, h.logger, "list trades", fmt.Errorf("journal: %w", domain.ErrDisabled))
		return
	}
	trades, err := h.trades.ListRecent(r.Context(), parseLimit(r, 100, 1000))
	if err != nil {
		writeServiceError(w, r, h.logger, "list trades", err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListAudit returns audit entries, newest first.
// GET /api/journal/audit?limit=100
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeServiceError(w, r, h.logger, "list audit", fmt.Errorf("journal: %w", domain.ErrDisabled))
		return
	}
	entries, err := h.audit.ListRecent(r.Context(), parseLimit(r, 100, 1000))
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
