// Package handler serves the dashboard's JSON API: published views, order
// and subscription commands, feed control and the activity journal.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

const maxBodyBytes = 64 << 10

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes a bounded JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownFeed):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrFeedRunning):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrCorrelation):
		return http.StatusBadGateway
	}
	if fe, ok := domain.AsFetchError(err); ok {
		if fe.Kind == domain.FetchNetwork {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err to a status and message. Engine failures carry
// the engine's own text unmodified.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if _, ok := domain.AsFetchError(err); ok {
		msg = domain.BackendReason(err)
	}
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		msg = op + " failed"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

// parseLimit reads ?limit=, defaulting to def and capping at maxLimit.
func parseLimit(r *http.Request, def, maxLimit int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit
}
