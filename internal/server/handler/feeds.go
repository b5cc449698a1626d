package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/feed"
	"github.com/alanyoungcy/tradedesk/internal/view"
)

// FeedController pauses, resumes and tunes the polled feeds.
type FeedController interface {
	Feeds() []feed.FeedState
	StartFeed(f view.FeedID) error
	StopFeed(f view.FeedID) (bool, error)
	BookLevels() int
	SetBookLevels(n int) error
}

// FeedHandler serves feed control endpoints.
type FeedHandler struct {
	feeds  FeedController
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(feeds FeedController, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feeds: feeds, logger: logger}
}

type feedsResponse struct {
	Feeds      []feed.FeedState `json:"feeds"`
	BookLevels int              `json:"book_levels"`
}

// ListFeeds reports every polled feed.
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, feedsResponse{Feeds: h.feeds.Feeds(), BookLevels: h.feeds.BookLevels()})
}

// StartFeed resumes a paused feed.
// POST /api/feeds/{feed}/start
func (h *FeedHandler) StartFeed(w http.ResponseWriter, r *http.Request) {
	f := view.FeedID(r.PathValue("feed"))
	if err := h.feeds.StartFeed(f); err != nil {
		writeServiceError(w, r, h.logger, "start feed", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: feed started", slog.String("feed", string(f)))
	writeJSON(w, http.StatusOK, map[string]any{"feed": f, "running": true})
}

// StopFeed pauses a feed. Its last view stays published.
// POST /api/feeds/{feed}/stop
func (h *FeedHandler) StopFeed(w http.ResponseWriter, r *http.Request) {
	f := view.FeedID(r.PathValue("feed"))
	wasRunning, err := h.feeds.StopFeed(f)
	if err != nil {
		writeServiceError(w, r, h.logger, "stop feed", err)
		return
	}
	h.logger.InfoContext(r.Context(), "handler: feed stopped", slog.String("feed", string(f)))
	writeJSON(w, http.StatusOK, map[string]any{"feed": f, "running": false, "was_running": wasRunning})
}

// SetBookLevels changes the book depth.
// PUT /api/feeds/book/levels {"levels":20}
func (h *FeedHandler) SetBookLevels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Levels int `json:"levels"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.feeds.SetBookLevels(req.Levels); err != nil {
		writeServiceError(w, r, h.logger, "set book levels", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"book_levels": h.feeds.BookLevels()})
}
