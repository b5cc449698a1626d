package handler

import (
	"net/http"

	"github.com/alanyoungcy/tradedesk/internal/view"
)

// ViewSource returns the latest published view of a feed.
type ViewSource interface {
	Get(feed view.FeedID) (any, bool)
}

// ViewHandler serves the published views.
type ViewHandler struct {
	views ViewSource
}

// NewViewHandler creates a ViewHandler.
func NewViewHandler(views ViewSource) *ViewHandler {
	return &ViewHandler{views: views}
}

// ListViews returns every published view keyed by feed.
// GET /api/views
func (h *ViewHandler) ListViews(w http.ResponseWriter, _ *http.Request) {
	out := make(map[view.FeedID]any)
	for _, f := range view.AllFeeds() {
		if v, ok := h.views.Get(f); ok {
			out[f] = v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetView returns the latest view of one feed.
// GET /api/views/{feed}
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	f, ok := view.ParseFeed(r.PathValue("feed"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown feed "+r.PathValue("feed"))
		return
	}
	v, ok := h.views.Get(f)
	if !ok {
		writeError(w, http.StatusNotFound, "feed "+string(f)+" has not published yet")
		return
	}
	writeJSON(w, http.StatusOK, v)
}
