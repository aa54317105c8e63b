package handlers

import (
	"log"
	"net/http"
	"os"
	"strings"
)

// AutoPostCron triggers one campaign sweep. With a userId query param the
// sweep is scoped to that user's campaigns; otherwise it covers everyone.
// The periodic worker and this endpoint share the same code path, so an
// external scheduler can replace the in-process ticker without behavior drift.
func (h *Handler) AutoPostCron(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "autopost_disabled")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	cycles, err := h.runner.ProcessCampaignsOnce(r.Context(), userID)
	if err != nil {
		log.Printf("[Cron][AutoPost] sweep error userId=%q err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ran := 0
	for _, c := range cycles {
		if !c.Skipped {
			ran++
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"campaigns": len(cycles),
		"ran":       ran,
		"cycles":    cycles,
	})
}

// ScheduledPostsCron triggers one due-post sweep.
func (h *Handler) ScheduledPostsCron(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "autopost_disabled")
		return
	}

	processed, err := h.runner.ProcessScheduledPostsOnce(r.Context())
	if err != nil {
		log.Printf("[Cron][ScheduledPosts] sweep error err=%v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"processed": processed,
	})
}

// RunAutoPostLegacy is the key-protected cron entrypoint kept for external
// schedulers that predate the open cron routes. It delegates to the same
// sweep as AutoPostCron.
func (h *Handler) RunAutoPostLegacy(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(os.Getenv("CRON_API_KEY"))
	if key == "" || r.Header.Get("x-api-key") != key {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.AutoPostCron(w, r)
}
