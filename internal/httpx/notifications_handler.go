package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	out, err := h.Notifications.List(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Notifications.MarkRead(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkAllRead(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, h.logger(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// serveNotifications upgrades to a WebSocket that receives the caller's new
// notifications as they are delivered.
func (h *Handler) serveNotifications(w http.ResponseWriter, r *http.Request) {
	h.Realtime.ServeWS(w, r, actor(r).UID)
}
