package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/notify"
)

type notificationsView struct {
	Items  []notify.Notification `json:"items"`
	Unread int                   `json:"unread"`
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, notificationsView{
		Items:  s.Notifications.Items(),
		Unread: s.Notifications.Unread(),
	})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	if !s.Notifications.MarkRead(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, notificationsView{
		Items:  s.Notifications.Items(),
		Unread: s.Notifications.Unread(),
	})
}

// Events streams toasts and notifications of the session as server-sent
// events until the client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := current(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	events, cancel := s.Events.Subscribe(h.cfg.EventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		zctx.From(r.Context()).Warn("Event stream not flushable", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	lg := zctx.From(r.Context())
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			s.Touch(time.Now())
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				lg.Error("Encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
