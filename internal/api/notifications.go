package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/awd2211/lnk.day-sub003/internal/service"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
)

// handleListNotifications returns recent notification log entries.
// Accepts an optional ?limit=N query parameter (default 100).
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.notificationSvc.ListLog(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing notification log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if entries == nil {
		entries = []storage.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetNotification returns one notification log entry.
func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	entry, err := s.notificationSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		s.logger.Error("loading notification", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load notification")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleResendNotification replays a settled notification and returns the id
// of the new log row.
func (s *Server) handleResendNotification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	newID, err := s.notificationSvc.Resend(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "notification not found")
		case errors.Is(err, service.ErrNotResendable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("resending notification", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to resend notification")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": newID, "resend_of": id})
}

// handleTestChannel enqueues a synthetic delivery on the named channel. The
// body carries the target address.
func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Target string `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	channel := chi.URLParam(r, "channel")
	logID, err := s.notificationSvc.Test(r.Context(), channel, body.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": logID, "channel": channel})
}
