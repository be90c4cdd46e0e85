package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/awd2211/lnk.day-sub003/internal/storage"
)

// handleEndpointDeliveries returns the recent delivery log for one webhook
// endpoint. Accepts an optional ?limit=N query parameter (default 50).
func (s *Server) handleEndpointDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	id := chi.URLParam(r, "id")
	entries, err := s.notificationSvc.EndpointDeliveries(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "webhook endpoint not found")
			return
		}
		s.logger.Error("listing endpoint deliveries", "endpoint_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if entries == nil {
		entries = []storage.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleTestEndpoint sends a synthetic signed delivery to the endpoint.
func (s *Server) handleTestEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notificationSvc.TestEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "webhook endpoint not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleEnableEndpoint re-enables a disabled endpoint and resets its failure
// streak.
func (s *Server) handleEnableEndpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notificationSvc.EnableEndpoint(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "webhook endpoint not found")
			return
		}
		s.logger.Error("enabling endpoint", "endpoint_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enable endpoint")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}
