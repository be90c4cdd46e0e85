// Package api implements the REST surface of the delivery engine: the
// notification log, resends, test sends, webhook endpoint operations, and
// configuration reload/status.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/awd2211/lnk.day-sub003/internal/service"
)

// Server holds all dependencies for the REST API handlers.
type Server struct {
	notificationSvc *service.NotificationService
	configSvc       *service.ConfigService
	logger          *slog.Logger
}

// New creates a new API Server backed by the provided services.
func New(notificationSvc *service.NotificationService, configSvc *service.ConfigService, logger *slog.Logger) *Server {
	return &Server{
		notificationSvc: notificationSvc,
		configSvc:       configSvc,
		logger:          logger,
	}
}

// Mount registers all API routes under the given router.
func (s *Server) Mount(r chi.Router) {
	// Provider configuration
	r.Post("/config/reload", s.handleConfigReload)
	r.Get("/config/status", s.handleConfigStatus)

	// Notification log
	r.Get("/notifications", s.handleListNotifications)
	r.Get("/notifications/{id}", s.handleGetNotification)
	r.Post("/notifications/{id}/resend", s.handleResendNotification)

	// Test sends
	r.Post("/test/{channel}", s.handleTestChannel)

	// Webhook endpoints (delivery state only; CRUD lives elsewhere)
	r.Get("/webhooks/{id}/deliveries", s.handleEndpointDeliveries)
	r.Post("/webhooks/{id}/test", s.handleTestEndpoint)
	r.Post("/webhooks/{id}/enable", s.handleEnableEndpoint)
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
