package api

import "net/http"

// handleConfigReload forces a provider-settings fetch from the configuration
// service and returns the resulting status.
func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	status, err := s.configSvc.Reload(r.Context())
	if err != nil {
		s.logger.Error("reloading provider settings", "error", err)
		writeError(w, http.StatusBadGateway, "failed to reload provider settings")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleConfigStatus reports the current settings version and provider
// selection.
func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configSvc.Status())
}
