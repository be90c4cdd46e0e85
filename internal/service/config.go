package service

import (
	"context"
	"time"

	"github.com/awd2211/lnk.day-sub003/internal/config"
)

// ConfigStatus is the reload-state snapshot returned by the status endpoint.
type ConfigStatus struct {
	Version       int64     `json:"version"`
	EmailProvider string    `json:"email_provider"`
	SMSProvider   string    `json:"sms_provider"`
	RefreshedAt   time.Time `json:"refreshed_at"`
}

// ConfigService exposes provider-settings reload and status.
type ConfigService struct {
	providers *config.ProviderStore
}

// NewConfigService creates the service.
func NewConfigService(providers *config.ProviderStore) *ConfigService {
	return &ConfigService{providers: providers}
}

// Reload forces a fetch from the configuration service and returns the
// resulting status. Without a configured service URL it is a no-op.
func (s *ConfigService) Reload(ctx context.Context) (ConfigStatus, error) {
	if err := s.providers.Reload(ctx); err != nil {
		return ConfigStatus{}, err
	}
	return s.Status(), nil
}

// Status reports the current settings version and provider selection.
func (s *ConfigService) Status() ConfigStatus {
	settings, version := s.providers.Current()
	return ConfigStatus{
		Version:       version,
		EmailProvider: settings.EmailProvider,
		SMSProvider:   settings.SMS.Provider,
		RefreshedAt:   s.providers.RefreshedAt(),
	}
}
