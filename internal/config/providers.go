package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"time"
)

// SMTPSettings holds connection parameters for the SMTP email transport.
type SMTPSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// SMSSettings holds carrier API credentials.
type SMSSettings struct {
	Provider   string `json:"provider"`
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	FromNumber string `json:"from_number"`
}

// ProviderSettings is the hot-reloadable settings snapshot shared by the
// delivery adapters.
type ProviderSettings struct {
	EmailProvider string       `json:"email_provider"` // "smtp" or "api"
	FromEmail     string       `json:"from_email"`
	FromName      string       `json:"from_name"`
	SMTP          SMTPSettings `json:"smtp"`
	EmailAPIKey   string       `json:"email_api_key"`
	EmailAPIURL   string       `json:"email_api_url"`
	SMS           SMSSettings  `json:"sms"`
	SlackBotToken string       `json:"slack_bot_token"`
}

// ProviderStore holds a versioned ProviderSettings snapshot. Adapters that
// cache derived state (an initialized mail client, for example) record the
// version they were built from and compare it against Version before each
// use, rebuilding lazily on mismatch. The version is monotonically
// non-decreasing and safe under concurrent read.
type ProviderStore struct {
	mu          sync.RWMutex
	settings    ProviderSettings
	version     int64
	refreshedAt time.Time

	serviceURL string
	authKey    string
	client     *http.Client
}

// NewProviderStore seeds the store from process configuration. serviceURL may
// be empty, in which case Reload is a no-op and the seed stays authoritative.
func NewProviderStore(cfg *AppConfig) *ProviderStore {
	return &ProviderStore{
		settings: ProviderSettings{
			EmailProvider: cfg.EmailProvider,
			FromEmail:     cfg.EmailFrom,
			FromName:      cfg.EmailFromName,
			SMTP: SMTPSettings{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
			},
			EmailAPIKey: cfg.EmailAPIKey,
			EmailAPIURL: cfg.EmailAPIURL,
			SMS: SMSSettings{
				Provider:   cfg.SMSProvider,
				AccountSID: cfg.SMSAccountSID,
				AuthToken:  cfg.SMSAuthToken,
				FromNumber: cfg.SMSFromNumber,
			},
			SlackBotToken: cfg.SlackBotToken,
		},
		version:     1,
		refreshedAt: time.Now(),
		serviceURL:  cfg.ConfigServiceURL,
		authKey:     cfg.InternalAuthKey,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Current returns the settings snapshot and the version it belongs to.
func (s *ProviderStore) Current() (ProviderSettings, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, s.version
}

// Version returns the current settings version.
func (s *ProviderStore) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// RefreshedAt returns the time of the last successful refresh.
func (s *ProviderStore) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// Reload fetches settings from the external configuration service. The
// version is bumped only when the settings actually changed, so consumers do
// not rebuild clients on every poll.
func (s *ProviderStore) Reload(ctx context.Context) error {
	if s.serviceURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serviceURL, nil)
	if err != nil {
		return fmt.Errorf("building config request: %w", err)
	}
	req.Header.Set("X-Internal-Auth", s.authKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching provider settings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("config service returned status %d", resp.StatusCode)
	}

	var incoming ProviderSettings
	if err := json.NewDecoder(resp.Body).Decode(&incoming); err != nil {
		return fmt.Errorf("decoding provider settings: %w", err)
	}

	s.apply(incoming)
	return nil
}

// Set replaces the snapshot directly. Used by tests and by the explicit
// reload endpoint when a payload is supplied.
func (s *ProviderStore) Set(incoming ProviderSettings) {
	s.apply(incoming)
}

func (s *ProviderStore) apply(incoming ProviderSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !reflect.DeepEqual(s.settings, incoming) {
		s.settings = incoming
		s.version++
	}
	s.refreshedAt = time.Now()
}
