package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
)

// e164Re validates destination numbers before any carrier call.
var e164Re = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// SMSResult reports the outcome of one carrier send.
type SMSResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Provider  string `json:"provider"`
}

// SMSNotifier delivers sms jobs through a carrier backend (twilio or
// vonage) selected per-message or via the configured default.
type SMSNotifier struct {
	providers *config.ProviderStore
	client    *http.Client
	logger    *slog.Logger

	// Base URLs are overridable in tests.
	twilioBaseURL string
	vonageBaseURL string
}

// NewSMSNotifier creates the sms adapter.
func NewSMSNotifier(providers *config.ProviderStore, logger *slog.Logger) *SMSNotifier {
	return &SMSNotifier{
		providers:     providers,
		client:        newHTTPClient(30 * time.Second),
		logger:        logger,
		twilioBaseURL: "https://api.twilio.com",
		vonageBaseURL: "https://rest.nexmo.com",
	}
}

// Name returns the channel identifier.
func (n *SMSNotifier) Name() string { return queue.ChannelSMS }

// Deliver validates the destination and sends through the selected carrier.
// Absent credentials degrade to a logged no-op.
func (n *SMSNotifier) Deliver(ctx context.Context, job queue.Job) error {
	var s SMSJob
	if err := json.Unmarshal(job.Payload, &s); err != nil {
		return fmt.Errorf("decoding sms job: %w", err)
	}

	if !e164Re.MatchString(s.To) {
		return fmt.Errorf("destination %q is not E.164", s.To)
	}

	settings, _ := n.providers.Current()
	provider := s.Provider
	if provider == "" {
		provider = settings.SMS.Provider
	}

	var send func(context.Context, config.SMSSettings, SMSJob) SMSResult
	switch provider {
	case "twilio":
		send = n.sendTwilio
	case "vonage":
		send = n.sendVonage
	default:
		// A misconfigured carrier name cannot succeed on retry.
		n.logger.Warn("unknown sms provider, dropping delivery",
			"job_id", job.ID, "to", s.To, "provider", provider)
		return nil
	}

	if settings.SMS.AccountSID == "" || settings.SMS.AuthToken == "" {
		n.logger.Warn("sms channel unconfigured, dropping delivery",
			"job_id", job.ID, "to", s.To, "provider", provider)
		return nil
	}

	result := send(ctx, settings.SMS, s)
	if !result.Success {
		return fmt.Errorf("sms via %s failed: %s", result.Provider, result.Error)
	}
	n.logger.Info("sms delivered", "job_id", job.ID, "provider", result.Provider,
		"message_id", result.MessageID)
	return nil
}

func (n *SMSNotifier) sendTwilio(ctx context.Context, settings config.SMSSettings, s SMSJob) SMSResult {
	result := SMSResult{Provider: "twilio"}

	form := url.Values{}
	form.Set("To", s.To)
	form.Set("From", settings.FromNumber)
	form.Set("Body", s.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.twilioBaseURL, settings.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(settings.AccountSID, settings.AuthToken)

	resp, err := n.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		result.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, detail)
		return result
	}

	var created struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err == nil {
		result.MessageID = created.SID
	}
	result.Success = true
	return result
}

// sendVonage posts to the Vonage SMS API. The account sid and auth token
// settings double as the api key and secret.
func (n *SMSNotifier) sendVonage(ctx context.Context, settings config.SMSSettings, s SMSJob) SMSResult {
	result := SMSResult{Provider: "vonage"}

	form := url.Values{}
	form.Set("api_key", settings.AccountSID)
	form.Set("api_secret", settings.AuthToken)
	form.Set("to", strings.TrimPrefix(s.To, "+"))
	form.Set("from", settings.FromNumber)
	form.Set("text", s.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.vonageBaseURL+"/sms/json", strings.NewReader(form.Encode()))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		result.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, detail)
		return result
	}

	// Vonage reports per-message errors with a 200 response.
	var reply struct {
		Messages []struct {
			Status    string `json:"status"`
			MessageID string `json:"message-id"`
			ErrorText string `json:"error-text"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		result.Error = err.Error()
		return result
	}
	if len(reply.Messages) == 0 {
		result.Error = "empty response"
		return result
	}
	if m := reply.Messages[0]; m.Status != "0" {
		result.Error = fmt.Sprintf("status %s: %s", m.Status, m.ErrorText)
		return result
	}
	result.MessageID = reply.Messages[0].MessageID
	result.Success = true
	return result
}

// ValidDestination reports whether to is an E.164 number. Exposed for the
// router's input checks.
func ValidDestination(to string) bool {
	return e164Re.MatchString(to)
}
