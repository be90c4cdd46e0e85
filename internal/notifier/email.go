package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/template"
)

// EmailNotifier delivers email jobs via whichever provider the ProviderStore
// currently selects: an SMTP transport (go-mail) or a transactional HTTP
// email API. The initialized SMTP client is cached together with the settings
// version it was built from and rebuilt lazily when the store moves on.
type EmailNotifier struct {
	providers *config.ProviderStore
	resolver  *template.Resolver
	client    *http.Client
	logger    *slog.Logger

	mu           sync.Mutex
	smtpClient   *mail.Client
	builtVersion int64
}

// NewEmailNotifier creates the email adapter.
func NewEmailNotifier(providers *config.ProviderStore, resolver *template.Resolver, logger *slog.Logger) *EmailNotifier {
	return &EmailNotifier{
		providers: providers,
		resolver:  resolver,
		client:    newHTTPClient(30 * time.Second),
		logger:    logger,
	}
}

// Name returns the channel identifier.
func (n *EmailNotifier) Name() string { return queue.ChannelEmail }

// Deliver renders the job's template and sends it through the selected
// provider. An "api" selection without an API key falls back to SMTP with a
// warning instead of failing the job.
func (n *EmailNotifier) Deliver(ctx context.Context, job queue.Job) error {
	var e EmailJob
	if err := json.Unmarshal(job.Payload, &e); err != nil {
		return fmt.Errorf("decoding email job: %w", err)
	}

	subject, text, html := n.render(ctx, &e)
	settings, version := n.providers.Current()

	provider := settings.EmailProvider
	if provider == "api" && settings.EmailAPIKey == "" {
		n.logger.Warn("email API key absent, falling back to smtp", "job_id", job.ID)
		provider = "smtp"
	}

	switch provider {
	case "api":
		return n.sendAPI(ctx, settings, e.To, subject, text, html)
	default:
		if settings.SMTP.Host == "" {
			n.logger.Warn("email channel unconfigured, dropping delivery",
				"job_id", job.ID, "to", e.To)
			return nil
		}
		return n.sendSMTP(ctx, settings, version, e.To, subject, text, html)
	}
}

// render resolves the job's template. An unknown code produces a clearly
// marked body rather than an error, so a bad template reference still leaves
// an auditable delivery.
func (n *EmailNotifier) render(ctx context.Context, e *EmailJob) (subject, text, html string) {
	tpl, err := n.resolver.Resolve(ctx, e.Template)
	if err != nil {
		n.logger.Warn("email template missing", "template", e.Template, "error", err)
		subject = e.Subject
		if subject == "" {
			subject = "lnk.day notification"
		}
		text = fmt.Sprintf("[template not found: %s]", e.Template)
		return subject, text, ""
	}

	subject, text, html = template.Render(tpl, e.Data)
	if e.Subject != "" {
		subject = e.Subject
	}
	return subject, text, html
}

func (n *EmailNotifier) sendSMTP(ctx context.Context, settings config.ProviderSettings, version int64, to, subject, text, html string) error {
	client, err := n.smtpFor(settings, version)
	if err != nil {
		return fmt.Errorf("building smtp client: %w", err)
	}

	m := mail.NewMsg()
	if err := m.FromFormat(settings.FromName, settings.FromEmail); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, text)
	if html != "" {
		m.AddAlternativeString(mail.TypeTextHTML, html)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

// smtpFor returns the cached SMTP client, rebuilding it when the provider
// settings version has moved past the one the client was built from.
func (n *EmailNotifier) smtpFor(settings config.ProviderSettings, version int64) (*mail.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.smtpClient != nil && n.builtVersion == version {
		return n.smtpClient, nil
	}

	opts := []mail.Option{
		mail.WithPort(settings.SMTP.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if settings.SMTP.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(settings.SMTP.Username),
			mail.WithPassword(settings.SMTP.Password),
		)
	}

	client, err := mail.NewClient(settings.SMTP.Host, opts...)
	if err != nil {
		return nil, err
	}

	n.smtpClient = client
	n.builtVersion = version
	n.logger.Debug("smtp client rebuilt", "version", version, "host", settings.SMTP.Host)
	return client, nil
}

// apiRequest is the transactional email API body.
type apiRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

func (n *EmailNotifier) sendAPI(ctx context.Context, settings config.ProviderSettings, to, subject, text, html string) error {
	body, err := json.Marshal(apiRequest{
		From:    fmt.Sprintf("%s <%s>", settings.FromName, settings.FromEmail),
		To:      to,
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("encoding email API request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.EmailAPIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building email API request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+settings.EmailAPIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("email API send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email API returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
