package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
)

// SlackNotifier delivers chat jobs to Slack, preferring the team's stored
// incoming-webhook URL and falling back to the bot-token API when the team
// has no webhook configured.
type SlackNotifier struct {
	providers *config.ProviderStore
	client    *http.Client
	logger    *slog.Logger

	// apiBaseURL is overridable in tests.
	apiBaseURL string
}

// NewSlackNotifier creates the slack adapter.
func NewSlackNotifier(providers *config.ProviderStore, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		providers:  providers,
		client:     newHTTPClient(30 * time.Second),
		logger:     logger,
		apiBaseURL: "https://slack.com/api",
	}
}

// Name returns the channel identifier.
func (n *SlackNotifier) Name() string { return queue.ChannelSlack }

// Deliver posts the card to the team's webhook or via the bot API.
func (n *SlackNotifier) Deliver(ctx context.Context, job queue.Job) error {
	var c ChatJob
	if err := json.Unmarshal(job.Payload, &c); err != nil {
		return fmt.Errorf("decoding slack job: %w", err)
	}

	message := slackMessage(c.Card, c.Data)

	if c.WebhookURL != "" {
		return n.postJSON(ctx, c.WebhookURL, message, nil)
	}

	settings, _ := n.providers.Current()
	if settings.SlackBotToken == "" {
		n.logger.Warn("slack channel unconfigured, dropping delivery",
			"job_id", job.ID, "team_id", c.TeamID)
		return nil
	}

	message["channel"] = c.Channel
	headers := map[string]string{"Authorization": "Bearer " + settings.SlackBotToken}
	return n.postJSON(ctx, n.apiBaseURL+"/chat.postMessage", message, headers)
}

func (n *SlackNotifier) postJSON(ctx context.Context, dest string, payload any, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned status %d: %s", resp.StatusCode, detail)
	}

	// The web API reports failures inside a 200 body.
	var apiResp struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err == nil && !apiResp.OK && apiResp.Error != "" {
		return fmt.Errorf("slack API error: %s", apiResp.Error)
	}
	return nil
}
