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

	"github.com/awd2211/lnk.day-sub003/internal/queue"
)

// TeamsNotifier delivers chat jobs to a Microsoft Teams incoming webhook as
// MessageCard payloads.
type TeamsNotifier struct {
	client *http.Client
	logger *slog.Logger
}

// NewTeamsNotifier creates the teams adapter.
func NewTeamsNotifier(logger *slog.Logger) *TeamsNotifier {
	return &TeamsNotifier{
		client: newHTTPClient(30 * time.Second),
		logger: logger,
	}
}

// Name returns the channel identifier.
func (n *TeamsNotifier) Name() string { return queue.ChannelTeams }

// Deliver posts the card to the team's incoming webhook. A missing webhook
// URL is a configuration gap, not a fault: the delivery is dropped with a
// warning.
func (n *TeamsNotifier) Deliver(ctx context.Context, job queue.Job) error {
	var c ChatJob
	if err := json.Unmarshal(job.Payload, &c); err != nil {
		return fmt.Errorf("decoding teams job: %w", err)
	}

	if c.WebhookURL == "" {
		n.logger.Warn("teams channel unconfigured, dropping delivery",
			"job_id", job.ID, "team_id", c.TeamID)
		return nil
	}

	body, err := json.Marshal(teamsCard(c.Card, c.Data))
	if err != nil {
		return fmt.Errorf("encoding teams card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to teams: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
