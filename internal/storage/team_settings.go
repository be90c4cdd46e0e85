package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TeamChannelSettings holds a team's chat-channel installations and notify
// preferences. Owned by the team configuration service; the engine reads it
// to decide fanout.
type TeamChannelSettings struct {
	TeamID             string `json:"team_id"`
	SlackWebhookURL    string `json:"slack_webhook_url,omitempty"`
	SlackChannel       string `json:"slack_channel,omitempty"`
	TeamsWebhookURL    string `json:"teams_webhook_url,omitempty"`
	NotifyLinkCreated  bool   `json:"notify_link_created"`
	NotifyMilestone    bool   `json:"notify_milestone"`
	NotifyGoal         bool   `json:"notify_goal"`
	WeeklyReport       bool   `json:"weekly_report"`
	MilestoneThreshold int64  `json:"milestone_threshold"`
}

// TeamSettingsStore reads team channel installations.
type TeamSettingsStore interface {
	// Get returns the settings for a team, or nil when the team has no
	// channel installations.
	Get(ctx context.Context, teamID string) (*TeamChannelSettings, error)
	// ListWeeklyReportTeams returns the ids of teams with weekly reports on.
	ListWeeklyReportTeams(ctx context.Context) ([]string, error)
	// Put upserts settings. Used by tests and seeding.
	Put(ctx context.Context, settings *TeamChannelSettings) error
}

// SQLiteTeamSettingsStore implements TeamSettingsStore backed by SQLite.
type SQLiteTeamSettingsStore struct {
	db *sql.DB
}

// NewSQLiteTeamSettingsStore returns a new SQLiteTeamSettingsStore.
func NewSQLiteTeamSettingsStore(db *sql.DB) *SQLiteTeamSettingsStore {
	return &SQLiteTeamSettingsStore{db: db}
}

// Get returns the settings for teamID, or nil when none exist.
func (s *SQLiteTeamSettingsStore) Get(ctx context.Context, teamID string) (*TeamChannelSettings, error) {
	var t TeamChannelSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT team_id, slack_webhook_url, slack_channel, teams_webhook_url,
		       notify_link_created, notify_milestone, notify_goal, weekly_report,
		       milestone_threshold
		FROM team_channel_settings WHERE team_id = ?`, teamID,
	).Scan(&t.TeamID, &t.SlackWebhookURL, &t.SlackChannel, &t.TeamsWebhookURL,
		&t.NotifyLinkCreated, &t.NotifyMilestone, &t.NotifyGoal, &t.WeeklyReport,
		&t.MilestoneThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying team settings for %s: %w", teamID, err)
	}
	return &t, nil
}

// ListWeeklyReportTeams returns teams with the weekly report enabled.
func (s *SQLiteTeamSettingsStore) ListWeeklyReportTeams(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT team_id FROM team_channel_settings WHERE weekly_report = 1")
	if err != nil {
		return nil, fmt.Errorf("listing weekly report teams: %w", err)
	}
	defer rows.Close()

	var teams []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning team id: %w", err)
		}
		teams = append(teams, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating team rows: %w", err)
	}
	return teams, nil
}

// Put upserts a team's settings row.
func (s *SQLiteTeamSettingsStore) Put(ctx context.Context, settings *TeamChannelSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_channel_settings
			(team_id, slack_webhook_url, slack_channel, teams_webhook_url,
			 notify_link_created, notify_milestone, notify_goal, weekly_report,
			 milestone_threshold, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(team_id) DO UPDATE SET
			slack_webhook_url = excluded.slack_webhook_url,
			slack_channel = excluded.slack_channel,
			teams_webhook_url = excluded.teams_webhook_url,
			notify_link_created = excluded.notify_link_created,
			notify_milestone = excluded.notify_milestone,
			notify_goal = excluded.notify_goal,
			weekly_report = excluded.weekly_report,
			milestone_threshold = excluded.milestone_threshold,
			updated_at = excluded.updated_at`,
		settings.TeamID, settings.SlackWebhookURL, settings.SlackChannel,
		settings.TeamsWebhookURL, settings.NotifyLinkCreated, settings.NotifyMilestone,
		settings.NotifyGoal, settings.WeeklyReport, settings.MilestoneThreshold,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting team settings for %s: %w", settings.TeamID, err)
	}
	return nil
}
