// Package scheduler runs the engine's periodic jobs: the provider-settings
// refresh and the weekly report trigger.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/event"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
)

// EventSink receives the events the scheduler emits. Implemented by the bus
// consumer's dispatch path, so scheduled events flow through the same router
// as external ones.
type EventSink interface {
	Dispatch(ctx context.Context, key string, raw []byte)
}

// Config holds the scheduler configuration.
type Config struct {
	Providers      *config.ProviderStore
	Teams          storage.TeamSettingsStore
	Sink           EventSink
	Logger         *slog.Logger
	RefreshEvery   time.Duration
	WeeklyReportAt gocron.AtTime // default Monday 08:00 UTC
}

// Scheduler manages the periodic jobs using gocron.
type Scheduler struct {
	cron   gocron.Scheduler
	cfg    Config
	logger *slog.Logger
}

// New creates a new Scheduler.
func New(cfg Config) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 5 * time.Minute
	}
	if cfg.WeeklyReportAt == nil {
		cfg.WeeklyReportAt = gocron.NewAtTime(8, 0, 0)
	}
	return &Scheduler{cron: cron, cfg: cfg, logger: cfg.Logger}, nil
}

// Start registers the jobs and starts the gocron scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.RefreshEvery),
		gocron.NewTask(func() { s.refreshProviders(ctx) }),
	); err != nil {
		return fmt.Errorf("scheduling provider refresh: %w", err)
	}

	if _, err := s.cron.NewJob(
		gocron.WeeklyJob(1, gocron.NewWeekdays(time.Monday), gocron.NewAtTimes(s.cfg.WeeklyReportAt)),
		gocron.NewTask(func() { s.TriggerWeeklyReports(ctx) }),
	); err != nil {
		return fmt.Errorf("scheduling weekly reports: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"provider_refresh", s.cfg.RefreshEvery.String())
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) refreshProviders(ctx context.Context) {
	before := s.cfg.Providers.Version()
	if err := s.cfg.Providers.Reload(ctx); err != nil {
		s.logger.Warn("provider settings refresh failed", "error", err)
		return
	}
	if after := s.cfg.Providers.Version(); after != before {
		s.logger.Info("provider settings updated", "version", after)
	}
}

// TriggerWeeklyReports emits one report.weekly event per opted-in team.
// Exported so an operator can fire it manually from the send command.
func (s *Scheduler) TriggerWeeklyReports(ctx context.Context) {
	teams, err := s.cfg.Teams.ListWeeklyReportTeams(ctx)
	if err != nil {
		s.logger.Error("listing weekly report teams", "error", err)
		return
	}

	for _, teamID := range teams {
		raw, err := json.Marshal(event.Envelope{
			ID:        uuid.NewString(),
			Type:      event.TypeWeeklyReport,
			Timestamp: time.Now().UTC(),
			Source:    "scheduler",
			Data:      map[string]any{"team_id": teamID},
		})
		if err != nil {
			s.logger.Error("encoding weekly report event", "team_id", teamID, "error", err)
			continue
		}
		s.cfg.Sink.Dispatch(ctx, event.KeyDomainEvents, raw)
	}
	if len(teams) > 0 {
		s.logger.Info("weekly report events emitted", "teams", len(teams))
	}
}
