package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/awd2211/lnk.day-sub003/internal/api"
	"github.com/awd2211/lnk.day-sub003/internal/bus"
	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/directory"
	"github.com/awd2211/lnk.day-sub003/internal/event"
	"github.com/awd2211/lnk.day-sub003/internal/logger"
	"github.com/awd2211/lnk.day-sub003/internal/metrics"
	"github.com/awd2211/lnk.day-sub003/internal/notifier"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/router"
	"github.com/awd2211/lnk.day-sub003/internal/scheduler"
	"github.com/awd2211/lnk.day-sub003/internal/server"
	"github.com/awd2211/lnk.day-sub003/internal/service"
	"github.com/awd2211/lnk.day-sub003/internal/storage"
	"github.com/awd2211/lnk.day-sub003/internal/template"
	"github.com/awd2211/lnk.day-sub003/internal/webhook"
	"github.com/awd2211/lnk.day-sub003/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the delivery engine",
	Long:  "Consume domain events, dispatch deliveries across all channels, and serve the ops API.",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewSystemLogger(cfg.LogDir, cfg.SlogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := storage.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	logs := storage.NewSQLiteNotificationLogStore(db)
	endpoints := storage.NewSQLiteWebhookEndpointStore(db)
	teams := storage.NewSQLiteTeamSettingsStore(db)
	templates := storage.NewSQLiteTemplateStore(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	providers := config.NewProviderStore(cfg)
	resolver := template.NewResolver(templates)
	dir := directory.NewClient(cfg.DirectoryServiceURL, cfg.InternalAuthKey)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	queues := router.Queues{}
	for _, ch := range queue.Channels {
		q := queue.NewRedisQueue(rdb, "notify:queue:"+ch, log)
		go q.RunDelayedMover(ctx)
		go q.RunReaper(ctx)
		queues[ch] = q
	}

	dispatcher := webhook.NewDispatcher(queues[queue.ChannelWebhook], logs, cfg.MaxAttempts, log)
	rt := router.New(queues, logs, endpoints, teams, dispatcher, dir, cfg.MaxAttempts, m, log)

	thresholds := webhook.Thresholds{
		FailingAfter: cfg.WebhookFailingAfter,
		DisableAfter: cfg.WebhookDisableAfter,
	}
	notifiers := []notifier.Notifier{
		notifier.NewEmailNotifier(providers, resolver, logger.NewChannelLogger(log, queue.ChannelEmail)),
		notifier.NewSMSNotifier(providers, logger.NewChannelLogger(log, queue.ChannelSMS)),
		notifier.NewSlackNotifier(providers, logger.NewChannelLogger(log, queue.ChannelSlack)),
		notifier.NewTeamsNotifier(logger.NewChannelLogger(log, queue.ChannelTeams)),
		notifier.NewWebhookNotifier(logger.NewChannelLogger(log, queue.ChannelWebhook)),
	}
	for _, n := range notifiers {
		var hook worker.ResultHook
		if n.Name() == queue.ChannelWebhook {
			hook = worker.WebhookHealthHook(endpoints, thresholds, log)
		}
		pool := worker.NewPool(queues[n.Name()], n, logs, m, cfg.WorkersPerChannel, hook, log)
		go pool.Run(ctx)
		go pool.ReportDepth(ctx, 15*time.Second)
	}

	consumer := bus.NewConsumer(rdb, []string{
		event.KeyNotificationEmail,
		event.KeyNotificationSlack,
		event.KeyNotificationWebhook,
		event.KeyDomainEvents,
	}, rt.Route, m, log)
	go consumer.Run(ctx)

	sched, err := scheduler.New(scheduler.Config{
		Providers:    providers,
		Teams:        teams,
		Sink:         consumer,
		Logger:       log,
		RefreshEvery: time.Duration(cfg.ConfigRefreshMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer func() { _ = sched.Stop() }()

	apiSrv := api.New(
		service.NewNotificationService(logs, endpoints, rt, dispatcher, log),
		service.NewConfigService(providers),
		log,
	)
	srv := server.New(apiSrv, registry, cfg.Port, log)

	log.Info("delivery engine started",
		"port", cfg.Port,
		"workers_per_channel", cfg.WorkersPerChannel,
		"max_attempts", cfg.MaxAttempts,
		"redis", cfg.RedisAddr,
	)
	return srv.Run(ctx)
}
