package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/awd2211/lnk.day-sub003/internal/config"
	"github.com/awd2211/lnk.day-sub003/internal/logger"
	"github.com/awd2211/lnk.day-sub003/internal/notifier"
	"github.com/awd2211/lnk.day-sub003/internal/queue"
	"github.com/awd2211/lnk.day-sub003/internal/template"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one test notification and exit",
	Long:  "Deliver a single test notification synchronously using the configured providers. Useful for verifying credentials without running the engine.",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().String("channel", "email", "delivery channel (email, sms, slack, teams)")
	sendCmd.Flags().String("target", "", "destination: email address, E.164 number, or webhook URL")
	_ = sendCmd.MarkFlagRequired("target")
}

func runSend(cmd *cobra.Command, _ []string) error {
	channel, _ := cmd.Flags().GetString("channel")
	target, _ := cmd.Flags().GetString("target")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewSystemLogger("", cfg.SlogLevel())
	providers := config.NewProviderStore(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var n notifier.Notifier
	var payload any
	switch channel {
	case queue.ChannelEmail:
		n = notifier.NewEmailNotifier(providers, template.NewResolver(nil), log)
		payload = notifier.EmailJob{
			To:       target,
			Template: "delivery-test",
			Data:     map[string]any{"channel": channel, "sent_at": time.Now().UTC().Format(time.RFC3339)},
		}
	case queue.ChannelSMS:
		if !notifier.ValidDestination(target) {
			return fmt.Errorf("%q is not an E.164 number", target)
		}
		n = notifier.NewSMSNotifier(providers, log)
		payload = notifier.SMSJob{To: target, Body: "lnk.day test notification"}
	case queue.ChannelSlack:
		n = notifier.NewSlackNotifier(providers, log)
		payload = notifier.ChatJob{
			WebhookURL: target,
			Card:       notifier.CardAlert,
			Data:       map[string]any{"message": "lnk.day test notification", "severity": "info"},
		}
	case queue.ChannelTeams:
		n = notifier.NewTeamsNotifier(log)
		payload = notifier.ChatJob{
			WebhookURL: target,
			Card:       notifier.CardAlert,
			Data:       map[string]any{"message": "lnk.day test notification", "severity": "info"},
		}
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := queue.Job{
		ID:          uuid.NewString(),
		Channel:     channel,
		Attempt:     1,
		MaxAttempts: 1,
		EnqueuedAt:  time.Now(),
		Payload:     raw,
	}

	if err := n.Deliver(ctx, job); err != nil {
		return fmt.Errorf("delivering test notification: %w", err)
	}
	fmt.Printf("test notification delivered via %s to %s\n", channel, target)
	return nil
}
