// Package cmd contains the CLI entrypoints for the notification delivery
// engine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "notify-engine",
	Short: "lnk.day notification delivery engine",
	Long:  "Routes domain events to email, SMS, Slack, Teams and webhook deliveries with per-channel retry queues.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
}
