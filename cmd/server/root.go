package main

import (
	"log/slog"

	"github.com/Priya8975/envelope-relay/internal/config"
	"github.com/Priya8975/envelope-relay/internal/logging"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Envelope ingestion and notification relay",
	Long: `relay accepts error-report envelopes from client SDKs, stores them and
notifies recipients over Telegram, webhooks and NATS according to event level.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

// loadConfig reads configuration and builds the logger it describes.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
