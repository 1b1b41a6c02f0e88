package cmd

import (
	"github.com/spf13/cobra"

	applogger "SRLevels/pkg/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "srlevels",
	Short: "Support and resistance level detection",
	Long: `srlevels finds ranked support and resistance prices in OHLCV candles.

It can run the detector on a local CSV file or follow the levels a running
service publishes over its WebSocket stream.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func newLogger() (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{Level: logLevel, Format: "console", Output: "stderr"})
}
