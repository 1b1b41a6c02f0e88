package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"SRLevels/internal/di"
	"SRLevels/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "app",
	Short:        "Run the level detection service",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}

		app, cleanup, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer cleanup()

		return app.Run(context.Background())
	},
}

func main() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
