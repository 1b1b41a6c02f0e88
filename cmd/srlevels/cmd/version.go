package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"SRLevels/internal/di"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "srlevels", di.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
