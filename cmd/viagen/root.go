package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:           "viagen",
	Short:         fmt.Sprintf("viagen dashboard backend (version: %s, commit: %s)", version, commit),
	Long:          "viagen serves the dashboard API: OAuth login, integration connect flows, credential storage and sandbox launch.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "viagen %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, ownersCmd, versionCmd)
}
