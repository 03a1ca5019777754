package main

import (
	"fmt"
	"os"

	"github.com/danmuck/dorepo/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "dorepoctl",
	Short: "Run a distributed-object repository against a message director or client agent",
	Long: `dorepoctl connects a distributed-object repository to an Astron-style
cluster. The client role talks to a client agent; the authority role talks to
a message director, owns a channel and generates objects.

Log output is controlled by DOREPO_LOG_LEVEL, DOREPO_LOG_TIMESTAMP,
DOREPO_LOG_NOCOLOR and DOREPO_LOG_BYPASS.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.ConfigureRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dorepo.toml", "Path to the TOML config file")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dorepoctl: %v\n", err)
		os.Exit(1)
	}
}
