package main

import (
	"fmt"

	"github.com/danmuck/dorepo/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

func init() {
	cmd := newInitCmd()
	cmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
	rootCmd.AddCommand(cmd)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <client|authority>",
		Short: "Write an example config file for a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(configPath, args[0], initForce); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", args[0], configPath)
			return nil
		},
	}
}
