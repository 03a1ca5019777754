package main

import (
	"context"
	"time"

	"github.com/danmuck/dorepo/internal/config"
	"github.com/danmuck/dorepo/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newClientCmd())
}

func newClientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "client",
		Short: "Connect to a client agent as a client repository",
		Long: `The client command connects to the client agent at address, sends hello
and, once it is accepted, opens every [[interest]] from the config file.
Heartbeats are sent every heartbeat interval until the connection ends.

Example:
  dorepoctl client --config client.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(configPath)
		},
	}
}

func runClient(path string) error {
	rt, err := loadRuntime(path, config.RoleClient)
	if err != nil {
		return err
	}
	cfg := rt.cfg

	var repo *repository.ClientRepository
	opts := cfg.RepositoryOptions()
	opts.Schema = rt.schema
	opts.Events = rt.events(func() {
		for _, in := range cfg.Interests {
			if err := repo.AddInterest(in.Handle, in.Context, in.Parent, in.Zones...); err != nil {
				log.Error().Msgf("dorepoctl add interest handle=%d err=%v", in.Handle, err)
			}
		}
	})
	repo, err = repository.NewClient(opts)
	if err != nil {
		return err
	}

	hello := func(context.Context) error {
		return repo.SendHello(cfg.Hello.Version, cfg.Hello.Hash)
	}
	heartbeat := func(ctx context.Context) error {
		if cfg.Heartbeat <= 0 {
			return nil
		}
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = repo.SendDisconnect()
				return nil
			case <-ticker.C:
				if err := repo.SendHeartbeat(); err != nil {
					log.Warn().Msgf("dorepoctl heartbeat err=%v", err)
				}
			}
		}
	}
	return rt.serve(repo, hello, heartbeat)
}
