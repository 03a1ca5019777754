package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/dorepo/internal/config"
	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/observability"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/danmuck/dorepo/internal/protocol/session"
	"github.com/danmuck/dorepo/internal/repository"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// node is the part of a repository the runner drives.
type node interface {
	Connect(ctx context.Context, addr string) error
	Run(ctx context.Context) error
	Close() error
	Inspect() observability.Inspector
}

type nodeRuntime struct {
	cfg    config.Config
	schema *schema.Registry
}

func loadRuntime(path, role string) (nodeRuntime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nodeRuntime{}, err
	}
	if cfg.Role != role {
		log.Warn().Msgf("dorepoctl role override file=%s role=%s", cfg.Role, role)
		cfg.Role = role
		if err := config.Validate(cfg); err != nil {
			return nodeRuntime{}, err
		}
	}
	reg, err := config.BuildSchema(cfg.Classes)
	if err != nil {
		return nodeRuntime{}, err
	}
	observability.NodeLogger(cfg.Name, cfg.Role)
	return nodeRuntime{cfg: cfg, schema: reg}, nil
}

// events logs every repository notification. onHello runs after the hello
// is accepted.
func (rt nodeRuntime) events(onHello func()) repository.Events {
	return repository.Events{
		OnConnect: func() {
			log.Info().Msgf("dorepoctl connected addr=%s", rt.cfg.Address)
		},
		OnConnectFailed: func(code int, msg string) {
			log.Error().Msgf("dorepoctl connect failed code=%d msg=%s", code, msg)
		},
		OnConnectLost: func(err error) {
			log.Warn().Msgf("dorepoctl connection lost err=%v", err)
		},
		OnHello: func() {
			log.Info().Msg("dorepoctl hello accepted")
			if onHello != nil {
				onHello()
			}
		},
		OnEject: func(code uint16, reason string) {
			log.Warn().Msgf("dorepoctl ejected code=%d reason=%q", code, reason)
		},
		OnInterestDone: func(ctx uint32, handle uint16) {
			log.Info().Msgf("dorepoctl interest done ctx=%d handle=%d", ctx, handle)
		},
		OnGenerate: func(o *distobj.Object) {
			parent, zone := o.Location()
			log.Info().Msgf("dorepoctl generate id=%d class=%s parent=%d zone=%d", o.ID, o.ClassName(), parent, zone)
		},
		OnDelete: func(o *distobj.Object) {
			log.Info().Msgf("dorepoctl delete id=%d class=%s", o.ID, o.ClassName())
		},
	}
}

// serve connects n, runs after, then blocks until the connection ends or a
// signal arrives. The admin server and any extra loops share the lifetime.
func (rt nodeRuntime) serve(n node, after func(ctx context.Context) error, loops ...func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupTracing(ctx, rt.cfg.Tracing.Service, rt.cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn().Msgf("dorepoctl tracing shutdown err=%v", err)
		}
	}()

	if err := n.Connect(ctx, rt.cfg.Address); err != nil {
		return err
	}
	defer n.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if rt.cfg.Admin.Addr != "" {
		admin := observability.NewAdmin(observability.AdminOptions{
			Node:        rt.cfg.Name,
			Addr:        rt.cfg.Admin.Addr,
			CorsOrigins: rt.cfg.Admin.CorsOrigins,
			Token:       rt.cfg.Admin.Token,
		}, n.Inspect())
		log.Info().Msgf("dorepoctl admin listening addr=%s", rt.cfg.Admin.Addr)
		g.Go(func() error { return admin.Serve(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		err := n.Run(gctx)
		if errors.Is(err, session.ErrClosed) {
			return nil
		}
		return err
	})
	for _, loop := range loops {
		g.Go(func() error { return loop(gctx) })
	}
	if after != nil {
		if err := after(gctx); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
	}
	return g.Wait()
}
