package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/dorepo/internal/config"
	"github.com/danmuck/dorepo/internal/distobj"
	"github.com/danmuck/dorepo/internal/protocol/schema"
	"github.com/danmuck/dorepo/internal/repository"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	generateClass  string
	generateParent uint32
	generateZone   uint32
	generateFields []string
)

func init() {
	cmd := newServerCmd()
	cmd.Flags().StringVar(&generateClass, "generate", "", "Generate one object of this class after connecting")
	cmd.Flags().Uint32Var(&generateParent, "parent", 0, "Parent of the generated object")
	cmd.Flags().Uint32Var(&generateZone, "zone", 0, "Zone of the generated object")
	cmd.Flags().StringArrayVar(&generateFields, "field", nil, "Field value for the generated object, name=v1,v2")
	rootCmd.AddCommand(cmd)
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Connect to a message director as an authority repository",
		Long: `The server command connects to the message director at address, registers
the authority channel and, when a state server is configured, arranges for
our objects to be deleted if the connection drops.

Example:
  dorepoctl server --config ai.toml
  dorepoctl server --config ai.toml --generate DistributedAvatar --parent 4000 --zone 100 --field setName=bob`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}
}

func runServer(path string) error {
	rt, err := loadRuntime(path, config.RoleAuthority)
	if err != nil {
		return err
	}
	opts := rt.cfg.ServerOptions()
	opts.Schema = rt.schema
	opts.Events = rt.events(nil)
	repo, err := repository.NewServer(opts)
	if err != nil {
		return err
	}

	after := func(context.Context) error {
		log.Info().Msgf("dorepoctl authority channel=%d state_server=%d", repo.OurChannel(), repo.StateServer())
		if generateClass == "" {
			return nil
		}
		obj, err := buildObject(rt.schema, generateClass, generateFields)
		if err != nil {
			return err
		}
		repo.Do(func() {
			err = repo.GenerateWithRequired(obj, generateParent, generateZone)
		})
		if err != nil {
			return fmt.Errorf("generate %s: %w", generateClass, err)
		}
		log.Info().Msgf("dorepoctl generated id=%d class=%s", obj.ID, generateClass)
		return nil
	}
	return rt.serve(repo, after)
}

// buildObject makes an object of className with values parsed from
// name=v1,v2 assignments.
func buildObject(reg *schema.Registry, className string, assignments []string) (*distobj.Object, error) {
	class, ok := reg.ClassByName(className)
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrUnknownClass, className)
	}
	obj := distobj.NewObject(class)
	for _, a := range assignments {
		name, raw, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("field %q: expected name=value", a)
		}
		f, ok := class.FieldByName(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", repository.ErrUnknownField, className, name)
		}
		parts := []string{raw}
		if len(f.Params) > 1 {
			parts = strings.Split(raw, ",")
		}
		if len(parts) != len(f.Params) {
			return nil, fmt.Errorf("field %s: %d values for %d params", f.Name, len(parts), len(f.Params))
		}
		args := make([]any, len(parts))
		for i, enc := range f.Params {
			v, err := schema.ParseValue(enc, strings.TrimSpace(parts[i]))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			args[i] = v
		}
		if err := obj.SetValueByName(f.Name, args...); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
