// Package cli is the operator command tree behind lightctl.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"lightingmap.app/internal/config"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/obs"
	"lightingmap.app/internal/store"
)

// RootOptions holds global flags and the lazily opened runtime.
type RootOptions struct {
	ConfigFile string
	Format     string

	cfg     config.Config
	store   lighting.Store
	closeFn func() error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the lightctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lightctl",
		Short:         "Operator tools for the lighting map service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.close()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")

	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// config loads configuration once per invocation.
func (o *RootOptions) config(ctx context.Context) (config.Config, error) {
	if o.store != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load(ctx, config.Options{ConfigFile: o.ConfigFile})
	if err != nil {
		return config.Config{}, err
	}
	obs.ConfigureLogger(cfg.Log.Level, false)
	o.cfg = cfg
	return cfg, nil
}

// open returns the configured store. An empty DSN yields an empty in-memory
// store, which is only useful for dry runs.
func (o *RootOptions) open(ctx context.Context) (lighting.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	cfg, err := o.config(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		obs.Logger().Warn("database.dsn not set, using an empty in-memory store")
	}
	s, closeFn, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	o.store, o.closeFn = s, closeFn
	return s, nil
}

func (o *RootOptions) close() error {
	if o.closeFn == nil {
		return nil
	}
	err := o.closeFn()
	o.closeFn = nil
	return err
}
