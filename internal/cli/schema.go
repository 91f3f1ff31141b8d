package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lightingmap.app/internal/store/pg"
)

func newSchemaCommand(opts *RootOptions) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Apply the PostgreSQL schema (creates missing tables only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), pg.Schema())
				return err
			}
			cfg, err := opts.config(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn/DATABASE_URL required")
			}
			s, err := pg.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL instead of applying it")
	return cmd
}
