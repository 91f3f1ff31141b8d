package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lightingmap.app/internal/reconcile"
)

type reconcileFlags struct {
	town   string
	file   string
	dryRun bool
}

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	flags := &reconcileFlags{}
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge a town's light points to a JSON array file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(flags.file)
			if err != nil {
				return fmt.Errorf("read %s: %w", flags.file, err)
			}
			decoded, err := reconcile.DecodeRows(data)
			if err != nil {
				return err
			}
			rows, err := reconcile.Normalize(decoded)
			if err != nil {
				return err
			}
			cfg, err := opts.config(cmd.Context())
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			engine := reconcile.NewEngine(s, reconcile.WithBatchSize(cfg.Reconcile.BatchSize))
			var res reconcile.Result
			if flags.dryRun {
				res, err = engine.Preview(cmd.Context(), flags.town, rows)
			} else {
				res, err = engine.Reconcile(cmd.Context(), flags.town, rows)
			}
			engine.Wait()
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.Format, res)
		},
	}
	cmd.Flags().StringVar(&flags.town, "town", "", "town name")
	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "JSON array of light point rows")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "plan without writing")
	_ = cmd.MarkFlagRequired("town")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
