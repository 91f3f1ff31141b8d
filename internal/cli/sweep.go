package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lightingmap.app/internal/relations"
)

type sweepOutput struct {
	relations.SweepResult `yaml:",inline"`
}

func (s sweepOutput) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Towns updated: %d\nReferences removed: %d\n", s.TownsUpdated, s.ReferencesRemoved)
	for _, id := range s.Removed {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	return b.String()
}

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove town references to light points that no longer exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			res, err := relations.NewMaintainer(s, nil).SweepOrphans(cmd.Context())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.Format, sweepOutput{res})
		},
	}
}
