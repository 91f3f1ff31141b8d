package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lighting"
)

// tokenOutput omits the user record so no account field leaks into yaml.
type tokenOutput struct {
	Token     string        `json:"token" yaml:"token"`
	ExpiresAt time.Time     `json:"expires_at" yaml:"expires_at"`
	Email     string        `json:"email" yaml:"email"`
	Role      lighting.Role `json:"user_type" yaml:"user_type"`
}

func (t tokenOutput) Text() string { return t.Token + "\n" }

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an approved user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Context())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			var u lighting.User
			err = s.View(cmd.Context(), func(ctx context.Context, tx lighting.Tx) error {
				var err error
				u, err = tx.GetUserByEmail(ctx, email)
				return err
			})
			if err != nil {
				return fmt.Errorf("lookup %s: %w", email, err)
			}
			session, err := auth.NewService(s, issuer).Issue(u)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts.Format, tokenOutput{
				Token:     session.Token,
				ExpiresAt: session.ExpiresAt,
				Email:     u.Email,
				Role:      u.Role,
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
