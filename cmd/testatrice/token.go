package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cockatrice/testatrice/internal/config"
	"github.com/cockatrice/testatrice/internal/core/domain"
)

func newCmdToken(f *Factory, g *globalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:       "token {activation|reset} <username>",
		Short:     "Print the account token emailed to a user",
		Long:      "Wait for the mail capture service to receive an activation or password reset token for username and print it.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"activation", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			tokens := f.Tokens(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var token string
			switch kind, username := args[0], args[1]; kind {
			case "activation":
				token, err = tokens.Activation(ctx, username)
			case "reset":
				token, err = tokens.PasswordReset(ctx, username)
			default:
				return domain.Invalid("token", fmt.Sprintf("kind must be activation or reset, got %q", kind))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(f.Out, token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the token")
	return cmd
}
