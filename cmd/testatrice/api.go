package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cockatrice/testatrice/internal/adapters/http"
)

const shutdownTimeout = 10 * time.Second

func newCmdAPI(f *Factory, g *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the lifecycle operations over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.open(g, nil)
			if err != nil {
				return err
			}
			defer s.close()

			if listen == "" {
				listen = s.cfg.API.Listen
			}
			handler := http.NewEnvironmentHandler(s.service, f.Tokens(s.cfg), s.log)
			app := http.NewApp(handler, s.log)

			ctx := cmd.Context()
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				s.log.Info().Str("listen", listen).Msg("api listening")
				if err := app.Listen(listen); err != nil {
					return fmt.Errorf("api server: %w", err)
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				s.log.Info().Msg("api shutting down")
				return app.ShutdownWithContext(shutdownCtx)
			})

			return eg.Wait()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (default: api.listen from the config, :3000)")
	return cmd
}
