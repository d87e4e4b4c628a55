package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCmdStop(f *Factory, g *globalOptions) *cobra.Command {
	var (
		identifier string
		servers    bool
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the containers",
		Long: `Stop one server instance, every server instance, or everything including
the environment containers. Exactly one target must be given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.open(g, nil)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			switch {
			case cmd.Flags().Changed("server-identifier"):
				if err := s.service.StopServer(ctx, identifier); err != nil {
					return err
				}
				fmt.Fprintf(f.Out, "Stopped server %s\n", identifier)
			case servers:
				if err := s.service.StopAllServers(ctx); err != nil {
					return err
				}
				fmt.Fprintln(f.Out, "Stopped all servers")
			case all:
				if err := s.service.DestroyEnvironment(ctx); err != nil {
					return err
				}
				fmt.Fprintln(f.Out, "Stopped all servers and the environment")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&identifier, "server-identifier", "", "Stop the container of the server instance with the given identifier")
	cmd.Flags().BoolVar(&servers, "servers", false, "Stop all server containers while keeping the environment containers running")
	cmd.Flags().BoolVar(&all, "all", false, "Stop all server containers and all environment containers")
	cmd.MarkFlagsMutuallyExclusive("server-identifier", "servers", "all")
	cmd.MarkFlagsOneRequired("server-identifier", "servers", "all")
	return cmd
}
