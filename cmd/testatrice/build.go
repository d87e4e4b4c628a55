package main

import (
	"github.com/spf13/cobra"
)

func newCmdBuild(f *Factory, g *globalOptions) *cobra.Command {
	var recreate bool

	cmd := &cobra.Command{
		Use:     "build-environment",
		Aliases: []string{"build"},
		Short:   "Create the images and start only the environment containers",
		Long: `Create all necessary images and start only the environment containers.
Already existing images are reused unless --recreate is passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := f.open(g, nil)
			if err != nil {
				return err
			}
			defer s.close()

			return s.service.BuildEnvironment(cmd.Context(), recreate)
		},
	}

	cmd.Flags().BoolVarP(&recreate, "recreate", "r", false, "Remove the stored images and build them from scratch")
	return cmd
}
