package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/fedgraph/internal/config"
)

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the federation config and print its projections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fed, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			cache, projections, err := config.Projections(fed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "federation %s: %d sources\n", fed.Name, len(fed.Sources))
			if cache != nil {
				fmt.Fprintf(out, "cache %s\n", cache)
			}
			for _, p := range projections {
				fmt.Fprintf(out, "projection %s\n", p)
			}
			return nil
		},
	}
}
