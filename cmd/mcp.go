package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/fedgraph/internal/mcpserver"
)

func newMCPCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the merged tree as MCP tools over stdio",
		Long: "Serve get_node, list_children and set_property as Model Context Protocol tools.\n" +
			"Logs go to stderr; stdout carries the protocol.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, built, err := o.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = built.Close() }()
			return mcpserver.New("fedgraph", version, built.Repository, o.logger).ServeStdio()
		},
	}
}
