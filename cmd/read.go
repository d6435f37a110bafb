package cmd

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
)

func newGetCmd(o *rootOptions) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "get [path]",
		Short: "Print a merged node as JSON",
		Long:  "Print a merged node as JSON. With --depth, print the branch below it breadth first (-1 for unlimited).",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePathArg(args)
			if err != nil {
				return err
			}
			_, built, err := o.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = built.Close() }()

			withBranch := cmd.Flags().Changed("depth")
			return built.Repository.Do(cmd.Context(), func(ctx context.Context, s federation.Session) error {
				if !withBranch {
					n, err := s.GetNode(ctx, p)
					if err != nil {
						return err
					}
					return writeJSON(cmd.OutOrStdout(), api.NewNode(n))
				}
				nodes, err := s.RecordBranch(ctx, p, depth)
				if err != nil {
					return err
				}
				out := make([]api.Node, len(nodes))
				for i, n := range nodes {
					out[i] = api.NewNode(n)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Also print descendants up to this depth (-1 for unlimited)")
	return cmd
}

func newLsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List the children of a node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePathArg(args)
			if err != nil {
				return err
			}
			_, built, err := o.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = built.Close() }()

			return built.Repository.Do(cmd.Context(), func(ctx context.Context, s federation.Session) error {
				children, err := s.GetChildren(ctx, p)
				if err != nil {
					return err
				}
				for _, c := range children {
					fmt.Fprintln(cmd.OutOrStdout(), c.String())
				}
				return nil
			})
		},
	}
}

func newPropsCmd(o *rootOptions) *cobra.Command {
	var remove []string
	cmd := &cobra.Command{
		Use:   "props [path] [name=value ...]",
		Short: "Print or change the properties of a node",
		Long: "Without assignments, print the properties of a node as name=value lines, one per value.\n" +
			"With name=value arguments or --remove, update the node instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePathArg(args)
			if err != nil {
				return err
			}
			var updates []graph.Property
			if len(args) > 1 {
				if updates, err = parseAssignments(args[1:]); err != nil {
					return err
				}
			}
			for _, name := range remove {
				updates = append(updates, graph.Property{Name: name})
			}

			_, built, err := o.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = built.Close() }()

			return built.Repository.Do(cmd.Context(), func(ctx context.Context, s federation.Session) error {
				if len(updates) > 0 {
					return s.SetProperties(ctx, p, updates...)
				}
				props, err := s.GetProperties(ctx, p)
				if err != nil {
					return err
				}
				values, _ := api.EncodeProperties(props)
				names := make([]string, 0, len(values))
				for name := range values {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					for _, v := range values[name] {
						fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, v)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "Property names to remove")
	return cmd
}

// parseAssignments turns name=value arguments into properties. Repeating
// a name adds values.
func parseAssignments(args []string) ([]graph.Property, error) {
	var order []string
	values := map[string][]string{}
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", a)
		}
		if graph.IsReserved(name) {
			return nil, fmt.Errorf("property %s is reserved", name)
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = append(values[name], value)
	}
	out := make([]graph.Property, len(order))
	for i, name := range order {
		out[i] = graph.NewProperty(name, values[name]...)
	}
	return out, nil
}
