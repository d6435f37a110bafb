// Package cmd implements the fedgraph command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/config"
	"github.com/agentic-research/fedgraph/internal/graph"
	"github.com/agentic-research/fedgraph/internal/logging"
	"github.com/agentic-research/fedgraph/internal/metrics"
)

// version is set at build time with -ldflags "-X".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "fedgraph",
		Short:         "Federate hierarchical content repositories into one tree",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.logger = logging.Configure(cmd.ErrOrStderr(), o.logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "fedgraph.hcl", "Federation config (.hcl, .yaml or .json)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error (default $"+logging.EnvLevel+" or info)")

	root.AddCommand(
		newGetCmd(o),
		newLsCmd(o),
		newPropsCmd(o),
		newWarmCmd(o),
		newValidateCmd(o),
		newServeCmd(o),
		newMCPCmd(o),
		newMountCmd(o),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open loads the config and builds the repository. Metrics are recorded
// on reg when it is non-nil.
func (o *rootOptions) open(ctx context.Context, reg prometheus.Registerer) (*api.Federation, *config.Built, error) {
	fed, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	var rec *metrics.Recorder
	if reg != nil {
		if rec, err = metrics.New(reg); err != nil {
			return nil, nil, err
		}
	}
	built, err := config.Build(ctx, fed, config.Options{Logger: o.logger, Metrics: rec})
	if err != nil {
		return nil, nil, err
	}
	return fed, built, nil
}

func parsePathArg(args []string) (graph.Path, error) {
	if len(args) == 0 {
		return graph.Root, nil
	}
	return graph.ParsePath(args[0])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
