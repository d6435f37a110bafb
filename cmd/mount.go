package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/fedgraph/internal/nfsmount"
)

func newMountCmd(o *rootOptions) *cobra.Command {
	var (
		writable bool
		addr     string
		noMount  bool
	)
	cmd := &cobra.Command{
		Use:   "mount [mountpoint]",
		Short: "Expose the merged tree as a filesystem over NFS",
		Long: "Start an NFSv3 server for the merged tree and mount it. Nodes appear as directories\n" +
			"and properties as files. With --no-mount only the server is started and its port printed.",
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !noMount && len(args) == 0 {
				return fmt.Errorf("mountpoint is required unless --no-mount is set")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fed, built, err := o.open(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = built.Close() }()

			fsys := nfsmount.NewFederatedFS(built.Repository, fed, o.logger)
			defer func() { _ = fsys.Close() }()
			fsys.SetWritable(writable)

			srv, err := nfsmount.NewServer(fsys, addr, o.logger)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			if noMount {
				fmt.Fprintf(cmd.OutOrStdout(), "nfs server on port %d\n", srv.Port())
				<-ctx.Done()
				return nil
			}

			mountpoint := args[0]
			if err := os.MkdirAll(mountpoint, 0o755); err != nil {
				return fmt.Errorf("create mountpoint: %w", err)
			}
			if err := nfsmount.Mount(ctx, srv.Port(), mountpoint, writable); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mounted %s at %s\n", fed.Name, mountpoint)
			<-ctx.Done()

			// ctx is already cancelled; unmount on a fresh one.
			if err := nfsmount.Unmount(context.Background(), mountpoint); err != nil {
				o.logger.Warn("unmount failed", slog.String("mountpoint", mountpoint), slog.Any("error", err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&writable, "writable", false, "Allow writes through the mount")
	cmd.Flags().StringVar(&addr, "addr", "", "NFS listen address (default an ephemeral localhost port)")
	cmd.Flags().BoolVar(&noMount, "no-mount", false, "Start the NFS server without mounting it")
	return cmd
}
