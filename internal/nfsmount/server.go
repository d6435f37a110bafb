package nfsmount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"runtime"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// handleCacheSize bounds the file handles the NFS caching handler keeps.
const handleCacheSize = 4096

// Server manages the NFS server lifecycle.
type Server struct {
	listener net.Listener
	port     int
	done     chan struct{}
}

// NewServer starts an NFSv3 server for fs on addr. An empty addr listens
// on an ephemeral localhost port.
func NewServer(fs billy.Filesystem, addr string, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		addr = "localhost:0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nfs listen: %w", err)
	}
	s := &Server{
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
		done:     make(chan struct{}),
	}

	handler := nfshelper.NewCachingHandler(nfshelper.NewNullAuthHandler(fs), handleCacheSize)
	go func() {
		defer close(s.done)
		if err := nfs.Serve(listener, handler); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Error("nfs server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("nfs server listening", slog.String("addr", listener.Addr().String()))
	return s, nil
}

// Port returns the TCP port the NFS server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Close stops the NFS server and waits for the serve loop to exit.
func (s *Server) Close() error {
	err := s.listener.Close()
	<-s.done
	return err
}

// mountArgs builds the mount(8) invocation for the local NFS server.
func mountArgs(goos string, port int, mountpoint string, writable bool) ([]string, error) {
	var opts string
	switch goos {
	case "darwin":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,locallocks,noresvport", port, port)
		if !writable {
			opts += ",rdonly"
		}
	case "linux":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,local_lock=all,nolock", port, port)
		if !writable {
			opts += ",ro"
		}
	default:
		return nil, fmt.Errorf("unsupported OS: %s", goos)
	}
	return []string{"mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint}, nil
}

// Mount runs the system mount command (through sudo) to attach the server
// at mountpoint.
func Mount(ctx context.Context, port int, mountpoint string, writable bool) error {
	args, err := mountArgs(runtime.GOOS, port, mountpoint, writable)
	if err != nil {
		return err
	}
	output, err := exec.CommandContext(ctx, "sudo", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("mount failed: %w\n%s", err, output)
	}
	return nil
}

// Unmount detaches mountpoint.
func Unmount(ctx context.Context, mountpoint string) error {
	if runtime.GOOS == "darwin" {
		// diskutil needs no sudo for user NFS mounts.
		if err := exec.CommandContext(ctx, "diskutil", "unmount", mountpoint).Run(); err == nil {
			return nil
		}
	}
	output, err := exec.CommandContext(ctx, "sudo", "umount", mountpoint).CombinedOutput()
	if err != nil {
		return fmt.Errorf("unmount failed: %w\n%s", err, output)
	}
	return nil
}
