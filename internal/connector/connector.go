// Package connector defines how the federation talks to backing repositories.
// A Connection executes graph commands against one named source; a
// ConnectionFactory opens connections; a Registry looks factories up by name.
package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/fedgraph/internal/graph"
)

var (
	// ErrSourceUnavailable marks a source that could not be reached. The
	// registry retries Connect while this is the cause.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrReadOnly is returned for writes to a read-only source.
	ErrReadOnly = graph.ErrReadOnly
	// ErrClosed is returned when a closed connection is used.
	ErrClosed = errors.New("connection closed")
	// ErrUnknownSource is returned when no factory is registered for a name.
	ErrUnknownSource = errors.New("unknown source")
)

// SourceError attributes a failure to a source and operation.
type SourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Connection is an open session with one source.
//
// Execute and ExecuteBatch return an error only when the transport failed;
// request-level failures (missing node, read-only, ...) are recorded on each
// command.
type Connection interface {
	SourceName() string
	DefaultCachePolicy() graph.CachePolicy
	Execute(ctx context.Context, cmd graph.Command) error
	ExecuteBatch(ctx context.Context, cmds []graph.Command) error
	Close() error
}

// ConnectionFactory opens connections to a single named source.
type ConnectionFactory interface {
	SourceName() string
	Connect(ctx context.Context) (Connection, error)
}

// FactoryFunc adapts a function to ConnectionFactory.
type FactoryFunc struct {
	Name string
	Fn   func(ctx context.Context) (Connection, error)
}

func (f FactoryFunc) SourceName() string { return f.Name }

func (f FactoryFunc) Connect(ctx context.Context) (Connection, error) {
	return f.Fn(ctx)
}
