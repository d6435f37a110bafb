package connector

import (
	"context"
	"io"
	"sync"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// ProcessorConnection adapts a graph.Processor to Connection. Every concrete
// connector builds its connections this way.
type ProcessorConnection struct {
	name   string
	policy graph.CachePolicy
	proc   graph.Processor
	closer io.Closer

	mu     sync.Mutex
	closed bool
}

// NewProcessorConnection returns a connection for source name that executes
// commands on proc. closer, if non-nil, is closed with the connection.
func NewProcessorConnection(name string, policy graph.CachePolicy, proc graph.Processor, closer io.Closer) *ProcessorConnection {
	return &ProcessorConnection{name: name, policy: policy, proc: proc, closer: closer}
}

func (c *ProcessorConnection) SourceName() string                  { return c.name }
func (c *ProcessorConnection) DefaultCachePolicy() graph.CachePolicy { return c.policy }

func (c *ProcessorConnection) Execute(ctx context.Context, cmd graph.Command) error {
	if err := c.check(); err != nil {
		return err
	}
	graph.Dispatch(ctx, c.proc, cmd)
	return ctx.Err()
}

// ExecuteBatch runs the commands in order. It stops at the first
// cancellation; commands not reached record the context error.
func (c *ProcessorConnection) ExecuteBatch(ctx context.Context, cmds []graph.Command) error {
	if err := c.check(); err != nil {
		return err
	}
	for i, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			for _, rest := range cmds[i:] {
				rest.SetError(err)
			}
			return err
		}
		graph.Dispatch(ctx, c.proc, cmd)
	}
	return ctx.Err()
}

func (c *ProcessorConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *ProcessorConnection) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &SourceError{Source: c.name, Op: "execute", Err: ErrClosed}
	}
	return nil
}

var _ Connection = (*ProcessorConnection)(nil)
