package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// nodeNamespace seeds the name-based identifiers of nodes read through a
// SingleExecutor.
var nodeNamespace = uuid.MustParse("6f1c6a52-3a0e-4d8e-9b57-2a4f1e0c9d11")

// SingleExecutor serves a federation of exactly one source with one rule.
// Nothing is merged or cached: every command is translated through the
// projection and sent to the source.
type SingleExecutor struct {
	ops

	env       Environment
	connector Connector
	proj      *Projection
	conn      connector.Connection
	closed    bool
}

var _ Session = (*SingleExecutor)(nil)

func NewSingleExecutor(c Connector, proj *Projection, env Environment) (*SingleExecutor, error) {
	if proj == nil {
		return nil, ErrNoSources
	}
	if len(proj.Rules()) != 1 {
		return nil, fmt.Errorf("source %s has %d rules: %w", proj.SourceName(), len(proj.Rules()), ErrSingleRuleRequired)
	}
	e := &SingleExecutor{env: env.withDefaults(), connector: c, proj: proj}
	e.ops = ops{exec: e.Execute}
	return e, nil
}

func (e *SingleExecutor) SourceNames() []string { return []string{e.proj.SourceName()} }

// Execute translates cmd into the source's namespace and runs it there.
func (e *SingleExecutor) Execute(ctx context.Context, cmd graph.Command) error {
	if e.closed {
		return ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		cmd.SetError(err)
		return err
	}
	if !cmd.Kind().IsRead() && e.proj.ReadOnly() {
		cmd.SetError(fmt.Errorf("source %s: %w", e.proj.SourceName(), graph.ErrReadOnly))
		return nil
	}
	w, err := Project(cmd, e.proj)
	if err != nil {
		if errors.Is(err, ErrNotProjected) && e.placeholder(cmd) {
			return nil
		}
		cmd.SetError(err)
		return nil
	}
	conn, err := e.connection(ctx)
	if err != nil {
		return err
	}
	if cmd.Kind().IsRead() {
		e.env.Metrics.SourceFetch(e.proj.SourceName())
	} else {
		e.env.Metrics.Write(e.proj.SourceName(), cmd.Kind().String())
	}
	return conn.Execute(ctx, w)
}

// placeholder answers a read of a path above the projection's top-level
// path with the children leading down to it.
func (e *SingleExecutor) placeholder(cmd graph.Command) bool {
	switch cmd.Kind() {
	case graph.KindReadNode, graph.KindReadChildren, graph.KindReadProperties:
	default:
		return false
	}
	a, ok := cmd.(interface{ At() graph.Path })
	if !ok {
		return false
	}
	at := a.At()
	kids := e.proj.ChildrenTowardTopLevel(at)
	if len(kids) == 0 && !at.IsRoot() {
		return false
	}
	if l, ok := cmd.(graph.Located); ok {
		l.SetActualPath(at)
	}
	if c, ok := cmd.(graph.ReadChildrenCommand); ok {
		for _, seg := range kids {
			c.AddChild(seg)
		}
	}
	return true
}

// GetNode reads p from the source. Nodes without a stored identifier get
// one derived from the source name and path, so it is stable across reads.
func (e *SingleExecutor) GetNode(ctx context.Context, p graph.Path) (*graph.Node, error) {
	cmd := graph.NewReadNode(p)
	if err := e.run(ctx, cmd); err != nil {
		return nil, err
	}
	n := cmd.Node()
	n.UUID = uuid.NewSHA1(nodeNamespace, []byte(e.proj.SourceName()+":"+n.Path.String()))
	if prop, ok := n.Property(graph.UUIDProperty); ok {
		if id, err := uuid.Parse(prop.First()); err == nil {
			n.UUID = id
		}
	}
	return n.Public(), nil
}

func (e *SingleExecutor) connection(ctx context.Context) (connector.Connection, error) {
	if e.conn != nil {
		return e.conn, nil
	}
	conn, err := e.connector.Connect(ctx, e.proj.SourceName())
	if err != nil {
		return nil, err
	}
	e.conn = conn
	return conn, nil
}

// Close closes the source connection. A failure is logged, not returned.
func (e *SingleExecutor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.conn == nil {
		return nil
	}
	if err := e.conn.Close(); err != nil {
		e.env.Logger.Warn("closing source connection", "source", e.proj.SourceName(), "err", err)
		e.env.Metrics.CloseFailure(e.proj.SourceName())
	}
	e.conn = nil
	return nil
}

// NewSession picks the executor for a federation: a SingleExecutor when
// there is no cache and one source with one rule, an Executor otherwise.
func NewSession(c Connector, cache *Projection, projections []*Projection, env Environment) (Session, error) {
	if cache == nil && len(projections) == 1 && projections[0] != nil && len(projections[0].Rules()) == 1 {
		return NewSingleExecutor(c, projections[0], env)
	}
	return NewExecutor(c, cache, projections, env)
}
