package federation

import (
	"context"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Session is the client-facing API of an executor. A Session is used by one
// goroutine at a time.
type Session interface {
	GetNode(ctx context.Context, p graph.Path) (*graph.Node, error)
	GetChildren(ctx context.Context, p graph.Path) ([]graph.Segment, error)
	GetProperties(ctx context.Context, p graph.Path) (map[string]graph.Property, error)
	RecordBranch(ctx context.Context, p graph.Path, maxDepth int) ([]*graph.Node, error)

	CreateNode(ctx context.Context, under graph.Path, name string, conflict graph.ConflictBehavior, props ...graph.Property) (graph.Path, error)
	SetProperties(ctx context.Context, p graph.Path, props ...graph.Property) error
	DeleteBranch(ctx context.Context, p graph.Path) error
	MoveBranch(ctx context.Context, from, into graph.Path, newName string, conflict graph.ConflictBehavior) (graph.Path, error)
	CopyBranch(ctx context.Context, from, into graph.Path, newName string, conflict graph.ConflictBehavior) (graph.Path, error)
	CopyNode(ctx context.Context, from, into graph.Path, newName string, conflict graph.ConflictBehavior) (graph.Path, error)

	// Execute runs an arbitrary command; request errors are on the command.
	Execute(ctx context.Context, cmd graph.Command) error
	Close() error
}

// ops implements the command-building half of Session on top of Execute.
type ops struct {
	exec func(ctx context.Context, cmd graph.Command) error
}

func (o ops) run(ctx context.Context, cmd graph.Command) error {
	if err := o.exec(ctx, cmd); err != nil {
		return err
	}
	return cmd.Err()
}

func (o ops) GetChildren(ctx context.Context, p graph.Path) ([]graph.Segment, error) {
	cmd := graph.NewReadChildren(p)
	if err := o.run(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.Children(), nil
}

func (o ops) GetProperties(ctx context.Context, p graph.Path) (map[string]graph.Property, error) {
	cmd := graph.NewReadProperties(p)
	if err := o.run(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.Properties(), nil
}

func (o ops) RecordBranch(ctx context.Context, p graph.Path, maxDepth int) ([]*graph.Node, error) {
	cmd := graph.NewReadBranch(p, maxDepth)
	if err := o.run(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd.Nodes(), nil
}

func (o ops) CreateNode(ctx context.Context, under graph.Path, name string, conflict graph.ConflictBehavior, props ...graph.Property) (graph.Path, error) {
	cmd := graph.NewCreateNode(under, name, conflict, props...)
	if err := o.run(ctx, cmd); err != nil {
		return graph.Root, err
	}
	return actualOr(cmd, under.ChildNamed(name)), nil
}

func (o ops) SetProperties(ctx context.Context, p graph.Path, props ...graph.Property) error {
	return o.run(ctx, graph.NewUpdateProperties(p, props...))
}

func (o ops) DeleteBranch(ctx context.Context, p graph.Path) error {
	return o.run(ctx, graph.NewDeleteBranch(p))
}

func (o ops) MoveBranch(ctx context.Context, from, into graph.Path, newName string, conflict graph.ConflictBehavior) (graph.Path, error) {
	cmd := graph.NewMoveBranch(from, into, newName, conflict)
	if err := o.run(ctx, cmd); err != nil {
		return graph.Root, err
	}
	return actualOr(cmd, into.ChildNamed(graph.TargetName(from, newName))), nil
}

func (o ops) CopyBranch(ctx context.Context, from, into graph.Path, newName string, conflict graph.ConflictBehavior) (graph.Path, error) {
	cmd := graph.NewCopyBranch(from, into, newName, conflict)
	if err := o.run(ctx, cmd); err != nil {
		return graph.Root, err
	}
	return actualOr(cmd, into.ChildNamed(graph.TargetName(from, newName))), nil
}

func (o ops) CopyNode(ctx context.Context, from, into graph.Path, newName string, conflict graph.ConflictBehavior) (graph.Path, error) {
	cmd := graph.NewCopyNode(from, into, newName, conflict)
	if err := o.run(ctx, cmd); err != nil {
		return graph.Root, err
	}
	return actualOr(cmd, into.ChildNamed(graph.TargetName(from, newName))), nil
}

func actualOr(l graph.Located, fallback graph.Path) graph.Path {
	if p, ok := l.ActualPath(); ok {
		return p
	}
	return fallback
}
