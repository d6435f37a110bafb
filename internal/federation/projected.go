package federation

import (
	"fmt"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// mapper translates between the federated namespace and one source's
// namespace through a projection.
type mapper struct {
	proj *Projection
}

func (m mapper) toSource(repo graph.Path) (graph.Path, error) {
	paths := m.proj.PathsInSource(repo)
	if len(paths) == 0 {
		return graph.Root, fmt.Errorf("%s in source %s: %w", repo, m.proj.SourceName(), ErrNotProjected)
	}
	return paths[0], nil
}

// toRepository maps a source path back, preferring hint when the source
// path appears at several repository locations.
func (m mapper) toRepository(src, hint graph.Path) (graph.Path, bool) {
	paths := m.proj.PathsInRepository(src)
	if len(paths) == 0 {
		return graph.Root, false
	}
	for _, p := range paths {
		if p.Equal(hint) {
			return p, true
		}
	}
	return paths[0], true
}

// visibleChild reports whether a source child is projected at all; children
// under a rule exception are hidden.
func (m mapper) visibleChild(srcParent graph.Path, seg graph.Segment) bool {
	return len(m.proj.PathsInRepository(srcParent.Child(seg))) > 0
}

// Project wraps cmd so that it can be executed against proj's source: path
// accessors report source paths and reported paths are translated back.
// It fails with ErrNotProjected when a path the command needs is outside the
// projection.
func Project(cmd graph.Command, proj *Projection) (graph.Command, error) {
	m := mapper{proj: proj}
	var (
		w  graph.Command
		ok bool
	)
	switch cmd.Kind() {
	case graph.KindReadNode:
		var c graph.ReadNodeCommand
		if c, ok = cmd.(graph.ReadNodeCommand); ok {
			w = &projectedReadNode{ReadNodeCommand: c, m: m}
		}
	case graph.KindReadChildren:
		var c graph.ReadChildrenCommand
		if c, ok = cmd.(graph.ReadChildrenCommand); ok {
			w = &projectedReadChildren{ReadChildrenCommand: c, m: m}
		}
	case graph.KindReadProperties:
		var c graph.ReadPropertiesCommand
		if c, ok = cmd.(graph.ReadPropertiesCommand); ok {
			w = &projectedReadProperties{ReadPropertiesCommand: c, m: m}
		}
	case graph.KindReadBranch:
		var c graph.ReadBranchCommand
		if c, ok = cmd.(graph.ReadBranchCommand); ok {
			w = &projectedReadBranch{ReadBranchCommand: c, m: m}
		}
	case graph.KindCreateNode:
		var c graph.CreateNodeCommand
		if c, ok = cmd.(graph.CreateNodeCommand); ok {
			under, err := m.toSource(c.Under())
			if err != nil {
				return nil, err
			}
			return &projectedCreateNode{CreateNodeCommand: c, m: m, under: under}, nil
		}
	case graph.KindUpdateProperties:
		var c graph.UpdatePropertiesCommand
		if c, ok = cmd.(graph.UpdatePropertiesCommand); ok {
			w = &projectedUpdateProperties{UpdatePropertiesCommand: c, m: m}
		}
	case graph.KindDeleteBranch:
		var c graph.DeleteBranchCommand
		if c, ok = cmd.(graph.DeleteBranchCommand); ok {
			w = &projectedDeleteBranch{DeleteBranchCommand: c}
		}
	case graph.KindPutNode:
		var c graph.PutNodeCommand
		if c, ok = cmd.(graph.PutNodeCommand); ok {
			w = &projectedPutNode{PutNodeCommand: c, m: m}
		}
	case graph.KindMoveBranch, graph.KindCopyBranch, graph.KindCopyNode:
		return projectRelocation(cmd, m)
	}
	if !ok {
		return nil, graph.ErrUnsupported
	}
	// Every remaining wrapper addresses a single node through At().
	at, err := m.toSource(cmd.(interface{ At() graph.Path }).At())
	if err != nil {
		return nil, err
	}
	w.(interface{ setAt(graph.Path) }).setAt(at)
	return w, nil
}

func projectRelocation(cmd graph.Command, m mapper) (graph.Command, error) {
	r, ok := cmd.(interface {
		From() graph.Path
		Into() graph.Path
	})
	if !ok {
		return nil, graph.ErrUnsupported
	}
	from, err := m.toSource(r.From())
	if err != nil {
		return nil, err
	}
	into, err := m.toSource(r.Into())
	if err != nil {
		return nil, err
	}
	rel := projectedRelocation{m: m, from: from, into: into, hint: r.Into()}
	switch cmd.Kind() {
	case graph.KindMoveBranch:
		if c, ok := cmd.(graph.MoveBranchCommand); ok {
			return &projectedMoveBranch{MoveBranchCommand: c, projectedRelocation: rel}, nil
		}
	case graph.KindCopyBranch:
		if c, ok := cmd.(graph.CopyBranchCommand); ok {
			return &projectedCopyBranch{CopyBranchCommand: c, projectedRelocation: rel}, nil
		}
	case graph.KindCopyNode:
		if c, ok := cmd.(graph.CopyNodeCommand); ok {
			return &projectedCopyNode{CopyNodeCommand: c, projectedRelocation: rel}, nil
		}
	}
	return nil, graph.ErrUnsupported
}

// atPath is embedded by wrappers that address one node.
type atPath struct {
	at graph.Path
}

func (a *atPath) setAt(p graph.Path) { a.at = p }

type projectedReadNode struct {
	graph.ReadNodeCommand
	atPath
	m mapper
}

func (w *projectedReadNode) At() graph.Path { return w.at }

func (w *projectedReadNode) SetActualPath(p graph.Path) {
	if rp, ok := w.m.toRepository(p, w.ReadNodeCommand.At()); ok {
		w.ReadNodeCommand.SetActualPath(rp)
	}
}

func (w *projectedReadNode) AddChild(seg graph.Segment) {
	if w.m.visibleChild(w.at, seg) {
		w.ReadNodeCommand.AddChild(seg)
	}
}

type projectedReadChildren struct {
	graph.ReadChildrenCommand
	atPath
	m mapper
}

func (w *projectedReadChildren) At() graph.Path { return w.at }

func (w *projectedReadChildren) SetActualPath(p graph.Path) {
	if rp, ok := w.m.toRepository(p, w.ReadChildrenCommand.At()); ok {
		w.ReadChildrenCommand.SetActualPath(rp)
	}
}

func (w *projectedReadChildren) AddChild(seg graph.Segment) {
	if w.m.visibleChild(w.at, seg) {
		w.ReadChildrenCommand.AddChild(seg)
	}
}

type projectedReadProperties struct {
	graph.ReadPropertiesCommand
	atPath
	m mapper
}

func (w *projectedReadProperties) At() graph.Path { return w.at }

func (w *projectedReadProperties) SetActualPath(p graph.Path) {
	if rp, ok := w.m.toRepository(p, w.ReadPropertiesCommand.At()); ok {
		w.ReadPropertiesCommand.SetActualPath(rp)
	}
}

type projectedReadBranch struct {
	graph.ReadBranchCommand
	atPath
	m mapper
}

func (w *projectedReadBranch) At() graph.Path { return w.at }

func (w *projectedReadBranch) SetActualPath(p graph.Path) {
	if rp, ok := w.m.toRepository(p, w.ReadBranchCommand.At()); ok {
		w.ReadBranchCommand.SetActualPath(rp)
	}
}

// AddNode drops nodes under rule exceptions and hides their segments from
// the parent's child list.
func (w *projectedReadBranch) AddNode(p graph.Path, props map[string]graph.Property, children []graph.Segment) {
	rp, ok := w.m.toRepository(p, graph.Root)
	if !ok {
		return
	}
	visible := make([]graph.Segment, 0, len(children))
	for _, c := range children {
		if w.m.visibleChild(p, c) {
			visible = append(visible, c)
		}
	}
	w.ReadBranchCommand.AddNode(rp, props, visible)
}

type projectedCreateNode struct {
	graph.CreateNodeCommand
	m     mapper
	under graph.Path
}

func (w *projectedCreateNode) Under() graph.Path { return w.under }

func (w *projectedCreateNode) SetActualPath(p graph.Path) {
	hint := w.CreateNodeCommand.Under().ChildNamed(w.Name())
	if rp, ok := w.m.toRepository(p, hint); ok {
		w.CreateNodeCommand.SetActualPath(rp)
	}
}

type projectedUpdateProperties struct {
	graph.UpdatePropertiesCommand
	atPath
	m mapper
}

func (w *projectedUpdateProperties) At() graph.Path { return w.at }

func (w *projectedUpdateProperties) SetActualPath(p graph.Path) {
	if rp, ok := w.m.toRepository(p, w.UpdatePropertiesCommand.At()); ok {
		w.UpdatePropertiesCommand.SetActualPath(rp)
	}
}

type projectedDeleteBranch struct {
	graph.DeleteBranchCommand
	atPath
}

func (w *projectedDeleteBranch) At() graph.Path { return w.at }

type projectedPutNode struct {
	graph.PutNodeCommand
	atPath
	m mapper
}

func (w *projectedPutNode) At() graph.Path { return w.at }

func (w *projectedPutNode) SetActualPath(p graph.Path) {
	if rp, ok := w.m.toRepository(p, w.PutNodeCommand.At()); ok {
		w.PutNodeCommand.SetActualPath(rp)
	}
}

type projectedRelocation struct {
	m    mapper
	from graph.Path
	into graph.Path
	hint graph.Path
}

func (r projectedRelocation) From() graph.Path { return r.from }
func (r projectedRelocation) Into() graph.Path { return r.into }

type projectedMoveBranch struct {
	graph.MoveBranchCommand
	projectedRelocation
}

func (w *projectedMoveBranch) From() graph.Path { return w.projectedRelocation.From() }
func (w *projectedMoveBranch) Into() graph.Path { return w.projectedRelocation.Into() }

func (w *projectedMoveBranch) SetActualPath(p graph.Path) {
	hint := w.hint.ChildNamed(graph.TargetName(w.MoveBranchCommand.From(), w.NewName()))
	if rp, ok := w.m.toRepository(p, hint); ok {
		w.MoveBranchCommand.SetActualPath(rp)
	}
}

type projectedCopyBranch struct {
	graph.CopyBranchCommand
	projectedRelocation
}

func (w *projectedCopyBranch) From() graph.Path { return w.projectedRelocation.From() }
func (w *projectedCopyBranch) Into() graph.Path { return w.projectedRelocation.Into() }

func (w *projectedCopyBranch) SetActualPath(p graph.Path) {
	hint := w.hint.ChildNamed(graph.TargetName(w.CopyBranchCommand.From(), w.NewName()))
	if rp, ok := w.m.toRepository(p, hint); ok {
		w.CopyBranchCommand.SetActualPath(rp)
	}
}

type projectedCopyNode struct {
	graph.CopyNodeCommand
	projectedRelocation
}

func (w *projectedCopyNode) From() graph.Path { return w.projectedRelocation.From() }
func (w *projectedCopyNode) Into() graph.Path { return w.projectedRelocation.Into() }

func (w *projectedCopyNode) SetActualPath(p graph.Path) {
	hint := w.hint.ChildNamed(graph.TargetName(w.CopyNodeCommand.From(), w.NewName()))
	if rp, ok := w.m.toRepository(p, hint); ok {
		w.CopyNodeCommand.SetActualPath(rp)
	}
}

var (
	_ graph.ReadNodeCommand         = (*projectedReadNode)(nil)
	_ graph.ReadChildrenCommand     = (*projectedReadChildren)(nil)
	_ graph.ReadPropertiesCommand   = (*projectedReadProperties)(nil)
	_ graph.ReadBranchCommand       = (*projectedReadBranch)(nil)
	_ graph.CreateNodeCommand       = (*projectedCreateNode)(nil)
	_ graph.UpdatePropertiesCommand = (*projectedUpdateProperties)(nil)
	_ graph.DeleteBranchCommand     = (*projectedDeleteBranch)(nil)
	_ graph.PutNodeCommand          = (*projectedPutNode)(nil)
	_ graph.MoveBranchCommand       = (*projectedMoveBranch)(nil)
	_ graph.CopyBranchCommand       = (*projectedCopyBranch)(nil)
	_ graph.CopyNodeCommand         = (*projectedCopyNode)(nil)
)
