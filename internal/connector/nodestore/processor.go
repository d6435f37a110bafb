package nodestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Processor implements graph.Processor over a Store. The root node always
// exists, even in an empty store.
type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

var _ graph.Processor = (*Processor)(nil)

func load(tx Tx, p graph.Path) (*Record, error) {
	r, err := tx.Get(p)
	if errors.Is(err, graph.ErrNotFound) && p.IsRoot() {
		return newRecord(graph.Root), nil
	}
	return r, err
}

func exists(tx Tx, p graph.Path) (bool, error) {
	_, err := load(tx, p)
	if errors.Is(err, graph.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// missing builds a PathNotFoundError carrying the lowest existing ancestor.
func missing(tx Tx, p graph.Path) error {
	lowest := p.Parent()
	for !lowest.IsRoot() {
		ok, err := exists(tx, lowest)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		lowest = lowest.Parent()
	}
	return graph.NotFound(p, lowest)
}

func get(tx Tx, p graph.Path) (*Record, error) {
	r, err := load(tx, p)
	if errors.Is(err, graph.ErrNotFound) {
		return nil, missing(tx, p)
	}
	return r, err
}

func (s *Processor) ReadNode(ctx context.Context, cmd graph.ReadNodeCommand) {
	err := s.store.View(ctx, func(tx Tx) error {
		r, err := get(tx, cmd.At())
		if err != nil {
			return err
		}
		cmd.SetActualPath(r.Path)
		for _, prop := range r.Properties {
			cmd.SetProperty(prop)
		}
		for _, c := range r.Children {
			cmd.AddChild(c)
		}
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) ReadChildren(ctx context.Context, cmd graph.ReadChildrenCommand) {
	err := s.store.View(ctx, func(tx Tx) error {
		r, err := get(tx, cmd.At())
		if err != nil {
			return err
		}
		cmd.SetActualPath(r.Path)
		for _, c := range r.Children {
			cmd.AddChild(c)
		}
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) ReadProperties(ctx context.Context, cmd graph.ReadPropertiesCommand) {
	err := s.store.View(ctx, func(tx Tx) error {
		r, err := get(tx, cmd.At())
		if err != nil {
			return err
		}
		cmd.SetActualPath(r.Path)
		for _, prop := range r.Properties {
			cmd.SetProperty(prop)
		}
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) ReadBranch(ctx context.Context, cmd graph.ReadBranchCommand) {
	err := s.store.View(ctx, func(tx Tx) error {
		root, err := get(tx, cmd.At())
		if err != nil {
			return err
		}
		cmd.SetActualPath(root.Path)
		type item struct {
			rec   *Record
			depth int
		}
		queue := []item{{root, 0}}
		for len(queue) > 0 {
			it := queue[0]
			queue = queue[1:]
			cmd.AddNode(it.rec.Path, it.rec.Properties, it.rec.Children)
			if cmd.MaxDepth() >= 0 && it.depth >= cmd.MaxDepth() {
				continue
			}
			for _, c := range it.rec.Children {
				child, err := tx.Get(it.rec.Path.Child(c))
				if errors.Is(err, graph.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				queue = append(queue, item{child, it.depth + 1})
			}
		}
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) CreateNode(ctx context.Context, cmd graph.CreateNodeCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		children, hasChildren := cmd.NodeChildren()
		target, _, err := create(tx, cmd.Under(), cmd.Name(), cmd.NodeProperties(), children, hasChildren, cmd.Conflict())
		if err != nil {
			return err
		}
		cmd.SetActualPath(target)
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) UpdateProperties(ctx context.Context, cmd graph.UpdatePropertiesCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		r, err := get(tx, cmd.At())
		if err != nil {
			return err
		}
		for _, u := range cmd.Updates() {
			if u.IsEmpty() {
				delete(r.Properties, u.Name)
				continue
			}
			r.Properties[u.Name] = u
		}
		if err := tx.Put(r); err != nil {
			return err
		}
		cmd.SetActualPath(r.Path)
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) DeleteBranch(ctx context.Context, cmd graph.DeleteBranchCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		return deleteBranch(tx, cmd.At())
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) MoveBranch(ctx context.Context, cmd graph.MoveBranchCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		from := cmd.From()
		if from.IsRoot() {
			return graph.ErrRootOperation
		}
		name := graph.TargetName(from, cmd.NewName())
		if cmd.Into().Equal(from.Parent()) && name == from.Last().Name && from.Last().SiblingIndex() == 1 && cmd.Conflict() != graph.ConflictAppend {
			if _, err := get(tx, from); err != nil {
				return err
			}
			cmd.SetActualPath(from)
			return nil
		}
		target, applied, err := copyBranch(tx, from, cmd.Into(), cmd.NewName(), cmd.Conflict(), true)
		if err != nil {
			return err
		}
		if applied {
			if err := deleteBranch(tx, from); err != nil {
				return err
			}
		}
		cmd.SetActualPath(target)
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) CopyBranch(ctx context.Context, cmd graph.CopyBranchCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		target, _, err := copyBranch(tx, cmd.From(), cmd.Into(), cmd.NewName(), cmd.Conflict(), true)
		if err != nil {
			return err
		}
		cmd.SetActualPath(target)
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) CopyNode(ctx context.Context, cmd graph.CopyNodeCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		target, _, err := copyBranch(tx, cmd.From(), cmd.Into(), cmd.NewName(), cmd.Conflict(), false)
		if err != nil {
			return err
		}
		cmd.SetActualPath(target)
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

func (s *Processor) PutNode(ctx context.Context, cmd graph.PutNodeCommand) {
	err := s.store.Update(ctx, func(tx Tx) error {
		at := cmd.At()
		r, err := load(tx, at)
		if errors.Is(err, graph.ErrNotFound) {
			parent, perr := get(tx, at.Parent())
			if perr != nil {
				return perr
			}
			if !containsSegment(parent.Children, at.Last()) {
				parent.Children = append(parent.Children, at.Last())
				if err := tx.Put(parent); err != nil {
					return err
				}
			}
			r, err = newRecord(at), nil
		}
		if err != nil {
			return err
		}
		r.Properties = propertyMap(cmd.NodeProperties())
		if err := reconcile(tx, r, cmd.NodeChildren()); err != nil {
			return err
		}
		if err := tx.Put(r); err != nil {
			return err
		}
		cmd.SetActualPath(at)
		return nil
	})
	if err != nil {
		cmd.SetError(err)
	}
}

// create adds (or, depending on conflict, updates) the child name under
// parent. applied is false when an existing node was left untouched.
func create(tx Tx, under graph.Path, name string, props []graph.Property, children []graph.Segment, hasChildren bool, conflict graph.ConflictBehavior) (graph.Path, bool, error) {
	if name == "" {
		return graph.Root, false, fmt.Errorf("create under %s: empty name: %w", under, graph.ErrInvalidTarget)
	}
	parent, err := get(tx, under)
	if err != nil {
		return graph.Root, false, err
	}
	seg, found := firstNamed(parent.Children, name)
	if !found {
		seg = graph.NewSegment(name)
	} else {
		target := under.Child(seg)
		switch conflict {
		case graph.ConflictDoNotReplace:
			return target, false, nil
		case graph.ConflictUpdate:
			r, err := load(tx, target)
			if errors.Is(err, graph.ErrNotFound) {
				r, err = newRecord(target), nil
			}
			if err != nil {
				return graph.Root, false, err
			}
			r.Properties = propertyMap(props)
			if hasChildren {
				if err := reconcile(tx, r, children); err != nil {
					return graph.Root, false, err
				}
			}
			return target, true, tx.Put(r)
		case graph.ConflictReplace:
			if err := deleteSubtree(tx, target); err != nil {
				return graph.Root, false, err
			}
			r := newRecord(target)
			r.Properties = propertyMap(props)
			if hasChildren {
				if err := reconcile(tx, r, children); err != nil {
					return graph.Root, false, err
				}
			}
			return target, true, tx.Put(r)
		default:
			seg = graph.Segment{Name: name, Index: nextIndex(parent.Children, name)}
		}
	}
	target := under.Child(seg)
	r := newRecord(target)
	r.Properties = propertyMap(props)
	if hasChildren {
		if err := reconcile(tx, r, children); err != nil {
			return graph.Root, false, err
		}
	}
	if err := tx.Put(r); err != nil {
		return graph.Root, false, err
	}
	parent.Children = append(parent.Children, seg)
	if err := tx.Put(parent); err != nil {
		return graph.Root, false, err
	}
	return target, true, nil
}

// reconcile makes r's child list exactly want: children not wanted are
// deleted with their branches, new ones get empty placeholder records.
func reconcile(tx Tx, r *Record, want []graph.Segment) error {
	for _, have := range r.Children {
		if !containsSegment(want, have) {
			if err := deleteSubtree(tx, r.Path.Child(have)); err != nil {
				return err
			}
		}
	}
	for _, w := range want {
		p := r.Path.Child(w)
		ok, err := exists(tx, p)
		if err != nil {
			return err
		}
		if !ok {
			if err := tx.Put(newRecord(p)); err != nil {
				return err
			}
		}
	}
	r.Children = append([]graph.Segment(nil), want...)
	return nil
}

func deleteBranch(tx Tx, at graph.Path) error {
	if at.IsRoot() {
		return graph.ErrRootOperation
	}
	if _, err := get(tx, at); err != nil {
		return err
	}
	if err := deleteSubtree(tx, at); err != nil {
		return err
	}
	parent, err := load(tx, at.Parent())
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil
		}
		return err
	}
	kept := parent.Children[:0]
	for _, c := range parent.Children {
		if !c.Equal(at.Last()) {
			kept = append(kept, c)
		}
	}
	parent.Children = kept
	return tx.Put(parent)
}

func deleteSubtree(tx Tx, at graph.Path) error {
	r, err := tx.Get(at)
	if errors.Is(err, graph.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, c := range r.Children {
		if err := deleteSubtree(tx, at.Child(c)); err != nil {
			return err
		}
	}
	return tx.Delete(at)
}

func copyBranch(tx Tx, from, into graph.Path, newName string, conflict graph.ConflictBehavior, deep bool) (graph.Path, bool, error) {
	src, err := get(tx, from)
	if err != nil {
		return graph.Root, false, err
	}
	if deep && from.IsAtOrAbove(into) {
		return graph.Root, false, fmt.Errorf("copy %s into its own branch %s: %w", from, into, graph.ErrInvalidTarget)
	}
	props := make([]graph.Property, 0, len(src.Properties))
	for _, p := range src.Properties {
		props = append(props, p)
	}
	target, applied, err := create(tx, into, graph.TargetName(from, newName), props, src.Children, deep, conflict)
	if err != nil || !applied || !deep {
		return target, applied, err
	}
	for _, c := range src.Children {
		if err := copySubtree(tx, from.Child(c), target.Child(c)); err != nil {
			return graph.Root, false, err
		}
	}
	return target, true, nil
}

func copySubtree(tx Tx, from, to graph.Path) error {
	src, err := tx.Get(from)
	if errors.Is(err, graph.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	dst := &Record{Path: to, Properties: propertyMapFrom(src.Properties), Children: append([]graph.Segment(nil), src.Children...)}
	if err := tx.Put(dst); err != nil {
		return err
	}
	for _, c := range src.Children {
		if err := copySubtree(tx, from.Child(c), to.Child(c)); err != nil {
			return err
		}
	}
	return nil
}

func propertyMap(props []graph.Property) map[string]graph.Property {
	m := make(map[string]graph.Property, len(props))
	for _, p := range props {
		if !p.IsEmpty() {
			m[p.Name] = p
		}
	}
	return m
}

func propertyMapFrom(src map[string]graph.Property) map[string]graph.Property {
	m := make(map[string]graph.Property, len(src))
	for name, p := range src {
		m[name] = p.Clone()
	}
	return m
}

func firstNamed(segs []graph.Segment, name string) (graph.Segment, bool) {
	for _, s := range segs {
		if s.Name == name {
			return s, true
		}
	}
	return graph.Segment{}, false
}

func nextIndex(segs []graph.Segment, name string) int {
	highest := 0
	for _, s := range segs {
		if s.Name == name && s.SiblingIndex() > highest {
			highest = s.SiblingIndex()
		}
	}
	return highest + 1
}

func containsSegment(segs []graph.Segment, seg graph.Segment) bool {
	for _, s := range segs {
		if s.Equal(seg) {
			return true
		}
	}
	return false
}
