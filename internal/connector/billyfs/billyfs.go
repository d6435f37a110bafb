// Package billyfs exposes a billy.Filesystem as a repository. Directories
// and files are nodes; a file's bytes are its fs:content property.
package billyfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Property names describing filesystem nodes. Only ContentProperty can be
// written; the others are derived from the file info.
const (
	KindProperty    = "fs:kind"
	SizeProperty    = "fs:size"
	ModTimeProperty = "fs:modtime"
	ContentProperty = "fs:content"

	KindDir  = "dir"
	KindFile = "file"
)

// ErrSiblingsUnsupported is returned when a command would need two entries
// with the same name in one directory.
var ErrSiblingsUnsupported = errors.New("filesystems cannot hold same-name siblings")

// Processor implements graph.Processor over a billy.Filesystem.
type Processor struct {
	fs billy.Filesystem
	mu sync.RWMutex
}

func NewProcessor(fs billy.Filesystem) *Processor {
	return &Processor{fs: fs}
}

var _ graph.Processor = (*Processor)(nil)

// fsPath maps p onto the filesystem. Paths naming a second or later
// same-name sibling have no counterpart.
func fsPath(p graph.Path) (string, bool) {
	name := "/"
	for _, seg := range p.Segments() {
		if seg.SiblingIndex() != 1 {
			return "", false
		}
		name += seg.Name + "/"
	}
	if len(name) > 1 {
		name = name[:len(name)-1]
	}
	return name, true
}

func (s *Processor) stat(p graph.Path) (os.FileInfo, string, error) {
	name, ok := fsPath(p)
	if !ok {
		return nil, "", s.missing(p)
	}
	fi, err := s.fs.Stat(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, "", s.missing(p)
	}
	if err != nil {
		return nil, "", fmt.Errorf("stat %s: %w", name, err)
	}
	return fi, name, nil
}

func (s *Processor) missing(p graph.Path) error {
	lowest := p.Parent()
	for !lowest.IsRoot() {
		if name, ok := fsPath(lowest); ok {
			if _, err := s.fs.Stat(name); err == nil {
				break
			}
		}
		lowest = lowest.Parent()
	}
	return graph.NotFound(p, lowest)
}

func (s *Processor) statDir(p graph.Path) (string, error) {
	fi, name, err := s.stat(p)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is a file: %w", p, graph.ErrInvalidTarget)
	}
	return name, nil
}

func (s *Processor) properties(fi os.FileInfo, name string, withContent bool) (map[string]graph.Property, error) {
	props := map[string]graph.Property{
		ModTimeProperty: graph.NewProperty(ModTimeProperty, fi.ModTime().UTC().Format(time.RFC3339Nano)),
	}
	if fi.IsDir() {
		props[KindProperty] = graph.NewProperty(KindProperty, KindDir)
		return props, nil
	}
	props[KindProperty] = graph.NewProperty(KindProperty, KindFile)
	props[SizeProperty] = graph.NewProperty(SizeProperty, strconv.FormatInt(fi.Size(), 10))
	if withContent {
		data, err := util.ReadFile(s.fs, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		props[ContentProperty] = graph.NewBinaryProperty(ContentProperty, data)
	}
	return props, nil
}

func (s *Processor) children(fi os.FileInfo, name string) ([]graph.Segment, error) {
	if !fi.IsDir() {
		return nil, nil
	}
	entries, err := s.fs.ReadDir(name)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", name, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	out := make([]graph.Segment, len(entries))
	for i, e := range entries {
		out[i] = graph.NewSegment(e.Name())
	}
	return out, nil
}

func (s *Processor) ReadNode(ctx context.Context, cmd graph.ReadNodeCommand) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, name, err := s.stat(cmd.At())
	if err == nil {
		err = s.readInto(fi, name, true, true, cmd.SetProperty, cmd.AddChild)
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
}

func (s *Processor) ReadChildren(ctx context.Context, cmd graph.ReadChildrenCommand) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, name, err := s.stat(cmd.At())
	if err == nil {
		err = s.readInto(fi, name, false, true, nil, cmd.AddChild)
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
}

func (s *Processor) ReadProperties(ctx context.Context, cmd graph.ReadPropertiesCommand) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, name, err := s.stat(cmd.At())
	if err == nil {
		err = s.readInto(fi, name, true, false, cmd.SetProperty, nil)
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
}

func (s *Processor) readInto(fi os.FileInfo, name string, props, kids bool, setProp func(graph.Property), addChild func(graph.Segment)) error {
	if props {
		m, err := s.properties(fi, name, true)
		if err != nil {
			return err
		}
		for _, p := range m {
			setProp(p)
		}
	}
	if kids {
		segs, err := s.children(fi, name)
		if err != nil {
			return err
		}
		for _, seg := range segs {
			addChild(seg)
		}
	}
	return nil
}

func (s *Processor) ReadBranch(ctx context.Context, cmd graph.ReadBranchCommand) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, name, err := s.stat(cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
	type item struct {
		p     graph.Path
		name  string
		fi    os.FileInfo
		depth int
	}
	queue := []item{{cmd.At(), name, fi, 0}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			cmd.SetError(err)
			return
		}
		it := queue[0]
		queue = queue[1:]
		props, err := s.properties(it.fi, it.name, true)
		if err != nil {
			cmd.SetError(err)
			return
		}
		kids, err := s.children(it.fi, it.name)
		if err != nil {
			cmd.SetError(err)
			return
		}
		cmd.AddNode(it.p, props, kids)
		if cmd.MaxDepth() >= 0 && it.depth >= cmd.MaxDepth() {
			continue
		}
		for _, k := range kids {
			child := s.fs.Join(it.name, k.Name)
			cfi, err := s.fs.Stat(child)
			if err != nil {
				continue
			}
			queue = append(queue, item{it.p.Child(k), child, cfi, it.depth + 1})
		}
	}
}

func (s *Processor) CreateNode(ctx context.Context, cmd graph.CreateNodeCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, err := s.create(cmd.Under(), cmd.Name(), cmd.NodeProperties(), cmd.Conflict())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(target)
}

// create makes a file when props carry content or name the file kind, and a
// directory otherwise.
func (s *Processor) create(under graph.Path, name string, props []graph.Property, conflict graph.ConflictBehavior) (graph.Path, error) {
	dir, err := s.statDir(under)
	if err != nil {
		return graph.Root, err
	}
	target := under.ChildNamed(name)
	full := s.fs.Join(dir, name)
	if _, err := s.fs.Stat(full); err == nil {
		switch conflict {
		case graph.ConflictDoNotReplace:
			return target, nil
		case graph.ConflictUpdate:
			return target, s.update(full, props)
		case graph.ConflictReplace:
			if err := util.RemoveAll(s.fs, full); err != nil {
				return graph.Root, fmt.Errorf("replace %s: %w", full, err)
			}
		default:
			return graph.Root, fmt.Errorf("%s: %w", target, ErrSiblingsUnsupported)
		}
	}
	content, isFile := fileContent(props)
	if isFile {
		err = util.WriteFile(s.fs, full, content, 0o644)
	} else {
		err = s.fs.MkdirAll(full, 0o755)
	}
	if err != nil {
		return graph.Root, fmt.Errorf("create %s: %w", full, err)
	}
	return target, nil
}

func fileContent(props []graph.Property) ([]byte, bool) {
	isFile := false
	var content []byte
	for _, p := range props {
		switch p.Name {
		case KindProperty:
			isFile = p.First() == KindFile
		case ContentProperty:
			isFile = true
			if len(p.Values) > 0 {
				content = p.Values[0]
			}
		}
	}
	return content, isFile
}

// update applies property updates to an existing entry. Derived properties
// are ignored; content can only be set on files.
func (s *Processor) update(name string, props []graph.Property) error {
	for _, p := range props {
		switch p.Name {
		case KindProperty, SizeProperty, ModTimeProperty:
		case ContentProperty:
			fi, err := s.fs.Stat(name)
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return fmt.Errorf("%s is a directory: %w", name, graph.ErrUnsupported)
			}
			var data []byte
			if len(p.Values) > 0 {
				data = p.Values[0]
			}
			if err := util.WriteFile(s.fs, name, data, fi.Mode().Perm()); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		default:
			return fmt.Errorf("property %s on %s: %w", p.Name, name, graph.ErrUnsupported)
		}
	}
	return nil
}

func (s *Processor) UpdateProperties(ctx context.Context, cmd graph.UpdatePropertiesCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, name, err := s.stat(cmd.At())
	if err == nil {
		err = s.update(name, cmd.Updates())
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
}

func (s *Processor) DeleteBranch(ctx context.Context, cmd graph.DeleteBranchCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.At().IsRoot() {
		cmd.SetError(graph.ErrRootOperation)
		return
	}
	_, name, err := s.stat(cmd.At())
	if err == nil {
		err = util.RemoveAll(s.fs, name)
	}
	if err != nil {
		cmd.SetError(err)
	}
}

// relocationTarget resolves the destination of a move or copy and clears
// it according to conflict. done reports that nothing is left to do.
func (s *Processor) relocationTarget(from, into graph.Path, newName string, conflict graph.ConflictBehavior) (src, dst string, target graph.Path, done bool, err error) {
	if from.IsRoot() {
		return "", "", graph.Root, false, graph.ErrRootOperation
	}
	_, src, err = s.stat(from)
	if err != nil {
		return "", "", graph.Root, false, err
	}
	dir, err := s.statDir(into)
	if err != nil {
		return "", "", graph.Root, false, err
	}
	target = into.ChildNamed(graph.TargetName(from, newName))
	dst = s.fs.Join(dir, target.Last().Name)
	if _, err := s.fs.Stat(dst); err == nil {
		switch conflict {
		case graph.ConflictDoNotReplace:
			return src, dst, target, true, nil
		case graph.ConflictReplace:
			if err := util.RemoveAll(s.fs, dst); err != nil {
				return "", "", graph.Root, false, err
			}
		default:
			return "", "", graph.Root, false, fmt.Errorf("%s: %w", target, ErrSiblingsUnsupported)
		}
	}
	return src, dst, target, false, nil
}

func (s *Processor) MoveBranch(ctx context.Context, cmd graph.MoveBranchCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.From().IsAtOrAbove(cmd.Into()) {
		cmd.SetError(fmt.Errorf("move %s into itself: %w", cmd.From(), graph.ErrInvalidTarget))
		return
	}
	src, dst, target, done, err := s.relocationTarget(cmd.From(), cmd.Into(), cmd.NewName(), cmd.Conflict())
	if err == nil && !done {
		err = s.fs.Rename(src, dst)
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(target)
}

func (s *Processor) CopyBranch(ctx context.Context, cmd graph.CopyBranchCommand) {
	s.relocateCopy(cmd, cmd.From(), cmd.Into(), cmd.NewName(), cmd.Conflict(), true)
}

func (s *Processor) CopyNode(ctx context.Context, cmd graph.CopyNodeCommand) {
	s.relocateCopy(cmd, cmd.From(), cmd.Into(), cmd.NewName(), cmd.Conflict(), false)
}

func (s *Processor) relocateCopy(cmd interface {
	graph.Command
	graph.Located
}, from, into graph.Path, newName string, conflict graph.ConflictBehavior, deep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if deep && from.IsAtOrAbove(into) {
		cmd.SetError(fmt.Errorf("copy %s into itself: %w", from, graph.ErrInvalidTarget))
		return
	}
	src, dst, target, done, err := s.relocationTarget(from, into, newName, conflict)
	if err == nil && !done {
		err = s.copy(src, dst, deep)
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(target)
}

func (s *Processor) copy(src, dst string, deep bool) error {
	fi, err := s.fs.Stat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return s.copyFile(src, dst, fi.Mode().Perm())
	}
	if err := s.fs.MkdirAll(dst, fi.Mode().Perm()); err != nil {
		return err
	}
	if !deep {
		return nil
	}
	entries, err := s.fs.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.copy(s.fs.Join(src, e.Name()), s.fs.Join(dst, e.Name()), true); err != nil {
			return err
		}
	}
	return nil
}

func (s *Processor) copyFile(src, dst string, perm os.FileMode) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// PutNode makes the entry at At() match the given state: files take the
// content; directories gain missing children as empty directories and lose
// entries not listed.
func (s *Processor) PutNode(ctx context.Context, cmd graph.PutNodeCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := cmd.At()
	if !at.IsRoot() {
		if _, err := s.statDir(at.Parent()); err != nil {
			cmd.SetError(err)
			return
		}
	}
	name, ok := fsPath(at)
	if !ok {
		cmd.SetError(fmt.Errorf("%s: %w", at, ErrSiblingsUnsupported))
		return
	}
	content, isFile := fileContent(cmd.NodeProperties())
	var err error
	if isFile {
		err = util.WriteFile(s.fs, name, content, 0o644)
	} else {
		err = s.putDir(name, cmd.NodeChildren())
	}
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(at)
}

func (s *Processor) putDir(name string, want []graph.Segment) error {
	if err := s.fs.MkdirAll(name, 0o755); err != nil {
		return err
	}
	keep := make(map[string]bool, len(want))
	for _, seg := range want {
		if seg.SiblingIndex() != 1 {
			return fmt.Errorf("%s/%s: %w", name, seg, ErrSiblingsUnsupported)
		}
		keep[seg.Name] = true
	}
	entries, err := s.fs.ReadDir(name)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !keep[e.Name()] {
			if err := util.RemoveAll(s.fs, s.fs.Join(name, e.Name())); err != nil {
				return err
			}
		}
		delete(keep, e.Name())
	}
	for child := range keep {
		if err := s.fs.MkdirAll(s.fs.Join(name, child), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Source is a ConnectionFactory over a filesystem.
type Source struct {
	name   string
	policy graph.CachePolicy
	proc   *Processor
}

func NewSource(name string, fs billy.Filesystem, policy graph.CachePolicy) *Source {
	return &Source{name: name, policy: policy, proc: NewProcessor(fs)}
}

// NewDirSource serves the host directory dir.
func NewDirSource(name, dir string, policy graph.CachePolicy) *Source {
	return NewSource(name, osfs.New(dir), policy)
}

// NewMemSource serves an empty in-memory filesystem.
func NewMemSource(name string, policy graph.CachePolicy) *Source {
	return NewSource(name, memfs.New(), policy)
}

func (s *Source) Filesystem() billy.Filesystem { return s.proc.fs }
func (s *Source) SourceName() string           { return s.name }

func (s *Source) Connect(ctx context.Context) (connector.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return connector.NewProcessorConnection(s.name, s.policy, s.proc, nil), nil
}

var _ connector.ConnectionFactory = (*Source)(nil)
