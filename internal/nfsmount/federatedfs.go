// Package nfsmount serves a federated repository as a filesystem. Nodes are
// directories and their properties are files inside them. The adapter
// implements billy.Filesystem for use with willscott/go-nfs.
package nfsmount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/fedgraph/api"
	"github.com/agentic-research/fedgraph/internal/federation"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// ConfigFile is the virtual file at the root that shows the federation
// description the mount was built from.
const ConfigFile = "_federation.json"

var errReadOnly = errors.New("read-only filesystem")

// SessionOpener opens federation sessions. *federation.Repository
// satisfies it.
type SessionOpener interface {
	NewSession() (federation.Session, error)
}

// FederatedFS adapts a federated repository to billy.Filesystem.
//
// A session is single-goroutine, so every call is serialised on one shared
// session. Refresh drops it so the next call sees a reconfigured repository.
type FederatedFS struct {
	sessions   SessionOpener
	configJSON []byte
	mountTime  time.Time
	writable   bool
	logger     *slog.Logger

	mu      sync.Mutex
	session federation.Session
}

// NewFederatedFS creates a read-only filesystem over sessions. fed may be
// nil, in which case the root carries no config file.
func NewFederatedFS(sessions SessionOpener, fed *api.Federation, logger *slog.Logger) *FederatedFS {
	if logger == nil {
		logger = slog.Default()
	}
	var cj []byte
	if fed != nil {
		cj, _ = json.MarshalIndent(fed, "", "  ")
		cj = append(cj, '\n')
	}
	return &FederatedFS{
		sessions:   sessions,
		configJSON: cj,
		mountTime:  time.Now(),
		logger:     logger,
	}
}

// SetWritable enables writes. Property files commit when closed.
func (fs *FederatedFS) SetWritable(writable bool) {
	fs.writable = writable
}

// Refresh closes the shared session.
func (fs *FederatedFS) Refresh() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dropSession()
}

// Close releases the shared session.
func (fs *FederatedFS) Close() error {
	return fs.Refresh()
}

func (fs *FederatedFS) dropSession() error {
	if fs.session == nil {
		return nil
	}
	err := fs.session.Close()
	fs.session = nil
	return err
}

func (fs *FederatedFS) withSession(fn func(ctx context.Context, s federation.Session) error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.session == nil {
		s, err := fs.sessions.NewSession()
		if err != nil {
			return err
		}
		fs.session = s
	}
	err := fn(context.Background(), fs.session)
	if errors.Is(err, federation.ErrExecutorClosed) {
		_ = fs.dropSession()
	}
	return err
}

// --- billy.Basic ---

// Create opens a property file for writing, creating the property (with
// an empty value) when the file is closed if it did not exist.
func (fs *FederatedFS) Create(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (fs *FederatedFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *FederatedFS) OpenFile(filename string, flag int, perm os.FileMode) (billy.File, error) {
	filename = cleanPath(filename)
	writing := flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0

	if fs.isConfigFile(filename) {
		if writing {
			return nil, &os.PathError{Op: "open", Path: filename, Err: errReadOnly}
		}
		return &propertyFile{name: ConfigFile, buf: fs.configJSON, readOnly: true}, nil
	}
	if writing && !fs.writable {
		return nil, &os.PathError{Op: "open", Path: filename, Err: errReadOnly}
	}

	var file billy.File
	err := fs.withSession(func(ctx context.Context, s federation.Session) error {
		e, err := resolve(ctx, s, filename)
		if errors.Is(err, graph.ErrNotFound) && flag&os.O_CREATE != 0 {
			return fs.newPropertyFile(ctx, s, filename, &file)
		}
		if err != nil {
			return err
		}
		if !e.isProperty() {
			return errIsDir
		}
		f := &propertyFile{name: filename, readOnly: !writing}
		if !writing || flag&os.O_TRUNC == 0 {
			f.buf = slices.Clone(content(e.property))
		}
		if writing {
			f.commit = fs.committer(e.node.Path, e.property.Name)
		}
		file = f
		return nil
	})
	if err != nil {
		return nil, pathError("open", filename, err)
	}
	return file, nil
}

// newPropertyFile starts a property that does not exist yet on the node
// named by filename's directory.
func (fs *FederatedFS) newPropertyFile(ctx context.Context, s federation.Session, filename string, out *billy.File) error {
	dir, name := filepath.Split(filename)
	if !isFileName(name) {
		return fmt.Errorf("invalid property name %q: %w", name, graph.ErrInvalidTarget)
	}
	e, err := resolve(ctx, s, dir)
	if err != nil {
		return err
	}
	if e.isProperty() {
		return errNotDir
	}
	*out = &propertyFile{name: filename, dirty: true, commit: fs.committer(e.node.Path, name)}
	return nil
}

// committer returns the Close hook that stores content as the single
// value of the property.
func (fs *FederatedFS) committer(node graph.Path, name string) func([]byte) error {
	return func(value []byte) error {
		return fs.withSession(func(ctx context.Context, s federation.Session) error {
			fs.logger.Debug("property write", slog.String("path", node.String()), slog.String("property", name), slog.Int("bytes", len(value)))
			return s.SetProperties(ctx, node, graph.NewBinaryProperty(name, append([]byte{}, value...)))
		})
	}
}

func (fs *FederatedFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

// Rename moves a node (MoveBranch, replacing any node at the target) or
// renames a property, possibly onto another node.
func (fs *FederatedFS) Rename(oldpath, newpath string) error {
	oldpath, newpath = cleanPath(oldpath), cleanPath(newpath)
	if !fs.writable {
		return &os.PathError{Op: "rename", Path: oldpath, Err: errReadOnly}
	}
	if fs.isConfigFile(oldpath) || fs.isConfigFile(newpath) {
		return &os.PathError{Op: "rename", Path: oldpath, Err: errReadOnly}
	}
	dir, name := filepath.Split(newpath)
	err := fs.withSession(func(ctx context.Context, s federation.Session) error {
		from, err := resolve(ctx, s, oldpath)
		if err != nil {
			return err
		}
		to, err := resolve(ctx, s, dir)
		if err != nil {
			return err
		}
		if to.isProperty() {
			return errNotDir
		}
		if !from.isProperty() {
			_, err := s.MoveBranch(ctx, from.node.Path, to.node.Path, name, graph.ConflictReplace)
			return err
		}
		if !isFileName(name) {
			return fmt.Errorf("invalid property name %q: %w", name, graph.ErrInvalidTarget)
		}
		moved := from.property.Clone()
		moved.Name = name
		if to.node.Path.Equal(from.node.Path) {
			if name == from.property.Name {
				return nil
			}
			return s.SetProperties(ctx, from.node.Path, moved, graph.Property{Name: from.property.Name})
		}
		if err := s.SetProperties(ctx, to.node.Path, moved); err != nil {
			return err
		}
		return s.SetProperties(ctx, from.node.Path, graph.Property{Name: from.property.Name})
	})
	if err != nil {
		return pathError("rename", oldpath, err)
	}
	return nil
}

// Remove deletes a node with its branch, or removes a property.
func (fs *FederatedFS) Remove(filename string) error {
	filename = cleanPath(filename)
	if !fs.writable || filename == "/" || fs.isConfigFile(filename) {
		return &os.PathError{Op: "remove", Path: filename, Err: errReadOnly}
	}
	err := fs.withSession(func(ctx context.Context, s federation.Session) error {
		e, err := resolve(ctx, s, filename)
		if err != nil {
			return err
		}
		if e.isProperty() {
			return s.SetProperties(ctx, e.node.Path, graph.Property{Name: e.property.Name})
		}
		return s.DeleteBranch(ctx, e.node.Path)
	})
	if err != nil {
		return pathError("remove", filename, err)
	}
	return nil
}

func (fs *FederatedFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *FederatedFS) TempFile(dir, prefix string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

// ReadDir lists child nodes as directories followed by properties as
// files, sorted by name.
func (fs *FederatedFS) ReadDir(path string) ([]os.FileInfo, error) {
	path = cleanPath(path)
	var infos []os.FileInfo
	err := fs.withSession(func(ctx context.Context, s federation.Session) error {
		e, err := resolve(ctx, s, path)
		if err != nil {
			return err
		}
		if e.isProperty() {
			return errNotDir
		}
		infos = make([]os.FileInfo, 0, len(e.node.Children)+len(e.node.Properties)+1)
		if e.node.Path.IsRoot() && fs.configJSON != nil {
			infos = append(infos, fs.configInfo())
		}
		for _, c := range e.node.Children {
			infos = append(infos, fs.dirInfo(c.String()))
		}
		names := make([]string, 0, len(e.node.Properties))
		for name := range e.node.Properties {
			if isFileName(name) && !(e.node.Path.IsRoot() && fs.configJSON != nil && name == ConfigFile) {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		for _, name := range names {
			infos = append(infos, fs.fileInfo(name, e.node.Properties[name]))
		}
		return nil
	})
	if err != nil {
		return nil, pathError("readdir", path, err)
	}
	return infos, nil
}

// MkdirAll creates every missing node along filename. Existing nodes are
// left alone; a same-name sibling index that does not exist is an error.
func (fs *FederatedFS) MkdirAll(filename string, perm os.FileMode) error {
	filename = cleanPath(filename)
	if !fs.writable {
		return &os.PathError{Op: "mkdir", Path: filename, Err: errReadOnly}
	}
	p, err := graph.ParsePath(filename)
	if err != nil {
		return &os.PathError{Op: "mkdir", Path: filename, Err: err}
	}
	err = fs.withSession(func(ctx context.Context, s federation.Session) error {
		for i, seg := range p.Segments() {
			parent := p.Prefix(i)
			children, err := s.GetChildren(ctx, parent)
			if err != nil {
				return err
			}
			if graph.HasChild(children, seg) {
				continue
			}
			if seg.SiblingIndex() > 1 {
				return graph.NotFound(p, parent)
			}
			if _, err := s.CreateNode(ctx, parent, seg.Name, graph.ConflictDoNotReplace); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return pathError("mkdir", filename, err)
	}
	return nil
}

// --- billy.Symlink ---

func (fs *FederatedFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	if fs.isConfigFile(filename) {
		return fs.configInfo(), nil
	}
	var info os.FileInfo
	err := fs.withSession(func(ctx context.Context, s federation.Session) error {
		e, err := resolve(ctx, s, filename)
		if err != nil {
			return err
		}
		switch {
		case e.isProperty():
			info = fs.fileInfo(e.property.Name, e.property)
		case e.node.Path.IsRoot():
			info = fs.dirInfo("/")
		default:
			info = fs.dirInfo(e.node.Path.Last().String())
		}
		return nil
	})
	if err != nil {
		return nil, pathError("lstat", filename, err)
	}
	return info, nil
}

func (fs *FederatedFS) Symlink(target, link string) error {
	return billy.ErrNotSupported
}

func (fs *FederatedFS) Readlink(link string) (string, error) {
	return "", billy.ErrNotSupported
}

// --- billy.Chroot ---

func (fs *FederatedFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *FederatedFS) Root() string {
	return "/"
}

// --- billy.Capable ---

func (fs *FederatedFS) Capabilities() billy.Capability {
	caps := billy.ReadCapability | billy.SeekCapability
	if fs.writable {
		caps |= billy.WriteCapability | billy.TruncateCapability
	}
	return caps
}

// --- internals ---

var (
	errIsDir  = errors.New("is a directory")
	errNotDir = errors.New("not a directory")
)

// entry is a resolved filesystem path: a node, or one property of a node.
type entry struct {
	node     *graph.Node
	property graph.Property
}

func (e entry) isProperty() bool { return e.property.Name != "" }

// resolve maps a clean filesystem path to a node or a property. The last
// element names a child node when the parent has one, otherwise a
// property of the parent.
func resolve(ctx context.Context, s federation.Session, filename string) (entry, error) {
	filename = cleanPath(filename)
	if filename == "/" {
		n, err := s.GetNode(ctx, graph.Root)
		return entry{node: n}, err
	}
	dir, name := filepath.Split(filename)
	parentPath, err := graph.ParsePath(dir)
	if err != nil {
		return entry{}, graph.NotFound(graph.Root, graph.Root)
	}
	parent, err := s.GetNode(ctx, parentPath)
	if err != nil {
		return entry{}, err
	}
	if seg, err := graph.ParseSegment(name); err == nil && graph.HasChild(parent.Children, seg) {
		n, err := s.GetNode(ctx, parentPath.Child(seg))
		return entry{node: n}, err
	}
	if prop, ok := parent.Properties[name]; ok && isFileName(name) {
		return entry{node: parent, property: prop}, nil
	}
	return entry{}, graph.NotFound(parentPath.ChildNamed(name), parentPath)
}

// content renders a property as file bytes. Multiple values are joined
// by newlines.
func content(p graph.Property) []byte {
	if len(p.Values) == 1 {
		return p.Values[0]
	}
	return bytes.Join(p.Values, []byte("\n"))
}

func isFileName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/') && !graph.IsReserved(name)
}

func (fs *FederatedFS) isConfigFile(filename string) bool {
	return fs.configJSON != nil && filename == "/"+ConfigFile
}

func (fs *FederatedFS) configInfo() os.FileInfo {
	return &staticFileInfo{name: ConfigFile, size: int64(len(fs.configJSON)), mode: 0o444, modTime: fs.mountTime}
}

func (fs *FederatedFS) dirInfo(name string) os.FileInfo {
	mode := os.ModeDir | 0o555
	if fs.writable {
		mode = os.ModeDir | 0o755
	}
	return &staticFileInfo{name: name, mode: mode, modTime: fs.mountTime}
}

func (fs *FederatedFS) fileInfo(name string, p graph.Property) os.FileInfo {
	mode := os.FileMode(0o444)
	if fs.writable {
		mode = 0o644
	}
	return &staticFileInfo{name: name, size: int64(len(content(p))), mode: mode, modTime: fs.mountTime}
}

// pathError maps federation errors onto the os sentinels NFS clients
// expect; go-nfs compares against them directly.
func pathError(op, name string, err error) error {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		err = os.ErrNotExist
	case errors.Is(err, graph.ErrAlreadyExists):
		err = os.ErrExist
	case errors.Is(err, graph.ErrReadOnly),
		errors.Is(err, federation.ErrNoOwningSource),
		errors.Is(err, federation.ErrNotProjected),
		errors.Is(err, federation.ErrCrossSource),
		errors.Is(err, graph.ErrRootOperation):
		err = os.ErrPermission
	}
	return &os.PathError{Op: op, Path: name, Err: err}
}

// cleanPath normalizes a billy path to a clean absolute path.
func cleanPath(path string) string {
	path = filepath.Clean("/" + path)
	if path == "." {
		return "/"
	}
	return path
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*FederatedFS)(nil)
	_ billy.Capable    = (*FederatedFS)(nil)
	_ SessionOpener    = (*federation.Repository)(nil)
)
