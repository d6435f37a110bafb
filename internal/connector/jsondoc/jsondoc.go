// Package jsondoc serves a JSON document as a read-only repository.
//
// Objects are nodes. Scalar fields become properties and object fields
// become children; an array field of objects becomes same-name siblings and
// an array of scalars a multi-valued property.
package jsondoc

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Document is a parsed JSON value whose root is an object.
type Document struct {
	root map[string]any
}

// Parse parses data and, when selector is not empty, roots the document at
// the first value the JSONPath selector matches.
func Parse(data []byte, selector string) (*Document, error) {
	v, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if selector != "" {
		x, err := jp.ParseString(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
		}
		matches := x.Get(v)
		if len(matches) == 0 {
			return nil, fmt.Errorf("jsonpath '%s' matched nothing", selector)
		}
		v = matches[0]
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root is %T, not an object", v)
	}
	return &Document{root: obj}, nil
}

// lookup walks p. Each segment selects an object field or, for an array
// field, the n-th object element.
func (d *Document) lookup(p graph.Path) (map[string]any, error) {
	cur := d.root
	for i, seg := range p.Segments() {
		next, ok := child(cur, seg)
		if !ok {
			return nil, graph.NotFound(p, p.Prefix(i))
		}
		cur = next
	}
	return cur, nil
}

func child(obj map[string]any, seg graph.Segment) (map[string]any, bool) {
	switch v := obj[seg.Name].(type) {
	case map[string]any:
		return v, seg.SiblingIndex() == 1
	case []any:
		n := 0
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				n++
				if n == seg.SiblingIndex() {
					return m, true
				}
			}
		}
	}
	return nil, false
}

func properties(obj map[string]any) []graph.Property {
	var out []graph.Property
	for name, v := range obj {
		switch v := v.(type) {
		case map[string]any:
		case []any:
			if hasObject(v) {
				continue
			}
			var vals []string
			for _, e := range v {
				if s, ok := scalar(e); ok {
					vals = append(vals, s)
				}
			}
			if len(vals) > 0 {
				out = append(out, graph.NewProperty(name, vals...))
			}
		default:
			if s, ok := scalar(v); ok {
				out = append(out, graph.NewProperty(name, s))
			}
		}
	}
	return out
}

// hasObject reports whether an array holds any object. Such an array
// becomes same-name sibling nodes and its scalar elements are not exposed.
func hasObject(arr []any) bool {
	for _, e := range arr {
		if _, ok := e.(map[string]any); ok {
			return true
		}
	}
	return false
}

func children(obj map[string]any) []graph.Segment {
	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []graph.Segment
	for _, name := range names {
		switch v := obj[name].(type) {
		case map[string]any:
			out = append(out, graph.NewSegment(name))
		case []any:
			n := 0
			for _, e := range v {
				if _, ok := e.(map[string]any); ok {
					n++
					out = append(out, graph.Segment{Name: name, Index: n})
				}
			}
		}
	}
	return out
}

func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "null", true
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}

// Processor implements graph.Processor over a Document. Every write fails
// with graph.ErrReadOnly.
type Processor struct {
	mu  sync.RWMutex
	doc *Document
}

func NewProcessor(doc *Document) *Processor { return &Processor{doc: doc} }

var _ graph.Processor = (*Processor)(nil)

// Replace swaps in a freshly parsed document.
func (s *Processor) Replace(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

func (s *Processor) find(p graph.Path) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.lookup(p)
}

func (s *Processor) ReadNode(ctx context.Context, cmd graph.ReadNodeCommand) {
	obj, err := s.find(cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
	for _, p := range properties(obj) {
		cmd.SetProperty(p)
	}
	for _, c := range children(obj) {
		cmd.AddChild(c)
	}
}

func (s *Processor) ReadChildren(ctx context.Context, cmd graph.ReadChildrenCommand) {
	obj, err := s.find(cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
	for _, c := range children(obj) {
		cmd.AddChild(c)
	}
}

func (s *Processor) ReadProperties(ctx context.Context, cmd graph.ReadPropertiesCommand) {
	obj, err := s.find(cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
	for _, p := range properties(obj) {
		cmd.SetProperty(p)
	}
}

func (s *Processor) ReadBranch(ctx context.Context, cmd graph.ReadBranchCommand) {
	obj, err := s.find(cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(cmd.At())
	type item struct {
		p     graph.Path
		obj   map[string]any
		depth int
	}
	queue := []item{{cmd.At(), obj, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		kids := children(it.obj)
		cmd.AddNode(it.p, graph.PropertyMap(properties(it.obj)...), kids)
		if cmd.MaxDepth() >= 0 && it.depth >= cmd.MaxDepth() {
			continue
		}
		for _, k := range kids {
			if c, ok := child(it.obj, k); ok {
				queue = append(queue, item{it.p.Child(k), c, it.depth + 1})
			}
		}
	}
}

func (s *Processor) CreateNode(ctx context.Context, cmd graph.CreateNodeCommand) {
	cmd.SetError(graph.ErrReadOnly)
}
func (s *Processor) UpdateProperties(ctx context.Context, cmd graph.UpdatePropertiesCommand) {
	cmd.SetError(graph.ErrReadOnly)
}
func (s *Processor) DeleteBranch(ctx context.Context, cmd graph.DeleteBranchCommand) {
	cmd.SetError(graph.ErrReadOnly)
}
func (s *Processor) MoveBranch(ctx context.Context, cmd graph.MoveBranchCommand) {
	cmd.SetError(graph.ErrReadOnly)
}
func (s *Processor) CopyBranch(ctx context.Context, cmd graph.CopyBranchCommand) {
	cmd.SetError(graph.ErrReadOnly)
}
func (s *Processor) CopyNode(ctx context.Context, cmd graph.CopyNodeCommand) {
	cmd.SetError(graph.ErrReadOnly)
}
func (s *Processor) PutNode(ctx context.Context, cmd graph.PutNodeCommand) {
	cmd.SetError(graph.ErrReadOnly)
}

// Source is a ConnectionFactory for a JSON document, optionally backed by a
// file that Reload re-reads.
type Source struct {
	name     string
	policy   graph.CachePolicy
	path     string
	selector string
	proc     *Processor
}

// NewSource serves an already parsed document.
func NewSource(name string, doc *Document, policy graph.CachePolicy) *Source {
	return &Source{name: name, policy: policy, proc: NewProcessor(doc)}
}

// OpenFile parses the file at path, rooted at selector when one is given.
func OpenFile(name, path, selector string, policy graph.CachePolicy) (*Source, error) {
	doc, err := load(path, selector)
	if err != nil {
		return nil, err
	}
	return &Source{name: name, policy: policy, path: path, selector: selector, proc: NewProcessor(doc)}, nil
}

func load(path, selector string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(data, selector)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Reload re-reads the backing file. Sources built from a Document have
// nothing to reload.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	doc, err := load(s.path, s.selector)
	if err != nil {
		return err
	}
	s.proc.Replace(doc)
	return nil
}

func (s *Source) SourceName() string { return s.name }

func (s *Source) Connect(ctx context.Context) (connector.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return connector.NewProcessorConnection(s.name, s.policy, s.proc, nil), nil
}

var _ connector.ConnectionFactory = (*Source)(nil)
