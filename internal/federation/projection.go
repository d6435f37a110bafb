package federation

import (
	"fmt"
	"strings"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Projection describes how the content of one source appears in the
// federated namespace. It is immutable once built.
type Projection struct {
	sourceName string
	rules      []Rule
	readOnly   bool
	simple     bool
}

// NewProjection validates and builds a projection.
func NewProjection(sourceName string, readOnly bool, rules ...Rule) (*Projection, error) {
	if sourceName == "" {
		return nil, ErrNoSourceName
	}
	var kept []Rule
	for _, r := range rules {
		if r != nil {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("source %s: %w", sourceName, ErrNoRules)
	}
	return &Projection{
		sourceName: sourceName,
		rules:      kept,
		readOnly:   readOnly,
		simple:     isSimple(kept),
	}, nil
}

// MustProjection is NewProjection that panics on error, for rule literals.
func MustProjection(sourceName string, readOnly bool, defs ...string) *Projection {
	rules, err := ParseRules(defs...)
	if err != nil {
		panic(err)
	}
	p, err := NewProjection(sourceName, readOnly, rules...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Projection) SourceName() string { return p.sourceName }
func (p *Projection) ReadOnly() bool     { return p.readOnly }
func (p *Projection) Rules() []Rule      { return append([]Rule(nil), p.rules...) }

// IsSimple reports whether no repository path is covered by more than one
// rule, so every repository path maps to at most one source path.
func (p *Projection) IsSimple() bool { return p.simple }

// PathsInSource returns the distinct source paths for repoPath in rule
// order. An empty result means the projection does not apply.
func (p *Projection) PathsInSource(repoPath graph.Path) []graph.Path {
	var out []graph.Path
	for _, r := range p.rules {
		if sp, ok := r.PathInSource(repoPath); ok {
			out = appendUnique(out, sp)
		}
	}
	return out
}

// PathsInRepository returns the distinct repository paths at which
// sourcePath appears.
func (p *Projection) PathsInRepository(sourcePath graph.Path) []graph.Path {
	var out []graph.Path
	for _, r := range p.rules {
		if rp, ok := r.PathInRepository(sourcePath); ok {
			out = appendUnique(out, rp)
		}
	}
	return out
}

// TopLevelPaths returns the repository paths at which the projected content
// begins.
func (p *Projection) TopLevelPaths() []graph.Path {
	var out []graph.Path
	for _, r := range p.rules {
		for _, tp := range r.TopLevelPaths() {
			out = appendUnique(out, tp)
		}
	}
	return out
}

// IsTopLevelPath reports whether repoPath is one of TopLevelPaths.
func (p *Projection) IsTopLevelPath(repoPath graph.Path) bool {
	for _, tp := range p.TopLevelPaths() {
		if tp.Equal(repoPath) {
			return true
		}
	}
	return false
}

// ChildrenTowardTopLevel returns, for a path the projection does not cover,
// the child segments of repoPath that lead to top-level paths below it.
func (p *Projection) ChildrenTowardTopLevel(repoPath graph.Path) []graph.Segment {
	var out []graph.Segment
	for _, tp := range p.TopLevelPaths() {
		if !repoPath.IsAncestorOf(tp) {
			continue
		}
		seg := tp.Segment(repoPath.Len())
		dup := false
		for _, s := range out {
			if s.Equal(seg) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, seg)
		}
	}
	return out
}

func (p *Projection) String() string {
	defs := make([]string, len(p.rules))
	for i, r := range p.rules {
		defs[i] = r.String()
	}
	ro := ""
	if p.readOnly {
		ro = " (read-only)"
	}
	return fmt.Sprintf("%s%s { %s }", p.sourceName, ro, strings.Join(defs, "; "))
}

func isSimple(rules []Rule) bool {
	var seen []graph.Path
	for _, r := range rules {
		pr, ok := r.(*PathRule)
		if !ok {
			return false
		}
		for _, s := range seen {
			if s.IsAtOrAbove(pr.repoPath) || pr.repoPath.IsAtOrAbove(s) {
				return false
			}
		}
		seen = append(seen, pr.repoPath)
	}
	return true
}

func appendUnique(paths []graph.Path, p graph.Path) []graph.Path {
	for _, q := range paths {
		if q.Equal(p) {
			return paths
		}
	}
	return append(paths, p)
}
