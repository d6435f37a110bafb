package federation

import (
	"fmt"
	"strings"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Rule maps a region of the federated namespace onto a region of one source.
type Rule interface {
	// PathInSource returns the source path for a repository path, or false
	// when the rule does not cover it.
	PathInSource(repoPath graph.Path) (graph.Path, bool)
	// PathInRepository is the inverse of PathInSource.
	PathInRepository(sourcePath graph.Path) (graph.Path, bool)
	// TopLevelPaths are the repository paths at which the rule's content
	// appears.
	TopLevelPaths() []graph.Path
	String() string
}

// PathRule projects the source subtree at SourcePath to RepositoryPath, minus
// the excluded subtrees. Exceptions are relative to SourcePath.
type PathRule struct {
	repoPath   graph.Path
	sourcePath graph.Path
	exceptions []graph.Path
}

// NewPathRule builds a rule. Exceptions are interpreted relative to the
// source path.
func NewPathRule(repoPath, sourcePath graph.Path, exceptions ...graph.Path) *PathRule {
	return &PathRule{
		repoPath:   repoPath,
		sourcePath: sourcePath,
		exceptions: append([]graph.Path(nil), exceptions...),
	}
}

func (r *PathRule) RepositoryPath() graph.Path { return r.repoPath }
func (r *PathRule) SourcePath() graph.Path     { return r.sourcePath }
func (r *PathRule) Exceptions() []graph.Path   { return append([]graph.Path(nil), r.exceptions...) }

// IsIdentity reports whether the rule maps every path onto itself.
func (r *PathRule) IsIdentity() bool {
	return len(r.exceptions) == 0 && r.repoPath.Equal(r.sourcePath)
}

func (r *PathRule) includes(sourcePath graph.Path) bool {
	rel, ok := sourcePath.RelativeTo(r.sourcePath)
	if !ok {
		return false
	}
	if rel.IsRoot() {
		return true
	}
	for _, exc := range r.exceptions {
		if exc.IsAtOrAbove(rel) {
			return false
		}
	}
	return true
}

func (r *PathRule) PathInSource(repoPath graph.Path) (graph.Path, bool) {
	rel, ok := repoPath.RelativeTo(r.repoPath)
	if !ok {
		return graph.Root, false
	}
	p := r.sourcePath.Join(rel)
	if !r.includes(p) {
		return graph.Root, false
	}
	return p, true
}

func (r *PathRule) PathInRepository(sourcePath graph.Path) (graph.Path, bool) {
	if !r.includes(sourcePath) {
		return graph.Root, false
	}
	rel, _ := sourcePath.RelativeTo(r.sourcePath)
	return r.repoPath.Join(rel), true
}

func (r *PathRule) TopLevelPaths() []graph.Path { return []graph.Path{r.repoPath} }

// String renders the rule in the form accepted by ParseRule.
func (r *PathRule) String() string {
	var b strings.Builder
	b.WriteString(r.repoPath.String())
	b.WriteString(" => ")
	b.WriteString(r.sourcePath.String())
	for _, exc := range r.exceptions {
		b.WriteString(" $ ")
		b.WriteString(strings.TrimPrefix(exc.String(), "/"))
	}
	return b.String()
}

// ParseRule parses "repoPath => sourcePath [$ exception ...]".
func ParseRule(def string) (*PathRule, error) {
	def = strings.TrimSpace(def)
	repo, rest, ok := strings.Cut(def, "=>")
	if !ok {
		return nil, fmt.Errorf("%w %q: missing \"=>\"", ErrInvalidRule, def)
	}
	parts := strings.Split(rest, "$")
	repo = strings.TrimSpace(repo)
	src := strings.TrimSpace(parts[0])
	if repo == "" || src == "" {
		return nil, fmt.Errorf("%w %q: empty path", ErrInvalidRule, def)
	}
	repoPath, err := graph.ParsePath(repo)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidRule, def, err)
	}
	sourcePath, err := graph.ParsePath(src)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidRule, def, err)
	}
	var exceptions []graph.Path
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "/") {
			return nil, fmt.Errorf("%w %q: exception %q must be relative", ErrInvalidRule, def, part)
		}
		exc, err := graph.ParsePath(part)
		if err != nil || exc.IsRoot() {
			return nil, fmt.Errorf("%w %q: bad exception %q", ErrInvalidRule, def, part)
		}
		exceptions = append(exceptions, exc)
	}
	return NewPathRule(repoPath, sourcePath, exceptions...), nil
}

// ParseRules parses each definition in order.
func ParseRules(defs ...string) ([]Rule, error) {
	rules := make([]Rule, 0, len(defs))
	for _, d := range defs {
		r, err := ParseRule(d)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
