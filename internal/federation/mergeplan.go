package federation

import (
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// MergePlan records which sources contributed to a federated node. It is
// stored with the cached node and decides when the node must be refreshed.
// Contributions are unique by source name; the expiration is the minimum of
// the contributions' expirations, computed once at construction.
type MergePlan interface {
	ContributionCount() int
	ContributionFrom(source string) (Contribution, bool)
	IsSource(source string) bool
	// All iterates the contributions in insertion order.
	All() iter.Seq[Contribution]
	SourceNames() []string
	// ExpirationTime is the zero time when no contribution expires.
	ExpirationTime() time.Time
	IsExpired(now time.Time) bool

	Annotation(name string) (graph.Property, bool)
	// SetAnnotation stores p, or removes the annotation when p has no
	// values, returning the previous value.
	SetAnnotation(p graph.Property) (graph.Property, bool)
	// Annotations returns a copy of all annotations.
	Annotations() map[string]graph.Property
}

// fixedArityLimit is the largest plan held in a fixed-arity type.
const fixedArityLimit = 6

// NewMergePlan builds the plan representation that fits the number of
// contributions.
func NewMergePlan(contributions ...Contribution) (MergePlan, error) {
	if len(contributions) == 0 {
		return nil, ErrEmptyMergePlan
	}
	seen := make(map[string]struct{}, len(contributions))
	for _, c := range contributions {
		if _, dup := seen[c.SourceName()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateContribution, c.SourceName())
		}
		seen[c.SourceName()] = struct{}{}
	}
	exp := minExpiration(contributions)
	cs := contributions
	switch len(cs) {
	case 1:
		return &onePlan{planBase: planBase{expires: exp}, c1: cs[0]}, nil
	case 2:
		return &twoPlan{planBase: planBase{expires: exp}, c1: cs[0], c2: cs[1]}, nil
	case 3:
		return &threePlan{planBase: planBase{expires: exp}, c1: cs[0], c2: cs[1], c3: cs[2]}, nil
	case 4:
		return &fourPlan{planBase: planBase{expires: exp}, c1: cs[0], c2: cs[1], c3: cs[2], c4: cs[3]}, nil
	case 5:
		return &fivePlan{planBase: planBase{expires: exp}, c1: cs[0], c2: cs[1], c3: cs[2], c4: cs[3], c5: cs[4]}, nil
	case fixedArityLimit:
		return &sixPlan{planBase: planBase{expires: exp}, c1: cs[0], c2: cs[1], c3: cs[2], c4: cs[3], c5: cs[4], c6: cs[5]}, nil
	default:
		return newMultiPlan(exp, cs), nil
	}
}

// minExpiration asks each contribution for its expiration exactly once.
func minExpiration(cs []Contribution) time.Time {
	var lowest time.Time
	for _, c := range cs {
		exp := c.ExpirationTime()
		if exp.IsZero() {
			continue
		}
		if lowest.IsZero() || exp.Before(lowest) {
			lowest = exp
		}
	}
	return lowest
}

// planBase holds the state every representation shares.
type planBase struct {
	expires time.Time

	mu          sync.Mutex
	annotations map[string]graph.Property
}

func (b *planBase) ExpirationTime() time.Time    { return b.expires }
func (b *planBase) IsExpired(now time.Time) bool { return expired(b.expires, now) }

func (b *planBase) Annotation(name string) (graph.Property, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.annotations[name]
	if !ok {
		return graph.Property{}, false
	}
	return p.Clone(), true
}

func (b *planBase) SetAnnotation(p graph.Property) (graph.Property, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev, had := b.annotations[p.Name]
	if p.IsEmpty() {
		delete(b.annotations, p.Name)
		return prev, had
	}
	if b.annotations == nil {
		b.annotations = make(map[string]graph.Property)
	}
	b.annotations[p.Name] = p.Clone()
	return prev, had
}

func (b *planBase) Annotations() map[string]graph.Property {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]graph.Property, len(b.annotations))
	for name, p := range b.annotations {
		out[name] = p.Clone()
	}
	return out
}

// multiPlan holds more contributions than the fixed-arity types.
type multiPlan struct {
	planBase
	contributions []Contribution
	bySource      map[string]int
}

func newMultiPlan(exp time.Time, cs []Contribution) *multiPlan {
	p := &multiPlan{
		planBase:      planBase{expires: exp},
		contributions: append([]Contribution(nil), cs...),
		bySource:      make(map[string]int, len(cs)),
	}
	for i, c := range cs {
		p.bySource[c.SourceName()] = i
	}
	return p
}

func (p *multiPlan) ContributionCount() int { return len(p.contributions) }

func (p *multiPlan) ContributionFrom(source string) (Contribution, bool) {
	i, ok := p.bySource[source]
	if !ok {
		return nil, false
	}
	return p.contributions[i], true
}

func (p *multiPlan) IsSource(source string) bool {
	_, ok := p.bySource[source]
	return ok
}

func (p *multiPlan) All() iter.Seq[Contribution] {
	return func(yield func(Contribution) bool) {
		for _, c := range p.contributions {
			if !yield(c) {
				return
			}
		}
	}
}

func (p *multiPlan) SourceNames() []string { return sourceNames(p) }

func sourceNames(p MergePlan) []string {
	out := make([]string, 0, p.ContributionCount())
	for c := range p.All() {
		out = append(out, c.SourceName())
	}
	return out
}

// PlanSummary renders a plan for logs, e.g. "[a b] expires 2024-01-01T00:00:00Z".
func PlanSummary(p MergePlan) string {
	names := p.SourceNames()
	sort.Strings(names)
	if p.ExpirationTime().IsZero() {
		return fmt.Sprintf("%v never expires", names)
	}
	return fmt.Sprintf("%v expires %s", names, p.ExpirationTime().Format(time.RFC3339))
}
