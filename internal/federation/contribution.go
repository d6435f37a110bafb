package federation

import (
	"fmt"
	"time"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Contribution is what one source supplied for one federated node.
// Properties and children are already expressed in the federated namespace;
// Locations are the source-native paths that were read.
type Contribution interface {
	SourceName() string
	Locations() []graph.Path
	Properties() map[string]graph.Property
	Children() []graph.Segment
	// ExpirationTime is the instant the contribution goes stale. The zero
	// time means it never expires.
	ExpirationTime() time.Time
	IsExpired(now time.Time) bool
	// IsEmpty reports that the source has nothing at this path.
	IsEmpty() bool
	// IsPlaceholder reports a contribution that only supplies the children
	// leading to deeper projections of the source.
	IsPlaceholder() bool
}

// expired is the shared rule: the zero time never expires, otherwise the
// contribution is expired at and after its expiration instant.
// CheckExpiration verifies that a contribution created at now with the given
// expiration is usable: the expiration is the zero time (never) or strictly
// after now.
func CheckExpiration(c Contribution, now time.Time) error {
	if exp := c.ExpirationTime(); !exp.IsZero() && !exp.After(now) {
		return fmt.Errorf("%s expires at %s, created at %s: %w",
			c.SourceName(), exp.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), ErrExpiredContribution)
	}
	return nil
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !now.Before(exp)
}

type emptyContribution struct {
	source  string
	expires time.Time
}

// NewEmptyContribution records that source has no content for a path.
func NewEmptyContribution(source string, expires time.Time) Contribution {
	return &emptyContribution{source: source, expires: expires}
}

func (c *emptyContribution) SourceName() string      { return c.source }
func (c *emptyContribution) Locations() []graph.Path { return []graph.Path{} }
func (c *emptyContribution) Properties() map[string]graph.Property {
	return map[string]graph.Property{}
}
func (c *emptyContribution) Children() []graph.Segment    { return []graph.Segment{} }
func (c *emptyContribution) ExpirationTime() time.Time    { return c.expires }
func (c *emptyContribution) IsExpired(now time.Time) bool { return expired(c.expires, now) }
func (c *emptyContribution) IsEmpty() bool                { return true }
func (c *emptyContribution) IsPlaceholder() bool          { return false }

type placeholderContribution struct {
	source   string
	children []graph.Segment
	expires  time.Time
}

// NewPlaceholderContribution contributes only children, for a path above
// the top-level paths of a projection.
func NewPlaceholderContribution(source string, children []graph.Segment, expires time.Time) Contribution {
	return &placeholderContribution{
		source:   source,
		children: append([]graph.Segment{}, children...),
		expires:  expires,
	}
}

func (c *placeholderContribution) SourceName() string      { return c.source }
func (c *placeholderContribution) Locations() []graph.Path { return []graph.Path{} }
func (c *placeholderContribution) Properties() map[string]graph.Property {
	return map[string]graph.Property{}
}
func (c *placeholderContribution) Children() []graph.Segment    { return c.children }
func (c *placeholderContribution) ExpirationTime() time.Time    { return c.expires }
func (c *placeholderContribution) IsExpired(now time.Time) bool { return expired(c.expires, now) }
func (c *placeholderContribution) IsEmpty() bool                { return false }
func (c *placeholderContribution) IsPlaceholder() bool          { return true }

type nodeContribution struct {
	source    string
	locations []graph.Path
	props     map[string]graph.Property
	children  []graph.Segment
	expires   time.Time
}

// NewContribution records content read from one or more source locations.
// Nil collections are replaced with empty ones.
func NewContribution(source string, locations []graph.Path, props map[string]graph.Property, children []graph.Segment, expires time.Time) Contribution {
	c := &nodeContribution{
		source:    source,
		locations: append([]graph.Path{}, locations...),
		props:     make(map[string]graph.Property, len(props)),
		children:  append([]graph.Segment{}, children...),
		expires:   expires,
	}
	for name, p := range props {
		c.props[name] = p
	}
	return c
}

func (c *nodeContribution) SourceName() string                    { return c.source }
func (c *nodeContribution) Locations() []graph.Path               { return c.locations }
func (c *nodeContribution) Properties() map[string]graph.Property { return c.props }
func (c *nodeContribution) Children() []graph.Segment             { return c.children }
func (c *nodeContribution) ExpirationTime() time.Time             { return c.expires }
func (c *nodeContribution) IsExpired(now time.Time) bool          { return expired(c.expires, now) }
func (c *nodeContribution) IsEmpty() bool                         { return false }
func (c *nodeContribution) IsPlaceholder() bool                   { return false }
