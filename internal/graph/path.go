package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path. Index distinguishes same-name siblings;
// zero and one both mean "the first sibling with this name".
type Segment struct {
	Name  string
	Index int
}

// NewSegment returns a segment for the first sibling named name.
func NewSegment(name string) Segment {
	return Segment{Name: name, Index: 1}
}

// SiblingIndex returns the 1-based same-name-sibling index.
func (s Segment) SiblingIndex() int {
	if s.Index < 1 {
		return 1
	}
	return s.Index
}

// Equal compares two segments, treating index 0 and 1 as the same sibling.
func (s Segment) Equal(o Segment) bool {
	return s.Name == o.Name && s.SiblingIndex() == o.SiblingIndex()
}

// String renders "name" or "name[n]" for n > 1.
func (s Segment) String() string {
	if s.SiblingIndex() == 1 {
		return s.Name
	}
	return s.Name + "[" + strconv.Itoa(s.Index) + "]"
}

// ParseSegment parses "name" or "name[n]".
func ParseSegment(s string) (Segment, error) {
	if s == "" {
		return Segment{}, fmt.Errorf("empty path segment")
	}
	open := strings.IndexByte(s, '[')
	if open < 0 {
		if strings.IndexByte(s, ']') >= 0 {
			return Segment{}, fmt.Errorf("invalid path segment %q", s)
		}
		return NewSegment(s), nil
	}
	if open == 0 || !strings.HasSuffix(s, "]") {
		return Segment{}, fmt.Errorf("invalid path segment %q", s)
	}
	idx, err := strconv.Atoi(s[open+1 : len(s)-1])
	if err != nil || idx < 1 {
		return Segment{}, fmt.Errorf("invalid sibling index in %q", s)
	}
	return Segment{Name: s[:open], Index: idx}, nil
}

// Path is an absolute, immutable location in a node tree.
// The zero value is the root path.
type Path struct {
	segs []Segment
}

// Root is the path "/".
var Root = Path{}

// NewPath builds a path from segments. The slice is copied.
func NewPath(segs ...Segment) Path {
	if len(segs) == 0 {
		return Root
	}
	cp := make([]Segment, len(segs))
	copy(cp, segs)
	return Path{segs: cp}
}

// ParsePath parses an absolute path such as "/a/b[2]/c". A missing leading
// slash is tolerated; "." segments are dropped and ".." pops a segment.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return Root, nil
	}
	var segs []Segment
	for _, part := range strings.Split(strings.Trim(s, "/"), "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(segs) == 0 {
				return Root, fmt.Errorf("path %q escapes the root", s)
			}
			segs = segs[:len(segs)-1]
			continue
		}
		seg, err := ParseSegment(part)
		if err != nil {
			return Root, fmt.Errorf("parse path %q: %w", s, err)
		}
		segs = append(segs, seg)
	}
	return Path{segs: segs}, nil
}

// MustParsePath is like ParsePath but panics on error. Intended for
// constants and tests.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsRoot reports whether p is "/".
func (p Path) IsRoot() bool { return len(p.segs) == 0 }

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// Segments returns a copy of the segments.
func (p Path) Segments() []Segment {
	cp := make([]Segment, len(p.segs))
	copy(cp, p.segs)
	return cp
}

// Segment returns the i-th segment.
func (p Path) Segment(i int) Segment { return p.segs[i] }

// Last returns the final segment. It panics on the root path.
func (p Path) Last() Segment { return p.segs[len(p.segs)-1] }

// Parent returns the parent path; the parent of the root is the root.
func (p Path) Parent() Path {
	if len(p.segs) <= 1 {
		return Root
	}
	return Path{segs: p.segs[:len(p.segs)-1]}
}

// Prefix returns the ancestor made of the first n segments.
func (p Path) Prefix(n int) Path {
	if n <= 0 {
		return Root
	}
	if n >= len(p.segs) {
		return p
	}
	return Path{segs: p.segs[:n]}
}

// HasChild reports whether segs contains seg.
func HasChild(segs []Segment, seg Segment) bool {
	for _, s := range segs {
		if s.Equal(seg) {
			return true
		}
	}
	return false
}

// Child returns p extended by segs.
func (p Path) Child(segs ...Segment) Path {
	out := make([]Segment, 0, len(p.segs)+len(segs))
	out = append(out, p.segs...)
	out = append(out, segs...)
	return Path{segs: out}
}

// ChildNamed returns p extended by a single first-sibling segment.
func (p Path) ChildNamed(name string) Path {
	return p.Child(NewSegment(name))
}

// Join appends the segments of rel to p.
func (p Path) Join(rel Path) Path {
	return p.Child(rel.segs...)
}

// Equal reports segment-wise equality.
func (p Path) Equal(o Path) bool {
	if len(p.segs) != len(o.segs) {
		return false
	}
	for i := range p.segs {
		if !p.segs[i].Equal(o.segs[i]) {
			return false
		}
	}
	return true
}

// IsAtOrAbove reports whether p equals o or is an ancestor of o.
func (p Path) IsAtOrAbove(o Path) bool {
	if len(p.segs) > len(o.segs) {
		return false
	}
	for i := range p.segs {
		if !p.segs[i].Equal(o.segs[i]) {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether p is a strict ancestor of o.
func (p Path) IsAncestorOf(o Path) bool {
	return len(p.segs) < len(o.segs) && p.IsAtOrAbove(o)
}

// RelativeTo returns the segments of p below base. ok is false when base is
// not at or above p.
func (p Path) RelativeTo(base Path) (Path, bool) {
	if !base.IsAtOrAbove(p) {
		return Root, false
	}
	return Path{segs: p.segs[len(base.segs):]}, true
}

// String renders the canonical form, e.g. "/a/b[2]".
func (p Path) String() string {
	if len(p.segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, s := range p.segs {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
