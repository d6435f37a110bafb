package graph

import (
	"maps"
	"strings"

	"github.com/google/uuid"
)

// Reserved property names. Properties under the "fed:" prefix are internal
// and are stripped from nodes handed to ordinary callers.
const (
	ReservedPrefix    = "fed:"
	MergePlanProperty = "fed:mergePlan"
	UUIDProperty      = "fed:uuid"
)

// IsReserved reports whether a property name is internal to the federation.
func IsReserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}

// Property is a named, multi-valued attribute of a node.
type Property struct {
	Name   string
	Values [][]byte
}

// NewProperty builds a property from string values.
func NewProperty(name string, values ...string) Property {
	p := Property{Name: name, Values: make([][]byte, len(values))}
	for i, v := range values {
		p.Values[i] = []byte(v)
	}
	return p
}

// NewBinaryProperty builds a single-valued property holding raw bytes.
func NewBinaryProperty(name string, value []byte) Property {
	return Property{Name: name, Values: [][]byte{value}}
}

// IsEmpty reports whether the property has no values. An empty property in
// an update means "remove".
func (p Property) IsEmpty() bool { return len(p.Values) == 0 }

// First returns the first value as a string, or "" when empty.
func (p Property) First() string {
	if len(p.Values) == 0 {
		return ""
	}
	return string(p.Values[0])
}

// Strings returns all values as strings.
func (p Property) Strings() []string {
	out := make([]string, len(p.Values))
	for i, v := range p.Values {
		out[i] = string(v)
	}
	return out
}

// Clone deep-copies the property values.
func (p Property) Clone() Property {
	cp := Property{Name: p.Name, Values: make([][]byte, len(p.Values))}
	for i, v := range p.Values {
		cp.Values[i] = append([]byte(nil), v...)
	}
	return cp
}

// PropertyMap indexes properties by name.
func PropertyMap(props ...Property) map[string]Property {
	m := make(map[string]Property, len(props))
	for _, p := range props {
		m[p.Name] = p
	}
	return m
}

// Node is a materialised node of the federated tree.
type Node struct {
	Path       Path
	UUID       uuid.UUID
	Properties map[string]Property
	Children   []Segment
}

// Property returns the named property.
func (n *Node) Property(name string) (Property, bool) {
	p, ok := n.Properties[name]
	return p, ok
}

// ChildPaths returns the absolute paths of the children.
func (n *Node) ChildPaths() []Path {
	out := make([]Path, len(n.Children))
	for i, c := range n.Children {
		out[i] = n.Path.Child(c)
	}
	return out
}

// Public returns a copy of n without reserved properties.
func (n *Node) Public() *Node {
	props := make(map[string]Property, len(n.Properties))
	for name, p := range n.Properties {
		if !IsReserved(name) {
			props[name] = p
		}
	}
	return &Node{
		Path:       n.Path,
		UUID:       n.UUID,
		Properties: props,
		Children:   append([]Segment(nil), n.Children...),
	}
}

// Clone returns a copy of n sharing property value bytes.
func (n *Node) Clone() *Node {
	return &Node{
		Path:       n.Path,
		UUID:       n.UUID,
		Properties: maps.Clone(n.Properties),
		Children:   append([]Segment(nil), n.Children...),
	}
}
