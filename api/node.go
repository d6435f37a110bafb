package api

import (
	"cmp"
	"encoding/base64"
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Node is the wire form of a federated node, shared by the HTTP API, the
// MCP tools and the CLI.
type Node struct {
	Path       string              `json:"path"`
	UUID       string              `json:"uuid,omitempty"`
	Properties map[string][]string `json:"properties"`
	// Binary lists the properties whose values are base64 encoded because
	// they are not valid UTF-8.
	Binary   []string `json:"binary,omitempty"`
	Children []string `json:"children"`
}

// NewNode renders n.
func NewNode(n *graph.Node) Node {
	props, binary := EncodeProperties(n.Properties)
	out := Node{
		Path:       n.Path.String(),
		Properties: props,
		Binary:     binary,
		Children:   Segments(n.Children),
	}
	if n.UUID != uuid.Nil {
		out.UUID = n.UUID.String()
	}
	return out
}

// Segments renders child segments as "name" or "name[n]".
func Segments(segs []graph.Segment) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.String()
	}
	return out
}

// EncodeProperties renders properties as string values, base64 encoding
// any property with a value that is not valid UTF-8. The second result
// names those properties in sorted order.
func EncodeProperties(props map[string]graph.Property) (map[string][]string, []string) {
	out := make(map[string][]string, len(props))
	var binary []string
	for name, p := range props {
		text := true
		for _, v := range p.Values {
			if !utf8.Valid(v) {
				text = false
				break
			}
		}
		values := make([]string, len(p.Values))
		for i, v := range p.Values {
			if text {
				values[i] = string(v)
			} else {
				values[i] = base64.StdEncoding.EncodeToString(v)
			}
		}
		if !text {
			binary = append(binary, name)
		}
		out[name] = values
	}
	slices.Sort(binary)
	return out, binary
}

// DecodeProperties is the inverse of EncodeProperties. A name with no
// values decodes to an empty property, which removes it on update.
func DecodeProperties(props map[string][]string, binary []string) ([]graph.Property, error) {
	out := make([]graph.Property, 0, len(props))
	for name, values := range props {
		p := graph.Property{Name: name, Values: make([][]byte, len(values))}
		for i, v := range values {
			if !slices.Contains(binary, name) {
				p.Values[i] = []byte(v)
				continue
			}
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			p.Values[i] = b
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b graph.Property) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}
