// Package nodestore implements every graph command on top of a minimal
// path-keyed record store. The memory, sqlite and redis connectors provide
// the store; this package provides the tree semantics.
package nodestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Record is the stored form of one node.
type Record struct {
	Path       graph.Path
	Properties map[string]graph.Property
	Children   []graph.Segment
}

func newRecord(p graph.Path) *Record {
	return &Record{Path: p, Properties: map[string]graph.Property{}}
}

// Tx is a view of the store inside View or Update. Get returns
// graph.ErrNotFound for absent paths.
type Tx interface {
	Get(p graph.Path) (*Record, error)
	Put(r *Record) error
	Delete(p graph.Path) error
}

// Store runs functions against a consistent view of the records. Update
// must serialise writers; a returned error discards the changes where the
// backend supports it.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
}

type recordJSON struct {
	Path       string              `json:"path"`
	Properties map[string][]string `json:"properties,omitempty"`
	Children   []string            `json:"children,omitempty"`
}

// Marshal encodes a record as JSON with base64 property values.
func Marshal(r *Record) ([]byte, error) {
	doc := recordJSON{Path: r.Path.String()}
	if len(r.Properties) > 0 {
		doc.Properties = make(map[string][]string, len(r.Properties))
		for name, p := range r.Properties {
			vals := make([]string, len(p.Values))
			for i, v := range p.Values {
				vals[i] = base64.StdEncoding.EncodeToString(v)
			}
			doc.Properties[name] = vals
		}
	}
	for _, c := range r.Children {
		doc.Children = append(doc.Children, c.String())
	}
	return json.Marshal(doc)
}

// Unmarshal decodes a record produced by Marshal.
func Unmarshal(data []byte) (*Record, error) {
	var doc recordJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	p, err := graph.ParsePath(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	r := newRecord(p)
	for name, vals := range doc.Properties {
		prop := graph.Property{Name: name, Values: make([][]byte, len(vals))}
		for i, v := range vals {
			b, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("decode property %s: %w", name, err)
			}
			prop.Values[i] = b
		}
		r.Properties[name] = prop
	}
	for _, c := range doc.Children {
		seg, err := graph.ParseSegment(c)
		if err != nil {
			return nil, fmt.Errorf("decode child: %w", err)
		}
		r.Children = append(r.Children, seg)
	}
	return r, nil
}
