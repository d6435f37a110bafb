package federation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// planVersion tags the stored encoding.
const planVersion = 1

type planDoc struct {
	Version       int                 `json:"v"`
	Contributions []contributionDoc   `json:"contributions"`
	Annotations   map[string][][]byte `json:"annotations,omitempty"`
}

type contributionDoc struct {
	Source    string     `json:"source"`
	Kind      string     `json:"kind"`
	Expires   *time.Time `json:"expires,omitempty"`
	Locations []string   `json:"locations,omitempty"`
}

const (
	kindEmpty       = "empty"
	kindPlaceholder = "placeholder"
	kindNode        = "node"
)

// EncodePlan serialises the parts of a plan needed to judge freshness:
// sources, expirations, locations and annotations. Content is not stored;
// it lives on the cached node itself.
func EncodePlan(p MergePlan) ([]byte, error) {
	doc := planDoc{Version: planVersion}
	for c := range p.All() {
		cd := contributionDoc{Source: c.SourceName(), Kind: kindNode}
		switch {
		case c.IsEmpty():
			cd.Kind = kindEmpty
		case c.IsPlaceholder():
			cd.Kind = kindPlaceholder
		}
		if exp := c.ExpirationTime(); !exp.IsZero() {
			e := exp.UTC()
			cd.Expires = &e
		}
		for _, loc := range c.Locations() {
			cd.Locations = append(cd.Locations, loc.String())
		}
		doc.Contributions = append(doc.Contributions, cd)
	}
	if ann := p.Annotations(); len(ann) > 0 {
		doc.Annotations = make(map[string][][]byte, len(ann))
		for name, prop := range ann {
			doc.Annotations[name] = prop.Values
		}
	}
	return json.Marshal(doc)
}

// DecodePlan restores a plan written by EncodePlan. Node contributions come
// back without properties or children.
func DecodePlan(data []byte) (MergePlan, error) {
	var doc planDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode merge plan: %w", err)
	}
	if doc.Version != planVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnknownPlanType, doc.Version)
	}
	cs := make([]Contribution, 0, len(doc.Contributions))
	for _, cd := range doc.Contributions {
		var exp time.Time
		if cd.Expires != nil {
			exp = *cd.Expires
		}
		switch cd.Kind {
		case kindEmpty:
			cs = append(cs, NewEmptyContribution(cd.Source, exp))
		case kindPlaceholder:
			cs = append(cs, NewPlaceholderContribution(cd.Source, nil, exp))
		case kindNode:
			locs := make([]graph.Path, 0, len(cd.Locations))
			for _, l := range cd.Locations {
				p, err := graph.ParsePath(l)
				if err != nil {
					return nil, fmt.Errorf("decode merge plan: %w", err)
				}
				locs = append(locs, p)
			}
			cs = append(cs, NewContribution(cd.Source, locs, nil, nil, exp))
		default:
			return nil, fmt.Errorf("%w: contribution kind %q", ErrUnknownPlanType, cd.Kind)
		}
	}
	plan, err := NewMergePlan(cs...)
	if err != nil {
		return nil, fmt.Errorf("decode merge plan: %w", err)
	}
	for name, vals := range doc.Annotations {
		plan.SetAnnotation(graph.Property{Name: name, Values: vals})
	}
	return plan, nil
}

// PlanProperty wraps an encoded plan as the reserved node property.
func PlanProperty(p MergePlan) (graph.Property, error) {
	b, err := EncodePlan(p)
	if err != nil {
		return graph.Property{}, err
	}
	return graph.NewBinaryProperty(graph.MergePlanProperty, b), nil
}
