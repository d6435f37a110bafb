package nodestore

import (
	"context"
	"errors"

	"github.com/agentic-research/fedgraph/internal/graph"
)

// Ensure creates the node at p and any missing ancestors, then sets props on
// it. Existing properties not named in props are kept.
func Ensure(ctx context.Context, s Store, p graph.Path, props ...graph.Property) error {
	return s.Update(ctx, func(tx Tx) error {
		cur := graph.Root
		for _, seg := range p.Segments() {
			next := cur.Child(seg)
			ok, err := exists(tx, next)
			if err != nil {
				return err
			}
			if !ok {
				parent, err := load(tx, cur)
				if err != nil {
					return err
				}
				parent.Children = append(parent.Children, seg)
				if err := tx.Put(parent); err != nil {
					return err
				}
				if err := tx.Put(newRecord(next)); err != nil {
					return err
				}
			}
			cur = next
		}
		r, err := load(tx, p)
		if errors.Is(err, graph.ErrNotFound) {
			r, err = newRecord(p), nil
		}
		if err != nil {
			return err
		}
		for _, prop := range props {
			if prop.IsEmpty() {
				delete(r.Properties, prop.Name)
				continue
			}
			r.Properties[prop.Name] = prop
		}
		return tx.Put(r)
	})
}
