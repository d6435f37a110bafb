package federation

import (
	"github.com/RoaringBitmap/roaring"
)

// sourceIndex interns source names to dense ordinals so that sets of sources
// can be held in roaring bitmaps.
type sourceIndex struct {
	ords  map[string]uint32
	names []string
}

func newSourceIndex() *sourceIndex {
	return &sourceIndex{ords: make(map[string]uint32)}
}

func (i *sourceIndex) intern(name string) uint32 {
	if o, ok := i.ords[name]; ok {
		return o
	}
	o := uint32(len(i.names))
	i.ords[name] = o
	i.names = append(i.names, name)
	return o
}

func (i *sourceIndex) lookup(name string) (uint32, bool) {
	o, ok := i.ords[name]
	return o, ok
}

// SourceSet is a set of source names backed by a roaring bitmap.
type SourceSet struct {
	idx  *sourceIndex
	bits *roaring.Bitmap
}

func newSourceSet(idx *sourceIndex) *SourceSet {
	return &SourceSet{idx: idx, bits: roaring.New()}
}

func (s *SourceSet) Add(name string) {
	s.bits.Add(s.idx.intern(name))
}

func (s *SourceSet) Remove(name string) {
	if o, ok := s.idx.lookup(name); ok {
		s.bits.Remove(o)
	}
}

func (s *SourceSet) Contains(name string) bool {
	o, ok := s.idx.lookup(name)
	return ok && s.bits.Contains(o)
}

func (s *SourceSet) Len() int { return int(s.bits.GetCardinality()) }

// Names lists the members in interning order.
func (s *SourceSet) Names() []string {
	out := make([]string, 0, s.Len())
	it := s.bits.Iterator()
	for it.HasNext() {
		out = append(out, s.idx.names[it.Next()])
	}
	return out
}

// ContainsAll reports whether every name is a member. Names never interned
// are not members.
func (s *SourceSet) ContainsAll(names []string) bool {
	want := roaring.New()
	for _, n := range names {
		o, ok := s.idx.lookup(n)
		if !ok {
			return false
		}
		want.Add(o)
	}
	return roaring.AndNot(want, s.bits).IsEmpty()
}
