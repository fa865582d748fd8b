// Package ptset implements the points-to set representation: a
// changed-flag set-algebra over object ids, available in two backings
// selected at analysis configuration time — Mutable (in-place, cheap
// single-owner updates) and Persistent (structural sharing, cheap to
// snapshot and compare across solver iterations) — plus an interning
// cache mapping canonical set contents to a shared handle.
package ptset

// Backing selects which concrete representation a Set uses.
type Backing int

const (
	Mutable Backing = iota
	Persistent
)

// Set is a points-to set: a collection of object ids with set-algebra
// operations reporting whether a mutation changed the set, the
// contract the differential solver relies on to decide whether to
// re-enqueue a node.
type Set interface {
	Empty() bool
	Count() int
	Clear()
	Test(id uint32) bool
	Add(id uint32) bool
	Remove(id uint32) bool
	Clone() Set

	// UnionWith, IntersectWith and DifferenceWith mutate the receiver
	// in place and report whether the receiver changed.
	UnionWith(other Set) bool
	IntersectWith(other Set) bool
	// DifferenceWith removes every id also present in other
	// (equivalently, intersects with other's complement).
	DifferenceWith(other Set) bool

	SubsetOf(other Set) bool
	Intersects(other Set) bool
	Equal(other Set) bool

	// Hash is a content hash stable across two Sets with equal contents
	// regardless of backing or internal representation, used by Cache
	// to intern structurally-identical sets to one handle.
	Hash() uint64

	ForEach(f func(id uint32))
}

// mutableSet and persistentHandle both implement Set by delegating to
// the corresponding unexported backing type; a type switch in each
// binary operation below lets Mutable and Persistent sets
// interoperate, so callers never need same-backing operands.

type mutableSet struct{ s *sparseSet }

func newMutableSet() Set { return &mutableSet{s: newSparse()} }

func (m *mutableSet) Empty() bool   { return m.s.Empty() }
func (m *mutableSet) Count() int    { return m.s.Count() }
func (m *mutableSet) Clear()        { m.s.Clear() }
func (m *mutableSet) Test(id uint32) bool { return m.s.Test(id) }
func (m *mutableSet) Add(id uint32) bool  { return m.s.Add(id) }
func (m *mutableSet) Remove(id uint32) bool { return m.s.Remove(id) }
func (m *mutableSet) Clone() Set    { return &mutableSet{s: m.s.Clone()} }
func (m *mutableSet) ForEach(f func(id uint32)) { m.s.ForEach(f) }

func asSparse(o Set) *sparseSet {
	if mo, ok := o.(*mutableSet); ok {
		return mo.s
	}
	// Cross-backing: materialize a throwaway sparse snapshot.
	tmp := newSparse()
	o.ForEach(func(id uint32) { tmp.Add(id) })
	return tmp
}

func (m *mutableSet) UnionWith(o Set) bool        { return m.s.UnionWith(asSparse(o)) }
func (m *mutableSet) IntersectWith(o Set) bool    { return m.s.IntersectWith(asSparse(o)) }
func (m *mutableSet) DifferenceWith(o Set) bool   { return m.s.DifferenceWith(asSparse(o)) }
func (m *mutableSet) SubsetOf(o Set) bool         { return m.s.SubsetOf(asSparse(o)) }
func (m *mutableSet) Intersects(o Set) bool       { return m.s.Intersects(asSparse(o)) }
func (m *mutableSet) Equal(o Set) bool            { return m.s.Equal(asSparse(o)) }
func (m *mutableSet) Hash() uint64                { return contentHash(m) }

type persistentHandle struct{ s *persistentSet }

func newPersistentHandle() Set { return &persistentHandle{s: newPersistent()} }

func (p *persistentHandle) Empty() bool   { return p.s.Empty() }
func (p *persistentHandle) Count() int    { return p.s.Count() }
func (p *persistentHandle) Clear()        { p.s.Clear() }
func (p *persistentHandle) Test(id uint32) bool { return p.s.Test(id) }
func (p *persistentHandle) Add(id uint32) bool  { return p.s.Add(id) }
func (p *persistentHandle) Remove(id uint32) bool { return p.s.Remove(id) }
func (p *persistentHandle) Clone() Set    { return &persistentHandle{s: p.s.clone()} }
func (p *persistentHandle) ForEach(f func(id uint32)) { p.s.ForEach(f) }

func asPersistent(o Set) *persistentSet {
	if po, ok := o.(*persistentHandle); ok {
		return po.s
	}
	tmp := newPersistent()
	o.ForEach(func(id uint32) { tmp.Add(id) })
	return tmp
}

func (p *persistentHandle) UnionWith(o Set) bool      { return p.s.UnionWith(asPersistent(o)) }
func (p *persistentHandle) IntersectWith(o Set) bool  { return p.s.IntersectWith(asPersistent(o)) }
func (p *persistentHandle) DifferenceWith(o Set) bool { return p.s.DifferenceWith(asPersistent(o)) }
func (p *persistentHandle) SubsetOf(o Set) bool       { return p.s.SubsetOf(asPersistent(o)) }
func (p *persistentHandle) Intersects(o Set) bool     { return p.s.Intersects(asPersistent(o)) }
func (p *persistentHandle) Equal(o Set) bool          { return p.s.Equal(asPersistent(o)) }
func (p *persistentHandle) Hash() uint64 { return contentHash(p) }

// New constructs an empty Set using the requested backing.
func New(b Backing) Set {
	switch b {
	case Persistent:
		return newPersistentHandle()
	default:
		return newMutableSet()
	}
}

const fnvOffset uint64 = 14695981039346656037
const fnvPrime uint64 = 1099511628211

func mixID(h uint64, id uint32) uint64 {
	for i := 0; i < 4; i++ {
		h ^= uint64(byte(id >> (8 * i)))
		h *= fnvPrime
	}
	return h
}

// contentHash computes an order-independent content hash (XOR-folded
// FNV mixes) over s's elements via the shared Set.ForEach contract, so
// Hash() agrees between a Mutable and a Persistent set with identical
// contents regardless of backing, as required for Cache interning.
func contentHash(s Set) uint64 {
	var acc uint64
	s.ForEach(func(id uint32) {
		acc ^= mixID(fnvOffset, id)
	})
	return acc
}

// FieldSource answers, for a field-sensitive base object, how many
// contiguous field-object ids were reserved for it — the information
// ExpandFI needs to enumerate every field of a base object. A
// points-to element naming a collapsed base stands for all of its
// fields, so consumers that need per-field elements must expand it
// explicitly at query time.
type FieldSource interface {
	// BlockLen returns the number of contiguous field-object ids
	// reserved for the object based at base, or 0 if base does not
	// begin an object's block.
	BlockLen(base uint32) uint32
	// IsCollapsed reports whether base stands for its whole field block
	// and should be expanded: a field-insensitive base, or any
	// multi-field base object per expand_fi's contract.
	IsCollapsed(base uint32) bool
}

// ExpandFI returns a new set equal to pts but with every collapsed
// base object replaced by all of the field ids in its block. A base id
// for an object that is not collapsed, or that src does not recognize,
// is copied through unchanged.
func ExpandFI(pts Set, src FieldSource) Set {
	out := New(Mutable)
	pts.ForEach(func(id uint32) {
		if src != nil && src.IsCollapsed(id) {
			n := src.BlockLen(id)
			for i := uint32(0); i < n; i++ {
				out.Add(id + i)
			}
			return
		}
		out.Add(id)
	})
	return out
}
