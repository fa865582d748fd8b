package ptset

// sparseSet is the Mutable backing: a sparse, offset-indexed word
// vector of object ids, so sets of distant ids do not pay for the gap
// between them. The set algebra (union/diff/intersect with a changed
// flag, equality independent of padding, a stable content hash) is
// implemented directly rather than delegated, since the changed-flag
// contract is what the differential solver is built on.
type sparseSet struct {
	// offset*64 is the id of bit 0 of words[0]. Growing the set may
	// prepend or append words but never rewrites existing bits.
	offset int
	words  []uint64
}

func newSparse() *sparseSet { return &sparseSet{} }

func (s *sparseSet) wordIndex(b uint32) (idx int, bit uint) {
	w := int(b) / 64
	return w - s.offset, uint(b) % 64
}

// ensure grows words (and adjusts offset) so that word index wi is
// addressable.
func (s *sparseSet) ensure(wi int) int {
	if len(s.words) == 0 {
		s.offset = wi
		s.words = make([]uint64, 1)
		return 0
	}
	if wi < 0 {
		// prepend |wi| words, shift offset back
		n := -wi
		nw := make([]uint64, n+len(s.words))
		copy(nw[n:], s.words)
		s.words = nw
		s.offset -= n
		return 0
	}
	if wi >= len(s.words) {
		nw := make([]uint64, wi+1)
		copy(nw, s.words)
		s.words = nw
	}
	return wi
}

func (s *sparseSet) Empty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

func (s *sparseSet) Count() int {
	n := 0
	for _, w := range s.words {
		n += popcount(w)
	}
	return n
}

func (s *sparseSet) Clear() {
	s.words = nil
	s.offset = 0
}

func (s *sparseSet) Test(b uint32) bool {
	wi, bit := s.wordIndex(b)
	if wi < 0 || wi >= len(s.words) {
		return false
	}
	return s.words[wi]&(uint64(1)<<bit) != 0
}

// Add sets bit b, auto-extending the vector. Returns true iff the bit
// was not already set.
func (s *sparseSet) Add(b uint32) bool {
	wi, bit := s.wordIndex(b)
	wi = s.ensure(wi)
	mask := uint64(1) << bit
	if s.words[wi]&mask != 0 {
		return false
	}
	s.words[wi] |= mask
	return true
}

func (s *sparseSet) Remove(b uint32) bool {
	wi, bit := s.wordIndex(b)
	if wi < 0 || wi >= len(s.words) {
		return false
	}
	mask := uint64(1) << bit
	if s.words[wi]&mask == 0 {
		return false
	}
	s.words[wi] &^= mask
	return true
}

func (s *sparseSet) Clone() *sparseSet {
	c := &sparseSet{offset: s.offset, words: make([]uint64, len(s.words))}
	copy(c.words, s.words)
	return c
}

// align returns the absolute word-index span [lo, hi) covering both a
// and b, so bitwise ops can walk both in lockstep via wordAt.
func align(a, b *sparseSet) (lo, hi int) {
	lo = a.offset
	if b.offset < lo {
		lo = b.offset
	}
	ea := a.offset + len(a.words)
	eb := b.offset + len(b.words)
	hi = ea
	if eb > hi {
		hi = eb
	}
	return
}

func (s *sparseSet) wordAt(i int) uint64 {
	wi := i - s.offset
	if wi < 0 || wi >= len(s.words) {
		return 0
	}
	return s.words[wi]
}

func (s *sparseSet) UnionWith(o *sparseSet) bool {
	lo, hi := align(s, o)
	changed := false
	nw := make([]uint64, hi-lo)
	for i := lo; i < hi; i++ {
		v := s.wordAt(i) | o.wordAt(i)
		if v != s.wordAt(i) {
			changed = true
		}
		nw[i-lo] = v
	}
	s.offset = lo
	s.words = nw
	return changed
}

func (s *sparseSet) IntersectWith(o *sparseSet) bool {
	lo, hi := align(s, o)
	changed := false
	nw := make([]uint64, hi-lo)
	for i := lo; i < hi; i++ {
		v := s.wordAt(i) & o.wordAt(i)
		if v != s.wordAt(i) {
			changed = true
		}
		nw[i-lo] = v
	}
	s.offset = lo
	s.words = nw
	return changed
}

// DifferenceWith sets s := s \ o.
func (s *sparseSet) DifferenceWith(o *sparseSet) bool {
	changed := false
	for wi, w := range s.words {
		i := wi + s.offset
		nv := w &^ o.wordAt(i)
		if nv != w {
			changed = true
		}
		s.words[wi] = nv
	}
	return changed
}

func (s *sparseSet) SubsetOf(o *sparseSet) bool {
	for wi, w := range s.words {
		i := wi + s.offset
		if w&^o.wordAt(i) != 0 {
			return false
		}
	}
	return true
}

func (s *sparseSet) Intersects(o *sparseSet) bool {
	lo, hi := align(s, o)
	for i := lo; i < hi; i++ {
		if s.wordAt(i)&o.wordAt(i) != 0 {
			return true
		}
	}
	return false
}

func (s *sparseSet) Equal(o *sparseSet) bool {
	lo, hi := align(s, o)
	for i := lo; i < hi; i++ {
		if s.wordAt(i) != o.wordAt(i) {
			return false
		}
	}
	return true
}

// ForEach yields set bits in ascending order. Mutating the set during
// iteration is undefined behavior; this implementation snapshots
// nothing, so a mutation mid-callback can skip or repeat words.
func (s *sparseSet) ForEach(f func(uint32)) {
	for wi, w := range s.words {
		base := (wi + s.offset) * 64
		for w != 0 {
			t := w & -w // lowest set bit
			bit := trailingZeros(t)
			f(uint32(base + bit))
			w &^= t
		}
	}
}

func popcount(w uint64) int {
	n := 0
	for w != 0 {
		w &= w - 1
		n++
	}
	return n
}

func trailingZeros(w uint64) int {
	if w == 0 {
		return 64
	}
	n := 0
	for w&1 == 0 {
		w >>= 1
		n++
	}
	return n
}
