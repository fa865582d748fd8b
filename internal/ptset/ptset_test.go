package ptset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(s Set) []uint32 {
	var out []uint32
	s.ForEach(func(id uint32) { out = append(out, id) })
	return out
}

func TestSetAddTestRemove(t *testing.T) {
	for _, b := range []Backing{Mutable, Persistent} {
		s := New(b)
		assert.True(t, s.Empty())
		assert.True(t, s.Add(5))
		assert.False(t, s.Add(5))
		assert.True(t, s.Test(5))
		assert.False(t, s.Test(6))
		assert.Equal(t, 1, s.Count())
		assert.True(t, s.Remove(5))
		assert.False(t, s.Remove(5))
		assert.True(t, s.Empty())
	}
}

func TestSetUnionIntersectDifference(t *testing.T) {
	for _, b := range []Backing{Mutable, Persistent} {
		a := New(b)
		for _, id := range []uint32{1, 2, 3, 300} {
			a.Add(id)
		}
		other := New(b)
		for _, id := range []uint32{2, 3, 400} {
			other.Add(id)
		}

		union := a.Clone()
		changed := union.UnionWith(other)
		assert.True(t, changed)
		assert.ElementsMatch(t, []uint32{1, 2, 3, 300, 400}, collect(union))
		assert.False(t, union.UnionWith(other))

		inter := a.Clone()
		changed = inter.IntersectWith(other)
		assert.True(t, changed)
		assert.ElementsMatch(t, []uint32{2, 3}, collect(inter))

		diff := a.Clone()
		changed = diff.DifferenceWith(other)
		assert.True(t, changed)
		assert.ElementsMatch(t, []uint32{1, 300}, collect(diff))
	}
}

func TestSetSubsetIntersectsEqual(t *testing.T) {
	for _, b := range []Backing{Mutable, Persistent} {
		a := New(b)
		a.Add(1)
		a.Add(2)
		sup := New(b)
		sup.Add(1)
		sup.Add(2)
		sup.Add(3)

		assert.True(t, a.SubsetOf(sup))
		assert.False(t, sup.SubsetOf(a))
		assert.True(t, a.Intersects(sup))
		assert.False(t, a.Equal(sup))

		eq := New(b)
		eq.Add(2)
		eq.Add(1)
		assert.True(t, a.Equal(eq))
	}
}

func TestSetCrossBackingInterop(t *testing.T) {
	m := New(Mutable)
	m.Add(10)
	m.Add(20)
	p := New(Persistent)
	p.Add(20)
	p.Add(30)

	assert.True(t, m.Intersects(p))

	u := m.Clone()
	u.UnionWith(p)
	assert.ElementsMatch(t, []uint32{10, 20, 30}, collect(u))
}

func TestHashAgreesAcrossBackings(t *testing.T) {
	m := New(Mutable)
	p := New(Persistent)
	for _, id := range []uint32{7, 700, 70000} {
		m.Add(id)
		p.Add(id)
	}
	assert.Equal(t, m.Hash(), p.Hash())
}

type fakeFieldSource struct {
	blockLen  map[uint32]uint32
	collapsed map[uint32]bool
}

func (f fakeFieldSource) BlockLen(base uint32) uint32  { return f.blockLen[base] }
func (f fakeFieldSource) IsCollapsed(base uint32) bool { return f.collapsed[base] }

func TestExpandFI(t *testing.T) {
	pts := New(Mutable)
	pts.Add(100) // collapsed base, block len 3
	pts.Add(5)   // not collapsed, passes through

	src := fakeFieldSource{
		blockLen:  map[uint32]uint32{100: 3},
		collapsed: map[uint32]bool{100: true},
	}

	out := ExpandFI(pts, src)
	assert.ElementsMatch(t, []uint32{100, 101, 102, 5}, collect(out))
}

func TestCacheInterns(t *testing.T) {
	c := NewCache(8)
	a := New(Mutable)
	a.Add(1)
	a.Add(2)
	b := New(Mutable)
	b.Add(2)
	b.Add(1)

	ha := c.Intern(a)
	hb := c.Intern(b)
	require.True(t, ha.Equal(hb))
	assert.Equal(t, 1, c.Len())
}
