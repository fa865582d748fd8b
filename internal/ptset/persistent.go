package ptset

import "github.com/benbjohnson/immutable"

// persistentValue is the map value type backing a persistent set: the
// map tracks membership only, so the value carries no information.
type persistentValue = struct{}

// persistentSet is the Persistent backing: nodes reference handles
// into an immutable trie, and every mutator installs a new trie that
// shares storage with its predecessor.
type persistentSet struct {
	m *immutable.Map[uint32, persistentValue]
}

func newPersistent() *persistentSet {
	return &persistentSet{m: immutable.NewMap[uint32, persistentValue](nil)}
}

func (s *persistentSet) clone() *persistentSet {
	// *Map is already immutable; sharing the pointer is a valid "clone"
	// since every mutator below returns a new *Map rather than
	// mutating s.m in place.
	return &persistentSet{m: s.m}
}

func (s *persistentSet) Empty() bool { return s.m.Len() == 0 }
func (s *persistentSet) Count() int  { return s.m.Len() }

func (s *persistentSet) Clear() { s.m = immutable.NewMap[uint32, persistentValue](nil) }

func (s *persistentSet) Test(b uint32) bool {
	_, ok := s.m.Get(b)
	return ok
}

func (s *persistentSet) Add(b uint32) bool {
	if _, ok := s.m.Get(b); ok {
		return false
	}
	s.m = s.m.Set(b, struct{}{})
	return true
}

func (s *persistentSet) Remove(b uint32) bool {
	if _, ok := s.m.Get(b); !ok {
		return false
	}
	s.m = s.m.Delete(b)
	return true
}

func (s *persistentSet) forEachID(f func(uint32)) {
	itr := s.m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		f(k)
	}
}

func (s *persistentSet) sortedIDs() []uint32 {
	ids := make([]uint32, 0, s.m.Len())
	s.forEachID(func(id uint32) { ids = append(ids, id) })
	sortUint32(ids)
	return ids
}

func (s *persistentSet) UnionWith(o *persistentSet) bool {
	changed := false
	o.forEachID(func(id uint32) {
		if _, ok := s.m.Get(id); !ok {
			s.m = s.m.Set(id, struct{}{})
			changed = true
		}
	})
	return changed
}

func (s *persistentSet) IntersectWith(o *persistentSet) bool {
	changed := false
	next := immutable.NewMap[uint32, persistentValue](nil)
	s.forEachID(func(id uint32) {
		if _, ok := o.m.Get(id); ok {
			next = next.Set(id, struct{}{})
		} else {
			changed = true
		}
	})
	s.m = next
	return changed
}

func (s *persistentSet) DifferenceWith(o *persistentSet) bool {
	changed := false
	o.forEachID(func(id uint32) {
		if _, ok := s.m.Get(id); ok {
			s.m = s.m.Delete(id)
			changed = true
		}
	})
	return changed
}

func (s *persistentSet) SubsetOf(o *persistentSet) bool {
	ok := true
	s.forEachID(func(id uint32) {
		if _, has := o.m.Get(id); !has {
			ok = false
		}
	})
	return ok
}

func (s *persistentSet) Intersects(o *persistentSet) bool {
	found := false
	s.forEachID(func(id uint32) {
		if found {
			return
		}
		if _, ok := o.m.Get(id); ok {
			found = true
		}
	})
	return found
}

func (s *persistentSet) Equal(o *persistentSet) bool {
	if s.m.Len() != o.m.Len() {
		return false
	}
	return s.SubsetOf(o)
}

func (s *persistentSet) ForEach(f func(uint32)) {
	for _, id := range s.sortedIDs() {
		f(id)
	}
}

func sortUint32(xs []uint32) {
	// Small sets in practice; insertion sort avoids importing sort for
	// a handful of elements and keeps allocation-free sorting local.
	for i := 1; i < len(xs); i++ {
		v := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > v {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = v
	}
}
