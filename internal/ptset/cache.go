package ptset

import lru "github.com/hashicorp/golang-lru/v2"

// Cache interns Sets by content hash so the solver can share one
// handle across nodes that converge to the same points-to set, rather
// than retaining a distinct copy per node.
//
// A hash collision between two unequal sets is handled by bucketing:
// each cache slot holds every handle seen under that hash and a lookup
// walks the bucket for a content-equal match before treating the value
// as new.
type Cache struct {
	lru *lru.Cache[uint64, []Set]
}

// NewCache creates an interning cache holding up to size distinct
// hash buckets. Once full, the least recently used bucket is evicted;
// evicting a bucket only drops the cache's handle to it; any Set still
// referenced elsewhere remains valid.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[uint64, []Set](size)
	return &Cache{lru: c}
}

// Intern returns the canonical handle for a set with s's contents: if
// an equal set is already cached, its handle is returned and s is
// discarded; otherwise s itself is cached and returned.
func (c *Cache) Intern(s Set) Set {
	h := s.Hash()
	if bucket, ok := c.lru.Get(h); ok {
		for _, cand := range bucket {
			if cand.Equal(s) {
				return cand
			}
		}
		c.lru.Add(h, append(bucket, s))
		return s
	}
	c.lru.Add(h, []Set{s})
	return s
}

// Len reports the number of distinct hash buckets currently cached.
func (c *Cache) Len() int { return c.lru.Len() }
