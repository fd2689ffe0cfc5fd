package osm

import (
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// NodeCache is the process-wide node_id -> point mapping used to resolve
// way and relation geometry across files. It is lock-striped: a writer
// holds only one shard's lock for the duration of a single insert, and
// readers never block other readers on a different shard.
//
// Entries are evicted on a TTL basis rather than kept forever — the
// default window is one full replication cycle (24h), configurable.
type NodeCache struct {
	shards []nodeCacheShard
	mask   int64
	ttl    time.Duration
}

type nodeCacheShard struct {
	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	point    orb.Point
	insertedAt time.Time
}

// NewNodeCache creates a cache with the given shard count (rounded up to
// a power of two) and TTL bound.
func NewNodeCache(shards int, ttl time.Duration) *NodeCache {
	n := 1
	for n < shards {
		n <<= 1
	}
	c := &NodeCache{
		shards: make([]nodeCacheShard, n),
		mask:   int64(n - 1),
		ttl:    ttl,
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[int64]cacheEntry)
	}
	return c
}

func (c *NodeCache) shardFor(id int64) *nodeCacheShard {
	h := id ^ (id >> 33)
	if h < 0 {
		h = -h
	}
	return &c.shards[h&c.mask]
}

// Put inserts or overwrites the coordinate for a node id. This is called
// for every node encountered during parsing, whether or not it is in
// scope for the region of interest — way geometry assembly needs it
// regardless.
func (c *NodeCache) Put(id int64, point orb.Point) {
	s := c.shardFor(id)
	s.mu.Lock()
	s.entries[id] = cacheEntry{point: point, insertedAt: time.Now()}
	s.mu.Unlock()
}

// Get returns the cached coordinate for a node id and whether it is
// present and not expired.
func (c *NodeCache) Get(id int64) (orb.Point, bool) {
	s := c.shardFor(id)
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return orb.Point{}, false
	}
	if c.ttl > 0 && time.Since(e.insertedAt) > c.ttl {
		return orb.Point{}, false
	}
	return e.point, true
}

// Delete removes a node id, called when a node is removed by an
// osmChange delete frame.
func (c *NodeCache) Delete(id int64) {
	s := c.shardFor(id)
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Evict sweeps every shard and drops entries older than the cache's TTL.
// Nothing calls it automatically; lookups never pay for a full-cache
// scan, and Get ignores expired entries whether or not they were swept.
func (c *NodeCache) Evict() (removed int) {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-c.ttl)
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if e.insertedAt.Before(cutoff) {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the total number of stored entries across all shards,
// without applying TTL filtering, so expired entries not yet evicted
// are counted too.
func (c *NodeCache) Len() int {
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// ResolveWayRefs resolves every ref of a way into a linestring. If any
// ref misses, GeometryUnknown semantics apply: the caller decides whether
// to keep a partial result or demote the way — this function reports the
// count of unresolved refs so the caller can make that call.
func (c *NodeCache) ResolveWayRefs(refs []int64) (orb.LineString, int) {
	ls := make(orb.LineString, 0, len(refs))
	missing := 0
	for _, ref := range refs {
		p, ok := c.Get(ref)
		if !ok {
			missing++
			continue
		}
		ls = append(ls, p)
	}
	return ls, missing
}
