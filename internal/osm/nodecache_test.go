package osm

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
)

func TestNodeCachePutGet(t *testing.T) {
	c := NewNodeCache(4, time.Hour)
	c.Put(1, orb.Point{7.5, 43.7})

	p, ok := c.Get(1)
	if !ok {
		t.Fatal("expected node 1 to be present")
	}
	if p[0] != 7.5 || p[1] != 43.7 {
		t.Errorf("got point %v, want (7.5, 43.7)", p)
	}
	if _, ok := c.Get(999); ok {
		t.Error("expected a miss for an id never inserted")
	}
}

func TestNodeCacheDelete(t *testing.T) {
	c := NewNodeCache(4, time.Hour)
	c.Put(1, orb.Point{1, 1})
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Error("expected node 1 to be gone after Delete")
	}
}

func TestNodeCacheTTLExpiry(t *testing.T) {
	c := NewNodeCache(4, time.Nanosecond)
	c.Put(1, orb.Point{1, 1})
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(1); ok {
		t.Error("expected entry to have expired past its TTL")
	}
}

func TestNodeCacheNoTTLNeverExpires(t *testing.T) {
	c := NewNodeCache(4, 0)
	c.Put(1, orb.Point{1, 1})
	time.Sleep(time.Millisecond)
	if _, ok := c.Get(1); !ok {
		t.Error("a zero TTL should mean entries never expire")
	}
}

func TestNodeCacheShardCountRoundsUpToPowerOfTwo(t *testing.T) {
	c := NewNodeCache(5, time.Hour)
	if len(c.shards) != 8 {
		t.Errorf("shard count = %d, want 8 (next power of two >= 5)", len(c.shards))
	}
}

func TestResolveWayRefsReportsMissing(t *testing.T) {
	c := NewNodeCache(4, time.Hour)
	c.Put(1, orb.Point{0, 0})
	c.Put(3, orb.Point{2, 2})

	ls, missing := c.ResolveWayRefs([]int64{1, 2, 3})
	if missing != 1 {
		t.Errorf("missing = %d, want 1", missing)
	}
	if len(ls) != 2 {
		t.Errorf("resolved %d points, want 2", len(ls))
	}
}

func TestEvictRemovesOnlyExpiredEntries(t *testing.T) {
	c := NewNodeCache(4, 10*time.Millisecond)
	c.Put(1, orb.Point{0, 0})
	time.Sleep(20 * time.Millisecond)
	c.Put(2, orb.Point{1, 1})

	removed := c.Evict()
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := c.Get(2); !ok {
		t.Error("the freshly-inserted entry should have survived eviction")
	}
}
