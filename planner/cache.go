package planner

import lru "github.com/hashicorp/golang-lru"

// defaultCacheSizePerRecordType is the Open Question decision recorded
// in DESIGN.md: a bounded LRU of 256 entries per record type, not an
// unbounded map.
const defaultCacheSizePerRecordType = 256

type planCacheEntry struct {
	plan Plan
	cost Cost
}

// Cache is a per-record-type bounded plan cache keyed by CanonicalKey,
// per spec.md §4.I.
type Cache struct {
	perRecordType map[string]*lru.Cache
	size          int
}

// NewCache returns a plan cache sizing each record type's LRU to size
// entries (defaultCacheSizePerRecordType if size <= 0).
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSizePerRecordType
	}
	return &Cache{perRecordType: make(map[string]*lru.Cache), size: size}
}

func (c *Cache) tableFor(recordType string) *lru.Cache {
	tbl, ok := c.perRecordType[recordType]
	if !ok {
		tbl, _ = lru.New(c.size)
		c.perRecordType[recordType] = tbl
	}
	return tbl
}

// Get returns a cached plan for q's canonical key, if present.
func (c *Cache) Get(q Query) (Plan, Cost, bool) {
	tbl := c.tableFor(q.RecordType)
	key := CanonicalKey(q)
	v, ok := tbl.Get(key)
	if !ok {
		return Plan{}, Cost{}, false
	}
	entry := v.(planCacheEntry)
	return entry.plan, entry.cost, true
}

// Put stores plan/cost for q's canonical key.
func (c *Cache) Put(q Query, plan Plan, cost Cost) {
	tbl := c.tableFor(q.RecordType)
	tbl.Add(CanonicalKey(q), planCacheEntry{plan: plan, cost: cost})
}
