// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codecs

import (
	"container/list"
	"sync"
)

// queryCacheKey identifies a cached decoding plan. The same query text in
// binary and JSON output modes has distinct plans.
type queryCacheKey struct {
	query string
	json  bool
}

// CachedQuery is the decoding plan derived from the server's most recent
// describe response for one query.
type CachedQuery struct {
	// Multi reports a non-singleton result cardinality.
	Multi bool

	// In is the input (argument) codec.
	In Codec

	// Out is the output (result) codec.
	Out Codec
}

// QueryCache is a bounded LRU mapping from (query text, json mode) to a
// cached decoding plan. It avoids descriptor round trips for hot queries.
// Replacement is atomic: an entry is either the old plan or the new one,
// never a mix. Eviction only drops the cache's own reference; evicted codecs
// stay valid for in-flight operations.
type QueryCache struct {
	mu       sync.Mutex
	entries  map[queryCacheKey]*list.Element
	lru      *list.List
	capacity int

	// Metrics
	hits   int64
	misses int64
}

// cacheEntry holds the cached plan and its key for LRU eviction.
type cacheEntry struct {
	key  queryCacheKey
	plan *CachedQuery
}

// NewQueryCache creates a QueryCache with the given capacity. The capacity
// must be > 0; the caller is responsible for providing a valid size.
func NewQueryCache(capacity int) *QueryCache {
	return &QueryCache{
		entries:  make(map[queryCacheKey]*list.Element),
		lru:      list.New(),
		capacity: capacity,
	}
}

// Get returns the cached plan for the query, refreshing its recency on a
// hit.
func (c *QueryCache) Get(query string, json bool) (*CachedQuery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[queryCacheKey{query: query, json: json}]
	if !ok {
		c.misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.hits++
	return elem.Value.(*cacheEntry).plan, true
}

// Set installs a plan for the query, replacing any existing entry and
// refreshing its recency. When capacity is exceeded the least-recently-used
// entry is evicted.
func (c *QueryCache) Set(query string, json bool, multi bool, in, out Codec) {
	key := queryCacheKey{query: query, json: json}
	plan := &CachedQuery{Multi: multi, In: in, Out: out}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).plan = plan
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(&cacheEntry{key: key, plan: plan})
	c.entries[key] = elem

	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Size returns the number of cached plans.
func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of plans that can be cached.
func (c *QueryCache) Capacity() int {
	return c.capacity
}

// Hits returns the number of cache hits.
func (c *QueryCache) Hits() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

// Misses returns the number of cache misses.
func (c *QueryCache) Misses() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}

// Clear removes all cached plans and resets metrics.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[queryCacheKey]*list.Element)
	c.lru.Init()
	c.hits = 0
	c.misses = 0
}
