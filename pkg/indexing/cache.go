package indexing

import "container/list"

// shardData is one shard's key-to-postings map as held in memory.
type shardData map[string][]string

// ShardCache bounds the number of shards resident in memory for one index.
// Eviction is first-entered-first-evicted and writes back nothing: shard
// writes are eager, so the cache exists purely to avoid repeated parse cost
// within a hot query.
type ShardCache struct {
	capacity int
	order    *list.List
	entries  map[int]*list.Element
}

type cacheEntry struct {
	shardID int
	data    shardData
}

// NewShardCache creates a cache holding up to capacity shards.
func NewShardCache(capacity int) *ShardCache {
	return &ShardCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[int]*list.Element),
	}
}

// Get returns the resident shard, if any. Hits do not affect eviction order.
func (sc *ShardCache) Get(shardID int) (shardData, bool) {
	if element, exists := sc.entries[shardID]; exists {
		return element.Value.(*cacheEntry).data, true
	}
	return nil, false
}

// Put makes a shard resident, evicting the oldest entry when over capacity.
// Re-putting an already resident shard replaces its data in place.
func (sc *ShardCache) Put(shardID int, data shardData) {
	if element, exists := sc.entries[shardID]; exists {
		element.Value.(*cacheEntry).data = data
		return
	}

	element := sc.order.PushFront(&cacheEntry{shardID: shardID, data: data})
	sc.entries[shardID] = element

	if sc.order.Len() > sc.capacity {
		oldest := sc.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			delete(sc.entries, entry.shardID)
			sc.order.Remove(oldest)
		}
	}
}

// Remove drops a shard from residency if present.
func (sc *ShardCache) Remove(shardID int) {
	if element, exists := sc.entries[shardID]; exists {
		delete(sc.entries, shardID)
		sc.order.Remove(element)
	}
}

// Clear drops every resident shard.
func (sc *ShardCache) Clear() {
	sc.order.Init()
	sc.entries = make(map[int]*list.Element)
}

// Len returns the number of resident shards.
func (sc *ShardCache) Len() int {
	return sc.order.Len()
}

// Capacity returns the maximum number of resident shards.
func (sc *ShardCache) Capacity() int {
	return sc.capacity
}
