// Package indexing implements on-disk secondary indices. An index maps
// composite keys built from one or more document fields to posting lists of
// document ids, split across a fixed number of JSON shard files.
package indexing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/normalize"
	"github.com/docshard/docshard/pkg/storage"
)

const (
	// DefaultShardCount is the number of shard files per index.
	DefaultShardCount = 16

	// DefaultCacheSize is the number of shards resident in memory per index.
	DefaultCacheSize = 4
)

// ShardedIndex maintains one named index over an ordered list of fields.
// Exact lookups touch a single shard; prefix and range lookups scan all
// shards. Every mutation rewrites the affected shard atomically, so a reader
// sees either the prior committed shard or the new one, never a partial write.
//
// A document is represented in the index iff all its indexed fields are
// defined and non-null; within a shard a document id appears at most once per
// composite key.
type ShardedIndex struct {
	name       string
	fields     []string
	dir        string
	shardCount int

	mu     sync.Mutex
	cache  *ShardCache
	logger *zap.SugaredLogger
}

// NewShardedIndex creates an engine for the named index over the given
// ordered fields, storing shard files under dir. It does not touch the disk;
// shards are created lazily by the first write or build.
func NewShardedIndex(dir, name string, fields []string, shardCount, cacheSize int, logger *zap.SugaredLogger) (*ShardedIndex, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("index %q must have at least one field", name)
	}
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ShardedIndex{
		name:       name,
		fields:     append([]string(nil), fields...),
		dir:        dir,
		shardCount: shardCount,
		cache:      NewShardCache(cacheSize),
		logger:     logger,
	}, nil
}

// Name returns the index name.
func (ix *ShardedIndex) Name() string {
	return ix.name
}

// Fields returns the ordered field list the index is built over.
func (ix *ShardedIndex) Fields() []string {
	return append([]string(nil), ix.fields...)
}

// ShardCount returns the number of shard files the index is split across.
func (ix *ShardedIndex) ShardCount() int {
	return ix.shardCount
}

func (ix *ShardedIndex) shardPath(shardID int) string {
	return filepath.Join(ix.dir, fmt.Sprintf("%s_shard%d.json", ix.name, shardID))
}

// loadShard returns the shard's key-to-postings map, consulting the cache
// first. A missing file is an empty shard. A file that fails to parse is
// treated as empty after a warning; the next write recreates it.
func (ix *ShardedIndex) loadShard(shardID int) (shardData, error) {
	if data, ok := ix.cache.Get(shardID); ok {
		return data, nil
	}

	data, err := ix.readShardFile(shardID)
	if err != nil {
		return nil, err
	}
	ix.cache.Put(shardID, data)
	return data, nil
}

// readShardFile parses a shard file without touching the cache.
func (ix *ShardedIndex) readShardFile(shardID int) (shardData, error) {
	raw, err := os.ReadFile(ix.shardPath(shardID))
	if err != nil {
		if os.IsNotExist(err) {
			return make(shardData), nil
		}
		return nil, fmt.Errorf("failed to read shard %d of index %q: %w", shardID, ix.name, err)
	}

	var data shardData
	if err := json.Unmarshal(raw, &data); err != nil {
		ix.logger.Warnw("treating corrupt index shard as empty",
			"index", ix.name, "shard", shardID, "error", err)
		return make(shardData), nil
	}
	if data == nil {
		data = make(shardData)
	}
	return data, nil
}

// persistShard rewrites a whole shard atomically and refreshes the cache.
func (ix *ShardedIndex) persistShard(shardID int, data shardData) error {
	if err := os.MkdirAll(ix.dir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode shard %d of index %q: %w", shardID, ix.name, err)
	}
	if err := storage.AtomicWriteFile(ix.shardPath(shardID), raw); err != nil {
		return fmt.Errorf("failed to persist shard %d of index %q: %w", shardID, ix.name, err)
	}
	ix.cache.Put(shardID, data)
	return nil
}

// Add records a document id under the composite key of the given values.
// Adding an id that is already posted under the key is a no-op.
func (ix *ShardedIndex) Add(values []interface{}, docID string) error {
	if len(values) != len(ix.fields) {
		return fmt.Errorf("index %q expects %d values, got %d", ix.name, len(ix.fields), len(values))
	}
	key, err := EncodeValues(values)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	shardID := ShardForKey(key, ix.shardCount)
	data, err := ix.loadShard(shardID)
	if err != nil {
		return err
	}

	postings := data[key]
	for _, existing := range postings {
		if existing == docID {
			return nil
		}
	}
	data[key] = append(postings, docID)

	return ix.persistShard(shardID, data)
}

// Remove drops a document id from the composite key's posting list. The key
// is removed entirely when its posting list becomes empty, so key presence
// always implies a non-empty posting list.
func (ix *ShardedIndex) Remove(values []interface{}, docID string) error {
	if len(values) != len(ix.fields) {
		return fmt.Errorf("index %q expects %d values, got %d", ix.name, len(ix.fields), len(values))
	}
	key, err := EncodeValues(values)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	shardID := ShardForKey(key, ix.shardCount)
	data, err := ix.loadShard(shardID)
	if err != nil {
		return err
	}

	postings, exists := data[key]
	if !exists {
		return nil
	}

	removed := false
	for i, existing := range postings {
		if existing == docID {
			data[key] = append(postings[:i], postings[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return nil
	}
	if len(data[key]) == 0 {
		delete(data, key)
	}

	return ix.persistShard(shardID, data)
}

// GetExact returns the posting list for a fully specified key. The number of
// values must equal the index arity.
func (ix *ShardedIndex) GetExact(values []interface{}) ([]string, error) {
	if len(values) != len(ix.fields) {
		return nil, fmt.Errorf("exact lookup on index %q requires %d values, got %d", ix.name, len(ix.fields), len(values))
	}
	key, err := EncodeValues(values)
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	data, err := ix.loadShard(ShardForKey(key, ix.shardCount))
	if err != nil {
		return nil, err
	}
	return append([]string(nil), data[key]...), nil
}

// GetPrefix returns the deduplicated union of posting lists for every
// composite key that equals the prefix key or extends it. The prefix must
// cover at least one and fewer than all index fields. Every shard is scanned.
func (ix *ShardedIndex) GetPrefix(prefixValues []interface{}) ([]string, error) {
	if len(prefixValues) == 0 || len(prefixValues) >= len(ix.fields) {
		return nil, fmt.Errorf("prefix lookup on index %q requires between 1 and %d values, got %d",
			ix.name, len(ix.fields)-1, len(prefixValues))
	}
	prefixKey, err := EncodeValues(prefixValues)
	if err != nil {
		return nil, err
	}

	return ix.scanShards(func(key string, postings []string, collect func(string)) {
		if HasKeyPrefix(key, prefixKey) {
			for _, id := range postings {
				collect(id)
			}
		}
	})
}

// GetRange returns ids whose key matches the prefix values on the leading
// fields and whose final segment parses as a number within [min, max]. The
// prefix must cover exactly all fields but the last.
func (ix *ShardedIndex) GetRange(prefixValues []interface{}, min, max float64) ([]string, error) {
	if len(prefixValues) != len(ix.fields)-1 {
		return nil, fmt.Errorf("range lookup on index %q requires %d prefix values, got %d",
			ix.name, len(ix.fields)-1, len(prefixValues))
	}
	prefixKey := ""
	if len(prefixValues) > 0 {
		var err error
		prefixKey, err = EncodeValues(prefixValues)
		if err != nil {
			return nil, err
		}
	}

	arity := len(ix.fields)
	return ix.scanShards(func(key string, postings []string, collect func(string)) {
		segments := SplitKey(key)
		if len(segments) != arity {
			return
		}
		if prefixKey != "" && !HasKeyPrefix(key, prefixKey) {
			return
		}
		v, err := normalize.Number(segments[arity-1])
		if err != nil {
			return
		}
		if v < min || v > max {
			return
		}
		for _, id := range postings {
			collect(id)
		}
	})
}

// scanShards reads every shard file concurrently and feeds each key and
// posting list to visit. Ids are deduplicated across shards; the returned
// order is unspecified. The scan bypasses the residency cache because it
// touches every shard exactly once.
func (ix *ShardedIndex) scanShards(visit func(key string, postings []string, collect func(string))) ([]string, error) {
	perShard := make([][]string, ix.shardCount)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for shardID := 0; shardID < ix.shardCount; shardID++ {
		shardID := shardID
		g.Go(func() error {
			data, err := ix.readShardFile(shardID)
			if err != nil {
				return err
			}
			var ids []string
			for key, postings := range data {
				visit(key, postings, func(id string) {
					ids = append(ids, id)
				})
			}
			perShard[shardID] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var result []string
	for _, ids := range perShard {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				result = append(result, id)
			}
		}
	}
	return result, nil
}

// AllKeys returns the concatenated key-to-postings map of every shard.
func (ix *ShardedIndex) AllKeys() (map[string][]string, error) {
	result := make(map[string][]string)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for shardID := 0; shardID < ix.shardCount; shardID++ {
		shardID := shardID
		g.Go(func() error {
			data, err := ix.readShardFile(shardID)
			if err != nil {
				return err
			}
			mu.Lock()
			for key, postings := range data {
				result[key] = append([]string(nil), postings...)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// ValuesFor extracts the index's field values from a document in declared
// order. The second return is false when any indexed field is missing or
// null, in which case the document is not represented in the index.
func (ix *ShardedIndex) ValuesFor(doc domain.Document) ([]interface{}, bool) {
	values := make([]interface{}, len(ix.fields))
	for i, field := range ix.fields {
		v, ok := doc.Get(field)
		if !ok || v == nil {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// BuildFromDocuments rebuilds the index from scratch: every shard file is
// deleted, the document stream is folded into fresh in-memory shards, and all
// non-empty shards are written atomically. Documents missing any indexed
// field are skipped.
func (ix *ShardedIndex) BuildFromDocuments(docs <-chan domain.Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.deleteShardFiles(); err != nil {
		return err
	}
	ix.cache.Clear()

	shards := make(map[int]shardData)
	indexed := 0
	for doc := range docs {
		values, ok := ix.ValuesFor(doc)
		if !ok {
			continue
		}
		id := doc.ID()
		if id == "" {
			continue
		}
		key, err := EncodeValues(values)
		if err != nil {
			ix.logger.Warnw("skipping unindexable document",
				"index", ix.name, "id", id, "error", err)
			continue
		}

		shardID := ShardForKey(key, ix.shardCount)
		data, exists := shards[shardID]
		if !exists {
			data = make(shardData)
			shards[shardID] = data
		}
		duplicate := false
		for _, existing := range data[key] {
			if existing == id {
				duplicate = true
				break
			}
		}
		if !duplicate {
			data[key] = append(data[key], id)
			indexed++
		}
	}

	for shardID, data := range shards {
		if len(data) == 0 {
			continue
		}
		if err := ix.persistShard(shardID, data); err != nil {
			return err
		}
	}

	ix.logger.Infow("rebuilt index", "index", ix.name, "entries", indexed, "shards", len(shards))
	return nil
}

func (ix *ShardedIndex) deleteShardFiles() error {
	for shardID := 0; shardID < ix.shardCount; shardID++ {
		if err := os.Remove(ix.shardPath(shardID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete shard %d of index %q: %w", shardID, ix.name, err)
		}
	}
	return nil
}

// ExistsOnDisk reports whether any shard file of the index is present.
func (ix *ShardedIndex) ExistsOnDisk() bool {
	for shardID := 0; shardID < ix.shardCount; shardID++ {
		if _, err := os.Stat(ix.shardPath(shardID)); err == nil {
			return true
		}
	}
	return false
}

// CheckHealth inspects the index's shard files and reports whether any are
// present and whether any fail to parse.
func (ix *ShardedIndex) CheckHealth() (present bool, corrupted bool) {
	for shardID := 0; shardID < ix.shardCount; shardID++ {
		raw, err := os.ReadFile(ix.shardPath(shardID))
		if err != nil {
			continue
		}
		present = true
		var data shardData
		if err := json.Unmarshal(raw, &data); err != nil {
			corrupted = true
		}
	}
	return present, corrupted
}

// SortedKeys returns every composite key of the index ordered by less over
// the key string. Used by the ordered index scan sort strategy.
func (ix *ShardedIndex) SortedKeys(less func(a, b string) bool) ([]string, map[string][]string, error) {
	all, err := ix.AllKeys()
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys, all, nil
}

// Close releases the in-memory shard cache. Writes are eager, so there is
// never dirty state to flush.
func (ix *ShardedIndex) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cache.Clear()
	return nil
}
