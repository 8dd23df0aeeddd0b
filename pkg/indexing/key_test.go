package indexing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshard/docshard/pkg/normalize"
)

func TestEncodeValues(t *testing.T) {
	key, err := EncodeValues([]interface{}{"London", 30, true})
	require.NoError(t, err)
	assert.Equal(t, "London"+normalize.Separator+"30"+normalize.Separator+"true", key)

	_, err = EncodeValues([]interface{}{nil})
	assert.Error(t, err)
}

func TestSplitKeyRoundTrip(t *testing.T) {
	key, err := EncodeValues([]interface{}{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, SplitKey(key))
}

func TestHasKeyPrefix(t *testing.T) {
	key, _ := EncodeValues([]interface{}{"London", "active", 30})
	full, _ := EncodeValues([]interface{}{"London", "active", 30})
	one, _ := EncodeValues([]interface{}{"London"})
	two, _ := EncodeValues([]interface{}{"London", "active"})
	partial, _ := EncodeValues([]interface{}{"Lon"})

	assert.True(t, HasKeyPrefix(key, full))
	assert.True(t, HasKeyPrefix(key, one))
	assert.True(t, HasKeyPrefix(key, two))
	assert.False(t, HasKeyPrefix(key, partial))
}

func TestShardForKeyIsStableAndBounded(t *testing.T) {
	for _, key := range []string{"a", "London\x1f30", "zzz", ""} {
		first := ShardForKey(key, 16)
		assert.Equal(t, first, ShardForKey(key, 16))
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 16)
	}
}

func TestShardCacheEvictsOldestFirst(t *testing.T) {
	cache := NewShardCache(2)

	cache.Put(1, shardData{"a": {"doc1"}})
	cache.Put(2, shardData{"b": {"doc2"}})
	cache.Put(3, shardData{"c": {"doc3"}})

	_, ok := cache.Get(1)
	assert.False(t, ok, "oldest shard should be evicted")
	_, ok = cache.Get(2)
	assert.True(t, ok)
	_, ok = cache.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestShardCacheGetDoesNotRefreshAge(t *testing.T) {
	cache := NewShardCache(2)

	cache.Put(1, shardData{})
	cache.Put(2, shardData{})
	cache.Get(1)
	cache.Put(3, shardData{})

	// Residency is insertion ordered, so reading shard 1 did not save it.
	_, ok := cache.Get(1)
	assert.False(t, ok)
}

func TestShardCacheReplaceInPlace(t *testing.T) {
	cache := NewShardCache(2)

	cache.Put(1, shardData{"a": {"old"}})
	cache.Put(1, shardData{"a": {"new"}})

	data, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, data["a"])
	assert.Equal(t, 1, cache.Len())
}
