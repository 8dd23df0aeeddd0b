package indexing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/indexing"
)

func newTestIndex(t *testing.T, fields ...string) *indexing.ShardedIndex {
	t.Helper()
	ix, err := indexing.NewShardedIndex(t.TempDir(), "test_idx", fields, 4, 2, nil)
	require.NoError(t, err)
	return ix
}

func TestNewShardedIndexRequiresFields(t *testing.T) {
	_, err := indexing.NewShardedIndex(t.TempDir(), "empty", nil, 4, 2, nil)
	assert.Error(t, err)
}

func TestAddAndGetExact(t *testing.T) {
	ix := newTestIndex(t, "city", "age")

	require.NoError(t, ix.Add([]interface{}{"London", 30}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{"London", 30}, "doc2"))
	require.NoError(t, ix.Add([]interface{}{"Paris", 30}, "doc3"))

	ids, err := ix.GetExact([]interface{}{"London", 30})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, ids)

	ids, err = ix.GetExact([]interface{}{"Paris", 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc3"}, ids)

	ids, err = ix.GetExact([]interface{}{"Berlin", 30})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAddIsIdempotent(t *testing.T) {
	ix := newTestIndex(t, "city")

	require.NoError(t, ix.Add([]interface{}{"London"}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{"London"}, "doc1"))

	ids, err := ix.GetExact([]interface{}{"London"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, ids)
}

func TestArityChecks(t *testing.T) {
	ix := newTestIndex(t, "city", "age")

	assert.Error(t, ix.Add([]interface{}{"London"}, "doc1"))
	_, err := ix.GetExact([]interface{}{"London"})
	assert.Error(t, err)
	_, err = ix.GetPrefix([]interface{}{"London", 30})
	assert.Error(t, err)
	_, err = ix.GetPrefix(nil)
	assert.Error(t, err)
}

func TestRemoveDropsEmptyKeys(t *testing.T) {
	ix := newTestIndex(t, "city")

	require.NoError(t, ix.Add([]interface{}{"London"}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{"London"}, "doc2"))
	require.NoError(t, ix.Remove([]interface{}{"London"}, "doc1"))

	ids, err := ix.GetExact([]interface{}{"London"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc2"}, ids)

	require.NoError(t, ix.Remove([]interface{}{"London"}, "doc2"))
	keys, err := ix.AllKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Removing an id that was never posted is a no-op.
	require.NoError(t, ix.Remove([]interface{}{"London"}, "ghost"))
}

func TestGetPrefix(t *testing.T) {
	ix := newTestIndex(t, "city", "status", "age")

	require.NoError(t, ix.Add([]interface{}{"London", "active", 30}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{"London", "active", 40}, "doc2"))
	require.NoError(t, ix.Add([]interface{}{"London", "retired", 70}, "doc3"))
	require.NoError(t, ix.Add([]interface{}{"Londonderry", "active", 30}, "doc4"))

	ids, err := ix.GetPrefix([]interface{}{"London"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2", "doc3"}, ids)

	ids, err = ix.GetPrefix([]interface{}{"London", "active"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, ids)
}

func TestGetPrefixDoesNotMatchPartialSegment(t *testing.T) {
	ix := newTestIndex(t, "city", "age")

	require.NoError(t, ix.Add([]interface{}{"Lon", 1}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{"London", 2}, "doc2"))

	ids, err := ix.GetPrefix([]interface{}{"Lon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, ids)
}

func TestGetRange(t *testing.T) {
	ix := newTestIndex(t, "city", "age")

	require.NoError(t, ix.Add([]interface{}{"London", 25}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{"London", 30}, "doc2"))
	require.NoError(t, ix.Add([]interface{}{"London", 45}, "doc3"))
	require.NoError(t, ix.Add([]interface{}{"Paris", 30}, "doc4"))

	ids, err := ix.GetRange([]interface{}{"London"}, 25, 30)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, ids)

	ids, err = ix.GetRange([]interface{}{"London"}, 50, 90)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = ix.GetRange([]interface{}{"London", 30}, 0, 1)
	assert.Error(t, err)
}

func TestNumbersNormalizeAcrossTypes(t *testing.T) {
	ix := newTestIndex(t, "age")

	require.NoError(t, ix.Add([]interface{}{float64(30)}, "doc1"))

	ids, err := ix.GetExact([]interface{}{30})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, ids)
}

func TestValuesFor(t *testing.T) {
	ix := newTestIndex(t, "city", "profile.age")

	doc := domain.Document{
		"id":      "doc1",
		"city":    "London",
		"profile": map[string]interface{}{"age": 30},
	}
	values, ok := ix.ValuesFor(doc)
	require.True(t, ok)
	assert.Equal(t, []interface{}{"London", 30}, values)

	_, ok = ix.ValuesFor(domain.Document{"id": "doc2", "city": "Paris"})
	assert.False(t, ok)

	_, ok = ix.ValuesFor(domain.Document{"id": "doc3", "city": nil, "profile": map[string]interface{}{"age": 1}})
	assert.False(t, ok)
}

func TestBuildFromDocuments(t *testing.T) {
	ix := newTestIndex(t, "city")

	docs := make(chan domain.Document, 4)
	docs <- domain.Document{"id": "doc1", "city": "London"}
	docs <- domain.Document{"id": "doc2", "city": "Paris"}
	docs <- domain.Document{"id": "doc3", "city": "London"}
	docs <- domain.Document{"id": "doc4", "name": "no city"}
	close(docs)

	require.NoError(t, ix.BuildFromDocuments(docs))

	ids, err := ix.GetExact([]interface{}{"London"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc3"}, ids)

	all, err := ix.AllKeys()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBuildReplacesPriorState(t *testing.T) {
	ix := newTestIndex(t, "city")
	require.NoError(t, ix.Add([]interface{}{"Ghost"}, "stale"))

	docs := make(chan domain.Document, 1)
	docs <- domain.Document{"id": "doc1", "city": "London"}
	close(docs)
	require.NoError(t, ix.BuildFromDocuments(docs))

	ids, err := ix.GetExact([]interface{}{"Ghost"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCorruptShardTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	ix, err := indexing.NewShardedIndex(dir, "test_idx", []string{"city"}, 1, 2, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Add([]interface{}{"London"}, "doc1"))

	// Reopen with a trashed shard file and no warm cache.
	shardFile := filepath.Join(dir, "test_idx_shard0.json")
	require.NoError(t, os.WriteFile(shardFile, []byte("{not json"), 0o644))

	reopened, err := indexing.NewShardedIndex(dir, "test_idx", []string{"city"}, 1, 2, nil)
	require.NoError(t, err)
	ids, err := reopened.GetExact([]interface{}{"London"})
	require.NoError(t, err)
	assert.Empty(t, ids)

	present, corrupted := reopened.CheckHealth()
	assert.True(t, present)
	assert.True(t, corrupted)
}

func TestExistsOnDisk(t *testing.T) {
	ix := newTestIndex(t, "city")
	assert.False(t, ix.ExistsOnDisk())

	require.NoError(t, ix.Add([]interface{}{"London"}, "doc1"))
	assert.True(t, ix.ExistsOnDisk())
}

func TestSortedKeys(t *testing.T) {
	ix := newTestIndex(t, "age")

	require.NoError(t, ix.Add([]interface{}{9}, "doc1"))
	require.NoError(t, ix.Add([]interface{}{100}, "doc2"))
	require.NoError(t, ix.Add([]interface{}{30}, "doc3"))

	keys, postings, err := ix.SortedKeys(func(a, b string) bool { return a < b })
	require.NoError(t, err)
	assert.Equal(t, []string{"100", "30", "9"}, keys)
	assert.Equal(t, []string{"doc2"}, postings["100"])
}
