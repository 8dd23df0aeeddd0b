package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshard/docshard/pkg/domain"
)

func TestCompareValuesClasses(t *testing.T) {
	// nil < bool < number < string, independent of within-class values.
	assert.Negative(t, CompareValues(nil, false))
	assert.Negative(t, CompareValues(true, float64(0)))
	assert.Negative(t, CompareValues(float64(9000), "a"))

	assert.Zero(t, CompareValues(nil, nil))
	assert.Negative(t, CompareValues(false, true))
	assert.Negative(t, CompareValues(float64(9), float64(100)))
	assert.Positive(t, CompareValues("b", "a"))
	assert.Zero(t, CompareValues(30, float64(30)))
}

func TestSortDocuments(t *testing.T) {
	docs := []domain.Document{
		{"id": "c", "age": float64(40), "name": "Cara"},
		{"id": "a", "age": float64(25), "name": "Ann"},
		{"id": "b", "age": float64(40), "name": "Ben"},
		{"id": "d", "name": "NoAge"},
	}

	SortDocuments(docs, []domain.SortKey{
		{Field: "age", Descending: true},
		{Field: "name"},
	})

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID()
	}
	// Ties on age break by name; the missing age sorts last descending.
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
}

func TestLessForIsStableOnTies(t *testing.T) {
	less := LessFor([]domain.SortKey{{Field: "age"}})
	a := domain.Document{"id": "a", "age": float64(30)}
	b := domain.Document{"id": "b", "age": float64(30)}

	assert.False(t, less(a, b))
	assert.False(t, less(b, a))
}

func TestTopN(t *testing.T) {
	docs := []domain.Document{
		{"id": "e", "age": float64(50)},
		{"id": "a", "age": float64(10)},
		{"id": "c", "age": float64(30)},
		{"id": "b", "age": float64(20)},
		{"id": "d", "age": float64(40)},
	}
	less := LessFor([]domain.SortKey{{Field: "age"}})

	top := TopN(docs, 3, less)
	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].ID())
	assert.Equal(t, "b", top[1].ID())
	assert.Equal(t, "c", top[2].ID())
}

func TestTopNEdgeCases(t *testing.T) {
	docs := []domain.Document{
		{"id": "b", "age": float64(2)},
		{"id": "a", "age": float64(1)},
	}
	less := LessFor([]domain.SortKey{{Field: "age"}})

	assert.Nil(t, TopN(docs, 0, less))

	// n larger than the input returns everything, fully sorted.
	top := TopN(docs, 10, less)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].ID())

	// The input slice itself is left untouched.
	assert.Equal(t, "b", docs[0].ID())
}

func TestCompareNormalized(t *testing.T) {
	assert.Negative(t, CompareNormalized("9", "100"))
	assert.Positive(t, CompareNormalized("100", "9"))
	assert.Zero(t, CompareNormalized("30", "30"))
	assert.Negative(t, CompareNormalized("apple", "banana"))
	assert.Positive(t, CompareNormalized("apple", "100"))
}
