package query

import (
	"sort"
	"strings"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/normalize"
)

// CompareValues orders two document values. Missing or nil sorts first, then
// booleans (false before true), then numbers, then everything else by its
// normalized string form. Values of different classes compare by class rank
// so the ordering is total.
func CompareValues(a, b interface{}) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNil:
		return 0
	case rankBool:
		av, bv := a.(bool), b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case rankNumber:
		av, _ := toFloat64(a)
		bv, _ := toFloat64(b)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
		return 0
	default:
		as, errA := normalize.Value(a)
		bs, errB := normalize.Value(b)
		if errA != nil || errB != nil {
			return 0
		}
		return strings.Compare(as, bs)
	}
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankOther
)

func valueRank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	default:
		if _, ok := toFloat64(v); ok {
			return rankNumber
		}
		return rankOther
	}
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// LessFor builds a document ordering from ORDER BY sort keys. Keys are
// compared in declaration order; ties on every key report not-less.
func LessFor(keys []domain.SortKey) func(a, b domain.Document) bool {
	return func(a, b domain.Document) bool {
		for _, key := range keys {
			av, _ := a.Get(key.Field)
			bv, _ := b.Get(key.Field)
			cmp := CompareValues(av, bv)
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	}
}

// SortDocuments sorts docs in place by the given sort keys.
func SortDocuments(docs []domain.Document, keys []domain.SortKey) {
	sortDocsByLess(docs, LessFor(keys))
}

func sortDocsByLess(docs []domain.Document, less func(a, b domain.Document) bool) {
	sort.SliceStable(docs, func(i, j int) bool { return less(docs[i], docs[j]) })
}

// CompareNormalized orders two normalized key segments, numerically when both
// parse as numbers and lexically otherwise.
func CompareNormalized(a, b string) int {
	av, errA := normalize.Number(a)
	bv, errB := normalize.Number(b)
	if errA == nil && errB == nil {
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
