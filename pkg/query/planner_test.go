package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/normalize"
)

// stubIndex is an in-memory Index for planner and executor tests.
type stubIndex struct {
	name     string
	fields   []string
	postings map[string][]string
}

func newStubIndex(name string, fields ...string) *stubIndex {
	return &stubIndex{name: name, fields: fields, postings: make(map[string][]string)}
}

func (s *stubIndex) put(ids []string, values ...interface{}) *stubIndex {
	s.postings[s.key(values)] = ids
	return s
}

func (s *stubIndex) key(values []interface{}) string {
	segments := make([]string, len(values))
	for i, v := range values {
		segment, err := normalize.Value(v)
		if err != nil {
			panic(err)
		}
		segments[i] = segment
	}
	return strings.Join(segments, normalize.Separator)
}

func (s *stubIndex) Name() string     { return s.name }
func (s *stubIndex) Fields() []string { return s.fields }

func (s *stubIndex) GetExact(values []interface{}) ([]string, error) {
	return s.postings[s.key(values)], nil
}

func (s *stubIndex) GetPrefix(values []interface{}) ([]string, error) {
	prefix := s.key(values) + normalize.Separator
	var ids []string
	seen := make(map[string]bool)
	for key, posted := range s.postings {
		if strings.HasPrefix(key, prefix) {
			for _, id := range posted {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
	}
	return ids, nil
}

func TestPlanSingleFieldExactMatch(t *testing.T) {
	planner := NewPlanner([]Index{newStubIndex("by_city", "city")}, nil)

	plan := planner.PlanConjunction([]Leaf{{Field: "city", Value: "London"}})
	assert.Equal(t, ExactMatch, plan.Strategy)
	assert.Equal(t, "by_city", plan.Index.Name())
	assert.InDelta(t, 0.1, plan.Selectivity, 1e-9)
}

func TestPlanCompositeExactMatch(t *testing.T) {
	planner := NewPlanner([]Index{newStubIndex("by_city_age", "city", "age")}, nil)

	plan := planner.PlanConjunction([]Leaf{
		{Field: "city", Value: "London"},
		{Field: "age", Value: 30},
	})
	assert.Equal(t, ExactMatch, plan.Strategy)
	assert.InDelta(t, 0.01, plan.Selectivity, 1e-9)
	assert.Len(t, plan.Values, 2)
}

func TestPlanCompositePrefixMatch(t *testing.T) {
	planner := NewPlanner([]Index{newStubIndex("by_city_age", "city", "age")}, nil)

	plan := planner.PlanConjunction([]Leaf{{Field: "city", Value: "London"}})
	assert.Equal(t, PrefixMatch, plan.Strategy)
	assert.Len(t, plan.Values, 1)
}

func TestPlanPrefixIsOrderSensitive(t *testing.T) {
	planner := NewPlanner([]Index{newStubIndex("by_city_age", "city", "age")}, nil)

	// Only the trailing index field is bound, so no prefix exists.
	plan := planner.PlanConjunction([]Leaf{{Field: "age", Value: 30}})
	assert.Equal(t, FullScan, plan.Strategy)
}

func TestPlanSeekFilter(t *testing.T) {
	planner := NewPlanner([]Index{newStubIndex("by_city_age", "city", "age")}, nil)

	plan := planner.PlanConjunction([]Leaf{
		{Field: "city", Value: "London"},
		{Field: "status", Value: "active"},
	})
	assert.Equal(t, IndexSeekFilter, plan.Strategy)
	require.Len(t, plan.Residual, 1)
	assert.Equal(t, "status", plan.Residual[0].Field)
}

func TestPlanIntersection(t *testing.T) {
	cityIdx := newStubIndex("by_city", "city").put([]string{"a", "b", "c"}, "London")
	ageIdx := newStubIndex("by_age", "age").put([]string{"b"}, 30)
	planner := NewPlanner([]Index{cityIdx, ageIdx}, nil)

	plan := planner.PlanConjunction([]Leaf{
		{Field: "city", Value: "London"},
		{Field: "age", Value: 30},
	})
	require.Equal(t, IndexIntersect, plan.Strategy)
	require.Len(t, plan.Probes, 2)
	// Probes are ordered smallest posting list first.
	assert.Equal(t, "by_age", plan.Probes[0].Index.Name())
	assert.InDelta(t, 0.05, plan.Selectivity, 1e-9)
}

func TestPlanCompositeExactBeatsIntersection(t *testing.T) {
	indices := []Index{
		newStubIndex("by_city", "city").put([]string{"a"}, "London"),
		newStubIndex("by_age", "age").put([]string{"a"}, 30),
		newStubIndex("by_city_age", "city", "age"),
	}
	planner := NewPlanner(indices, nil)

	plan := planner.PlanConjunction([]Leaf{
		{Field: "city", Value: "London"},
		{Field: "age", Value: 30},
	})
	assert.Equal(t, ExactMatch, plan.Strategy)
	assert.Equal(t, "by_city_age", plan.Index.Name())
}

func TestPlanFullScanWithoutIndexes(t *testing.T) {
	planner := NewPlanner(nil, nil)

	plan := planner.PlanConjunction([]Leaf{{Field: "city", Value: "London"}})
	assert.Equal(t, FullScan, plan.Strategy)
	assert.Equal(t, 1.0, plan.Selectivity)
}

func TestPlanDisjunctionUnion(t *testing.T) {
	indices := []Index{
		newStubIndex("by_city", "city"),
		newStubIndex("by_status", "status"),
	}
	planner := NewPlanner(indices, nil)

	plan := planner.PlanDisjunction([]Leaf{
		{Field: "city", Value: "London"},
		{Field: "status", Value: "active"},
	})
	assert.Equal(t, IndexUnion, plan.Strategy)
	assert.True(t, plan.Or)
	assert.Len(t, plan.Probes, 2)
}

func TestPlanDisjunctionFallsBackToScan(t *testing.T) {
	planner := NewPlanner([]Index{newStubIndex("by_city", "city")}, nil)

	plan := planner.PlanDisjunction([]Leaf{
		{Field: "city", Value: "London"},
		{Field: "status", Value: "active"},
	})
	assert.Equal(t, FullScan, plan.Strategy)
	assert.True(t, plan.Or)
}

func TestPlanSortStrategies(t *testing.T) {
	planner := NewPlanner(nil, nil)
	keys := []domain.SortKey{{Field: "age"}}
	required := func(string) bool { return true }

	strategy, _ := planner.PlanSort(keys, false, required, 10, 0)
	assert.Equal(t, SortTopN, strategy)

	strategy, _ = planner.PlanSort(keys, false, required, 0, 0)
	assert.Equal(t, SortLoadAndSort, strategy)

	strategy, _ = planner.PlanSort(keys, false, required, 90, 20)
	assert.Equal(t, SortLoadAndSort, strategy, "limit+offset beyond the heap window")

	multi := []domain.SortKey{{Field: "age"}, {Field: "name"}}
	strategy, _ = planner.PlanSort(multi, false, required, 10, 0)
	assert.Equal(t, SortLoadAndSort, strategy)
}
