package query

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/domain"
)

// Strategy identifies how a condition is executed against a collection.
type Strategy string

const (
	// ExactMatch probes one composite index with a fully bound key.
	ExactMatch Strategy = "EXACT_MATCH"
	// PrefixMatch scans one composite index for keys sharing a bound prefix.
	PrefixMatch Strategy = "PREFIX_MATCH"
	// IndexIntersect probes several single-field indexes and intersects ids.
	IndexIntersect Strategy = "INDEX_INTERSECT"
	// IndexSeekFilter probes an index for a candidate set, then filters the
	// loaded documents against the remaining predicates.
	IndexSeekFilter Strategy = "INDEX_SEEK_FILTER"
	// IndexUnion probes one index per disjunct and unions ids.
	IndexUnion Strategy = "INDEX_UNION"
	// FullScan streams every document and filters in memory.
	FullScan Strategy = "FULL_SCAN"
)

// strategyRank breaks selectivity ties. Lower rank wins.
func strategyRank(s Strategy) int {
	switch s {
	case ExactMatch:
		return 0
	case PrefixMatch:
		return 1
	case IndexIntersect:
		return 2
	case IndexSeekFilter:
		return 3
	case IndexUnion:
		return 4
	default:
		return 5
	}
}

// Index is the subset of index behavior the planner and executor need.
type Index interface {
	Name() string
	Fields() []string
	GetExact(values []interface{}) ([]string, error)
	GetPrefix(values []interface{}) ([]string, error)
}

// OrderedIndex extends Index with ordered key enumeration for sorted scans.
type OrderedIndex interface {
	Index
	SortedKeys(less func(a, b string) bool) ([]string, map[string][]string, error)
}

// Probe is a single-field index lookup feeding an intersection or union.
type Probe struct {
	Index Index
	Field string
	Value interface{}
	// IDs holds the posting list fetched while costing the probe, so the
	// executor does not probe the index twice.
	IDs []string
}

// Plan is the planner's chosen execution strategy for one condition group.
type Plan struct {
	Strategy    Strategy
	Selectivity float64

	// Index and Values are set for EXACT_MATCH, PREFIX_MATCH and
	// INDEX_SEEK_FILTER.
	Index  Index
	Values []interface{}

	// Residual holds the equality predicates the index probe does not cover.
	Residual []Leaf

	// Probes is set for INDEX_INTERSECT and INDEX_UNION.
	Probes []Probe

	// Leaves holds every equality predicate of the group, used by FULL_SCAN.
	Leaves []Leaf

	// Or marks a FULL_SCAN that evaluates its leaves disjunctively.
	Or bool
}

// Planner chooses execution strategies from the indexes declared on a
// collection.
type Planner struct {
	indices []Index
	logger  *zap.SugaredLogger
}

// NewPlanner creates a planner over the given indexes.
func NewPlanner(indices []Index, logger *zap.SugaredLogger) *Planner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Planner{indices: indices, logger: logger}
}

// PlanConjunction picks the cheapest strategy for an AND group of equality
// leaves. Candidates are composite-index matches (exact when every index
// field is bound and no leaf is left over, prefix when only a leading run is
// bound and no leaf is left over, seek-and-filter when leaves remain), an
// intersection of single-field indexes, and the always-available full scan. The candidate
// with the smallest estimated selectivity wins; ties go to the stronger
// strategy.
func (p *Planner) PlanConjunction(leaves []Leaf) *Plan {
	best := &Plan{Strategy: FullScan, Selectivity: 1.0, Leaves: leaves}

	byField := make(map[string]interface{}, len(leaves))
	for _, leaf := range leaves {
		byField[leaf.Field] = leaf.Value
	}

	for _, idx := range p.indices {
		candidate := p.planIndexCandidate(idx, leaves, byField)
		if candidate != nil && better(candidate, best) {
			best = candidate
		}
	}

	if candidate := p.planIntersection(leaves); candidate != nil && better(candidate, best) {
		best = candidate
	}

	p.logger.Debugw("planned conjunction",
		"strategy", best.Strategy,
		"selectivity", best.Selectivity,
		"leaves", len(leaves),
	)
	return best
}

// planIndexCandidate costs one composite index against the group. The bound
// prefix is order-sensitive: field i of the index must be bound by some leaf
// for position i to count, and the run stops at the first unbound field.
func (p *Planner) planIndexCandidate(idx Index, leaves []Leaf, byField map[string]interface{}) *Plan {
	fields := idx.Fields()
	values := make([]interface{}, 0, len(fields))
	bound := make(map[string]bool, len(fields))
	for _, field := range fields {
		value, ok := byField[field]
		if !ok {
			break
		}
		values = append(values, value)
		bound[field] = true
	}
	if len(values) == 0 {
		return nil
	}

	residual := make([]Leaf, 0, len(leaves))
	for _, leaf := range leaves {
		if !bound[leaf.Field] {
			residual = append(residual, leaf)
		}
	}

	sel := math.Pow(0.1, float64(len(values)))
	if len(values) == len(fields) && len(residual) == 0 {
		return &Plan{Strategy: ExactMatch, Selectivity: sel, Index: idx, Values: values, Leaves: leaves}
	}
	if len(residual) == 0 {
		return &Plan{Strategy: PrefixMatch, Selectivity: sel, Index: idx, Values: values, Leaves: leaves}
	}
	return &Plan{Strategy: IndexSeekFilter, Selectivity: sel, Index: idx, Values: values, Residual: residual, Leaves: leaves}
}

// planIntersection builds an intersection candidate when the group has two or
// more leaves and every leaf's field has a single-field index. A group with
// any leaf lacking such an index gets no intersection candidate; leaves are
// not carried over as residual filters. Probes run at plan time so they can
// be ordered smallest posting list first.
func (p *Planner) planIntersection(leaves []Leaf) *Plan {
	if len(leaves) < 2 {
		return nil
	}

	single := make(map[string]Index, len(p.indices))
	for _, idx := range p.indices {
		if fields := idx.Fields(); len(fields) == 1 {
			if _, seen := single[fields[0]]; !seen {
				single[fields[0]] = idx
			}
		}
	}

	probes := make([]Probe, 0, len(leaves))
	for _, leaf := range leaves {
		idx, ok := single[leaf.Field]
		if !ok {
			return nil
		}
		ids, err := idx.GetExact([]interface{}{leaf.Value})
		if err != nil {
			p.logger.Warnw("intersection probe failed", "index", idx.Name(), "error", err)
			return nil
		}
		probes = append(probes, Probe{Index: idx, Field: leaf.Field, Value: leaf.Value, IDs: ids})
	}
	if len(probes) < 2 {
		return nil
	}

	sort.SliceStable(probes, func(i, j int) bool {
		return len(probes[i].IDs) < len(probes[j].IDs)
	})

	return &Plan{
		Strategy:    IndexIntersect,
		Selectivity: 0.1 / float64(len(probes)),
		Probes:      probes,
		Leaves:      leaves,
	}
}

// PlanDisjunction picks a strategy for an OR group of equality leaves. The
// union strategy applies only when every leaf's field has a single-field
// index; otherwise the whole group falls back to a disjunctive full scan.
func (p *Planner) PlanDisjunction(leaves []Leaf) *Plan {
	single := make(map[string]Index, len(p.indices))
	for _, idx := range p.indices {
		if fields := idx.Fields(); len(fields) == 1 {
			if _, seen := single[fields[0]]; !seen {
				single[fields[0]] = idx
			}
		}
	}

	probes := make([]Probe, 0, len(leaves))
	for _, leaf := range leaves {
		idx, ok := single[leaf.Field]
		if !ok {
			return &Plan{Strategy: FullScan, Selectivity: 1.0, Leaves: leaves, Or: true}
		}
		probes = append(probes, Probe{Index: idx, Field: leaf.Field, Value: leaf.Value})
	}
	if len(probes) == 0 {
		return &Plan{Strategy: FullScan, Selectivity: 1.0, Leaves: leaves, Or: true}
	}

	p.logger.Debugw("planned disjunction", "strategy", IndexUnion, "probes", len(probes))
	return &Plan{
		Strategy:    IndexUnion,
		Selectivity: math.Min(1.0, 0.1*float64(len(probes))),
		Probes:      probes,
		Leaves:      leaves,
		Or:          true,
	}
}

func better(a, b *Plan) bool {
	if a.Selectivity != b.Selectivity {
		return a.Selectivity < b.Selectivity
	}
	return strategyRank(a.Strategy) < strategyRank(b.Strategy)
}

// SortStrategy identifies how ORDER BY is satisfied.
type SortStrategy string

const (
	// SortLoadAndSort sorts the matched documents in memory.
	SortLoadAndSort SortStrategy = "LOAD_AND_SORT"
	// SortTopN keeps only the first limit+offset documents in a bounded heap.
	SortTopN SortStrategy = "TOP_N"
	// SortIndexScanOrdered walks a single-field index in key order.
	SortIndexScanOrdered SortStrategy = "INDEX_SCAN_ORDERED"
)

// topNThreshold bounds the window where the heap beats a full sort.
const topNThreshold = 100

// PlanSort chooses the ordering strategy for a query. The ordered index scan
// applies only to an unrestricted single-key sort over a field that is both
// indexed on its own and required by the schema, since documents missing the
// field never appear in the index. The heap applies to small bounded windows
// over a single key. Everything else loads and sorts.
func (p *Planner) PlanSort(keys []domain.SortKey, hasCondition bool, required func(field string) bool, limit, offset int) (SortStrategy, Index) {
	if len(keys) == 1 && !hasCondition && required != nil && required(keys[0].Field) {
		for _, idx := range p.indices {
			fields := idx.Fields()
			if len(fields) == 1 && fields[0] == keys[0].Field {
				if _, ok := idx.(OrderedIndex); ok {
					return SortIndexScanOrdered, idx
				}
			}
		}
	}
	if len(keys) == 1 && limit > 0 && limit+offset <= topNThreshold {
		return SortTopN, nil
	}
	return SortLoadAndSort, nil
}
