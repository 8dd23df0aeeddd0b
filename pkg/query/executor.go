package query

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/domain"
)

// DocumentLoader fetches documents by id and streams whole collections. The
// storage layer satisfies it.
type DocumentLoader interface {
	LoadDocument(id string) (domain.Document, error)
	AllDocuments() <-chan domain.Document
}

// Executor runs plans produced by the planner.
type Executor struct {
	loader DocumentLoader
	logger *zap.SugaredLogger
}

// NewExecutor creates an executor over the given document loader.
func NewExecutor(loader DocumentLoader, logger *zap.SugaredLogger) *Executor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{loader: loader, logger: logger}
}

// Execute runs a plan and returns the matching documents. Ids whose document
// has vanished between the index probe and the load are skipped.
func (e *Executor) Execute(plan *Plan) ([]domain.Document, error) {
	switch plan.Strategy {
	case ExactMatch:
		ids, err := plan.Index.GetExact(plan.Values)
		if err != nil {
			return nil, fmt.Errorf("exact probe on %s: %w", plan.Index.Name(), err)
		}
		return e.loadIDs(ids)
	case PrefixMatch:
		ids, err := plan.Index.GetPrefix(plan.Values)
		if err != nil {
			return nil, fmt.Errorf("prefix probe on %s: %w", plan.Index.Name(), err)
		}
		return e.loadIDs(ids)
	case IndexSeekFilter:
		return e.executeSeekFilter(plan)
	case IndexIntersect:
		return e.executeIntersect(plan)
	case IndexUnion:
		return e.executeUnion(plan)
	case FullScan:
		return e.executeFullScan(plan)
	default:
		return nil, &domain.PlannerError{Reason: fmt.Sprintf("unknown strategy %q", plan.Strategy)}
	}
}

// executeSeekFilter probes the plan's index for a candidate set and filters
// the loaded documents against the residual predicates. The probe is exact
// when the key is fully bound and a prefix scan otherwise.
func (e *Executor) executeSeekFilter(plan *Plan) ([]domain.Document, error) {
	var (
		ids []string
		err error
	)
	if len(plan.Values) == len(plan.Index.Fields()) {
		ids, err = plan.Index.GetExact(plan.Values)
	} else {
		ids, err = plan.Index.GetPrefix(plan.Values)
	}
	if err != nil {
		return nil, fmt.Errorf("seek probe on %s: %w", plan.Index.Name(), err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	docs, err := e.loadIDs(ids)
	if err != nil {
		return nil, err
	}
	filtered := docs[:0]
	for _, doc := range docs {
		if MatchesAll(doc, plan.Residual) {
			filtered = append(filtered, doc)
		}
	}
	return filtered, nil
}

// executeIntersect folds the probed posting lists smallest first, so the
// working set only shrinks. An empty probe short-circuits the whole group.
func (e *Executor) executeIntersect(plan *Plan) ([]domain.Document, error) {
	if len(plan.Probes) == 0 {
		return nil, nil
	}

	current := plan.Probes[0].IDs
	for _, probe := range plan.Probes[1:] {
		if len(current) == 0 {
			return nil, nil
		}
		current = intersectIDs(current, probe.IDs)
	}
	if len(current) == 0 {
		return nil, nil
	}
	return e.loadIDs(current)
}

// executeUnion probes every disjunct and merges ids, first occurrence wins.
func (e *Executor) executeUnion(plan *Plan) ([]domain.Document, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, probe := range plan.Probes {
		probed, err := probe.Index.GetExact([]interface{}{probe.Value})
		if err != nil {
			return nil, fmt.Errorf("union probe on %s: %w", probe.Index.Name(), err)
		}
		for _, id := range probed {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return e.loadIDs(ids)
}

func (e *Executor) executeFullScan(plan *Plan) ([]domain.Document, error) {
	var docs []domain.Document
	for doc := range e.loader.AllDocuments() {
		if len(plan.Leaves) == 0 {
			docs = append(docs, doc)
			continue
		}
		if plan.Or {
			if MatchesAny(doc, plan.Leaves) {
				docs = append(docs, doc)
			}
			continue
		}
		if MatchesAll(doc, plan.Leaves) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// ExecuteOrderedScan walks a single-field index in key order and loads
// documents posting list by posting list, yielding results already sorted.
func (e *Executor) ExecuteOrderedScan(idx OrderedIndex, descending bool) ([]domain.Document, error) {
	less := CompareLess(CompareNormalized)
	if descending {
		less = func(a, b string) bool { return CompareNormalized(b, a) < 0 }
	}
	keys, postings, err := idx.SortedKeys(less)
	if err != nil {
		return nil, fmt.Errorf("ordered scan on %s: %w", idx.Name(), err)
	}

	var docs []domain.Document
	for _, key := range keys {
		loaded, err := e.loadIDs(postings[key])
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

// CompareLess adapts a three-way comparison into a less function.
func CompareLess(cmp func(a, b string) int) func(a, b string) bool {
	return func(a, b string) bool { return cmp(a, b) < 0 }
}

func (e *Executor) loadIDs(ids []string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := e.loader.LoadDocument(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				e.logger.Debugw("indexed document missing, skipping", "id", id)
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func intersectIDs(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	result := make([]string, 0, len(a))
	for _, id := range a {
		if inB[id] {
			result = append(result, id)
		}
	}
	return result
}
