package query

import (
	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/domain"
)

// Engine evaluates parsed condition trees by planning and executing each
// boolean group, then combining the groups by document id.
type Engine struct {
	planner  *Planner
	executor *Executor
	logger   *zap.SugaredLogger
}

// NewEngine creates an engine over the given planner and executor.
func NewEngine(planner *Planner, executor *Executor, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{planner: planner, executor: executor, logger: logger}
}

// Run evaluates a condition tree. A nil tree matches every document. Equality
// leaves sharing an AND or OR group are planned together so composite indexes
// and intersections can cover them; nested subtrees are evaluated recursively
// and combined by id.
func (e *Engine) Run(node *domain.ConditionNode) ([]domain.Document, error) {
	if node == nil {
		return e.executor.Execute(&Plan{Strategy: FullScan, Selectivity: 1.0})
	}
	if node.IsLeaf() {
		plan := e.planner.PlanConjunction([]Leaf{{Field: node.Field, Value: node.Value}})
		return e.executor.Execute(plan)
	}
	if len(node.And) > 0 {
		return e.runAnd(node.And)
	}
	return e.runOr(node.Or)
}

func (e *Engine) runAnd(children []*domain.ConditionNode) ([]domain.Document, error) {
	leaves, subtrees := splitChildren(children)

	var (
		result []domain.Document
		seeded bool
	)
	if len(leaves) > 0 {
		plan := e.planner.PlanConjunction(leaves)
		docs, err := e.executor.Execute(plan)
		if err != nil {
			return nil, err
		}
		result, seeded = docs, true
	}

	for _, child := range subtrees {
		if seeded && len(result) == 0 {
			return nil, nil
		}
		docs, err := e.Run(child)
		if err != nil {
			return nil, err
		}
		if !seeded {
			result, seeded = docs, true
			continue
		}
		result = intersectDocs(result, docs)
	}
	return result, nil
}

func (e *Engine) runOr(children []*domain.ConditionNode) ([]domain.Document, error) {
	leaves, subtrees := splitChildren(children)

	seen := make(map[string]bool)
	var result []domain.Document

	merge := func(docs []domain.Document) {
		for _, doc := range docs {
			id := doc.ID()
			if id == "" || !seen[id] {
				seen[id] = true
				result = append(result, doc)
			}
		}
	}

	if len(leaves) > 0 {
		plan := e.planner.PlanDisjunction(leaves)
		docs, err := e.executor.Execute(plan)
		if err != nil {
			return nil, err
		}
		merge(docs)
	}
	for _, child := range subtrees {
		docs, err := e.Run(child)
		if err != nil {
			return nil, err
		}
		merge(docs)
	}
	return result, nil
}

func splitChildren(children []*domain.ConditionNode) ([]Leaf, []*domain.ConditionNode) {
	var (
		leaves   []Leaf
		subtrees []*domain.ConditionNode
	)
	for _, child := range children {
		if child == nil {
			continue
		}
		if child.IsLeaf() {
			leaves = append(leaves, Leaf{Field: child.Field, Value: child.Value})
			continue
		}
		subtrees = append(subtrees, child)
	}
	return leaves, subtrees
}

func intersectDocs(a, b []domain.Document) []domain.Document {
	inB := make(map[string]bool, len(b))
	for _, doc := range b {
		inB[doc.ID()] = true
	}
	result := make([]domain.Document, 0, len(a))
	for _, doc := range a {
		if inB[doc.ID()] {
			result = append(result, doc)
		}
	}
	return result
}
