package db

import (
	"errors"
	"fmt"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/query"
)

// validateRelations checks every relation field with a non-null value against
// its target collection. A value that resolves to no target document is a
// RelationError.
func (c *Collection) validateRelations(doc domain.Document) error {
	for field, rel := range c.schema.Relations {
		value, ok := doc.Get(field)
		if !ok || value == nil {
			continue
		}
		exists, err := c.relationTargetExists(rel, field, value)
		if err != nil {
			return err
		}
		if !exists {
			return &domain.RelationError{Field: field, Target: rel.Collection, Value: value}
		}
	}
	return nil
}

func (c *Collection) relationTargetExists(rel domain.RelationDef, field string, value interface{}) (bool, error) {
	target, err := c.db.Collection(rel.Collection)
	if err != nil {
		return false, fmt.Errorf("resolving relation %s: %w", field, err)
	}

	resolved, _ := c.schema.RelationTarget(field)
	if resolved.TargetField == domain.IDField {
		id, ok := value.(string)
		if !ok {
			return false, nil
		}
		_, err := target.store.LoadDocument(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}

	matches, err := target.matchField(resolved.TargetField, value)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// populate resolves the requested relation fields of each result document
// into full target documents. The originals are left untouched; the returned
// slice holds resolved copies in result order, each relation field replaced
// by the target document or nil when it cannot be resolved.
func (c *Collection) populate(docs []domain.Document, fields []string) ([]domain.Document, error) {
	if c.schema == nil {
		return nil, &domain.ValidationError{Field: "populate", Reason: "collection has no schema"}
	}

	populated := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		resolved := doc.Copy()
		for _, field := range fields {
			rel, ok := c.schema.Relations[field]
			if !ok {
				return nil, &domain.ValidationError{Field: field, Reason: "not a relation field"}
			}
			value, ok := doc.Get(field)
			if !ok || value == nil {
				continue
			}
			targetDoc, err := c.resolveRelation(rel, field, value)
			if err != nil {
				return nil, err
			}
			resolved[field] = targetDoc
		}
		populated = append(populated, resolved)
	}
	return populated, nil
}

func (c *Collection) resolveRelation(rel domain.RelationDef, field string, value interface{}) (domain.Document, error) {
	target, err := c.db.Collection(rel.Collection)
	if err != nil {
		return nil, fmt.Errorf("resolving relation %s: %w", field, err)
	}

	resolved, _ := c.schema.RelationTarget(field)
	if resolved.TargetField == domain.IDField {
		id, ok := value.(string)
		if !ok {
			return nil, nil
		}
		doc, err := target.store.LoadDocument(id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return doc, nil
	}

	matches, err := target.matchField(resolved.TargetField, value)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// matchField finds documents whose field equals the value, using the target
// collection's own planner so an indexed target field avoids a full scan.
// It takes no collection lock: callers may hold the lock of this or another
// collection, and reads are consistent against the store's atomic writes.
func (c *Collection) matchField(field string, value interface{}) ([]domain.Document, error) {
	planner := query.NewPlanner(c.plannerIndices(), c.logger)
	executor := query.NewExecutor(c.store, c.logger)
	plan := planner.PlanConjunction([]query.Leaf{{Field: field, Value: value}})
	return executor.Execute(plan)
}
