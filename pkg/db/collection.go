package db

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/indexing"
	"github.com/docshard/docshard/pkg/query"
	"github.com/docshard/docshard/pkg/storage"
)

// Collection is the facade for one named document collection: validated
// writes, index maintenance, and planned queries, all under a collection-wide
// reader-writer lock.
type Collection struct {
	name   string
	schema *domain.Schema
	db     *Database
	store  *storage.DocumentStore
	logger *zap.SugaredLogger

	mu           sync.RWMutex
	indices      map[string]*indexing.ShardedIndex
	pendingBuild map[string]bool
	matcher      *query.LikeMatcher
}

func newCollection(d *Database, name string, schema *domain.Schema) (*Collection, error) {
	dir := filepath.Join(d.path, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating collection dir: %w", err)
	}

	c := &Collection{
		name:         name,
		schema:       schema,
		db:           d,
		store:        storage.NewDocumentStore(dir, d.cfg.subShardCount, d.logger),
		logger:       d.logger,
		indices:      make(map[string]*indexing.ShardedIndex),
		pendingBuild: make(map[string]bool),
		matcher:      query.NewLikeMatcher(),
	}

	if schema != nil {
		indicesDir := filepath.Join(dir, storage.IndicesDirName)
		for idxName, fields := range schema.Indices {
			ix, err := indexing.NewShardedIndex(indicesDir, idxName, fields, d.cfg.shardCount, d.cfg.shardCacheSize, d.logger)
			if err != nil {
				return nil, err
			}
			c.indices[idxName] = ix
			if !ix.ExistsOnDisk() {
				if d.cfg.skipInitialIndexBuild {
					c.pendingBuild[idxName] = true
				} else if err := ix.BuildFromDocuments(c.store.AllDocuments()); err != nil {
					return nil, fmt.Errorf("building index %s: %w", idxName, err)
				}
			}
		}
	}
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Schema returns the collection's schema, nil for schemaless collections.
func (c *Collection) Schema() *domain.Schema {
	return c.schema
}

// Insert validates and stores a new document and posts it to every index.
// A missing id is assigned. The stored copy is returned.
func (c *Collection) Insert(doc domain.Document) (domain.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := doc.Copy()
	if stored.ID() == "" {
		stored[domain.IDField] = uuid.New().String()
	}

	if err := c.validate(stored); err != nil {
		return nil, err
	}
	if err := c.ensurePendingBuilds(); err != nil {
		return nil, err
	}
	if err := c.store.SaveDocument(stored); err != nil {
		return nil, err
	}
	if err := c.indexDocument(stored); err != nil {
		return nil, err
	}

	c.logger.Debugw("document inserted", "collection", c.name, "id", stored.ID())
	return stored, nil
}

// Update merges fields into an existing document, re-validates, stores it and
// repositions it in every index whose key changed.
func (c *Collection) Update(id string, fields domain.Document) (domain.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, err := c.store.LoadDocument(id)
	if err != nil {
		return nil, err
	}

	updated := old.Copy()
	for k, v := range fields {
		if k == domain.IDField {
			continue
		}
		updated[k] = v
	}

	if err := c.validate(updated); err != nil {
		return nil, err
	}
	if err := c.ensurePendingBuilds(); err != nil {
		return nil, err
	}
	if err := c.store.SaveDocument(updated); err != nil {
		return nil, err
	}
	if err := c.reindexDocument(old, updated); err != nil {
		return nil, err
	}

	c.logger.Debugw("document updated", "collection", c.name, "id", id)
	return updated, nil
}

// Delete removes a document and its index postings. Deleting an absent id
// returns ErrNotFound.
func (c *Collection) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, err := c.store.LoadDocument(id)
	if err != nil {
		return err
	}
	if err := c.ensurePendingBuilds(); err != nil {
		return err
	}

	removed, err := c.store.DeleteDocument(id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	for _, ix := range c.indices {
		values, ok := ix.ValuesFor(old)
		if !ok {
			continue
		}
		if err := ix.Remove(values, id); err != nil {
			return err
		}
	}

	c.logger.Debugw("document deleted", "collection", c.name, "id", id)
	return nil
}

// GetByID loads one document.
func (c *Collection) GetByID(id string) (domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.LoadDocument(id)
}

// Count returns the number of stored documents.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.CountDocuments()
}

// Find evaluates a query: the condition tree is planned against the
// collection's indexes, post-filters and like patterns prune the matches,
// results are ordered and paginated, and relations are optionally populated.
// Size reports the match count before pagination.
func (c *Collection) Find(q *domain.FindQuery) (*domain.FindResult, error) {
	if q == nil {
		q = &domain.FindQuery{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	cond, err := domain.ParseCondition(q.Where)
	if err != nil {
		return nil, err
	}
	sortKeys, err := domain.ParseOrderBy(q.OrderBy)
	if err != nil {
		return nil, err
	}

	planner := query.NewPlanner(c.plannerIndices(), c.logger)
	executor := query.NewExecutor(c.store, c.logger)

	restricted := cond != nil || len(q.Filter) > 0 || len(q.Like) > 0
	strategy, orderIdx := planner.PlanSort(sortKeys, restricted, c.fieldRequired, q.Limit, q.Offset)

	var docs []domain.Document
	if strategy == query.SortIndexScanOrdered {
		ordered, ok := orderIdx.(query.OrderedIndex)
		if !ok {
			return nil, &domain.PlannerError{Reason: "ordered scan planned on unordered index"}
		}
		docs, err = executor.ExecuteOrderedScan(ordered, sortKeys[0].Descending)
	} else {
		engine := query.NewEngine(planner, executor, c.logger)
		docs, err = engine.Run(cond)
	}
	if err != nil {
		return nil, err
	}

	docs = c.applyFilter(docs, q.Filter)
	docs = c.applyLike(docs, q.Like)

	size := len(docs)

	switch strategy {
	case query.SortTopN:
		docs = query.TopN(docs, q.Limit+q.Offset, query.LessFor(sortKeys))
	case query.SortLoadAndSort:
		if len(sortKeys) > 0 {
			query.SortDocuments(docs, sortKeys)
		}
	}

	docs = paginate(docs, q.Limit, q.Offset)

	result := &domain.FindResult{
		Size:    size,
		Limit:   q.Limit,
		Offset:  q.Offset,
		Results: docs,
	}
	if len(q.Populate) > 0 {
		populated, err := c.populate(docs, q.Populate)
		if err != nil {
			return nil, err
		}
		result.Populated = populated
	}
	return result, nil
}

func (c *Collection) applyFilter(docs []domain.Document, filter map[string]interface{}) []domain.Document {
	if len(filter) == 0 {
		return docs
	}
	leaves := make([]query.Leaf, 0, len(filter))
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		leaves = append(leaves, query.Leaf{Field: field, Value: filter[field]})
	}

	kept := docs[:0]
	for _, doc := range docs {
		if query.MatchesAll(doc, leaves) {
			kept = append(kept, doc)
		}
	}
	return kept
}

func (c *Collection) applyLike(docs []domain.Document, like map[string]string) []domain.Document {
	if len(like) == 0 {
		return docs
	}
	kept := docs[:0]
	for _, doc := range docs {
		matches := true
		for field, pattern := range like {
			value, ok := doc.Get(field)
			if !ok || !c.matcher.Match(value, pattern) {
				matches = false
				break
			}
		}
		if matches {
			kept = append(kept, doc)
		}
	}
	return kept
}

func paginate(docs []domain.Document, limit, offset int) []domain.Document {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(docs) {
		return nil
	}
	docs = docs[offset:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

func (c *Collection) plannerIndices() []query.Index {
	names := make([]string, 0, len(c.indices))
	for name := range c.indices {
		names = append(names, name)
	}
	sort.Strings(names)

	indices := make([]query.Index, 0, len(names))
	for _, name := range names {
		if c.pendingBuild[name] {
			continue
		}
		indices = append(indices, c.indices[name])
	}
	return indices
}

func (c *Collection) fieldRequired(field string) bool {
	if c.schema == nil {
		return false
	}
	def, ok := c.schema.Fields[field]
	return ok && def.Required
}

func (c *Collection) validate(doc domain.Document) error {
	if c.schema == nil {
		return nil
	}
	if err := c.schema.ValidateDocument(doc); err != nil {
		return err
	}
	if c.schema.ValidateRelations {
		return c.validateRelations(doc)
	}
	return nil
}

func (c *Collection) indexDocument(doc domain.Document) error {
	id := doc.ID()
	for _, ix := range c.indices {
		values, ok := ix.ValuesFor(doc)
		if !ok {
			continue
		}
		if err := ix.Add(values, id); err != nil {
			return err
		}
	}
	return nil
}

// reindexDocument repositions a document in every index whose composite key
// changed between the old and new revision. Unchanged keys are left alone.
func (c *Collection) reindexDocument(old, updated domain.Document) error {
	id := updated.ID()
	for _, ix := range c.indices {
		oldValues, hadOld := ix.ValuesFor(old)
		newValues, hasNew := ix.ValuesFor(updated)

		if hadOld && hasNew {
			oldKey, errOld := indexing.EncodeValues(oldValues)
			newKey, errNew := indexing.EncodeValues(newValues)
			if errOld == nil && errNew == nil && oldKey == newKey {
				continue
			}
		}
		if hadOld {
			if err := ix.Remove(oldValues, id); err != nil {
				return err
			}
		}
		if hasNew {
			if err := ix.Add(newValues, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensurePendingBuilds builds any index whose initial build was deferred.
// Runs under the collection write lock.
func (c *Collection) ensurePendingBuilds() error {
	for name := range c.pendingBuild {
		ix := c.indices[name]
		if err := ix.BuildFromDocuments(c.store.AllDocuments()); err != nil {
			return fmt.Errorf("building deferred index %s: %w", name, err)
		}
		delete(c.pendingBuild, name)
		c.logger.Infow("deferred index built", "collection", c.name, "index", name)
	}
	return nil
}

// RebuildAllIndices wipes the collection's index directory and rebuilds every
// declared index from the stored documents.
func (c *Collection) RebuildAllIndices() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	indicesDir := filepath.Join(c.store.Path(), storage.IndicesDirName)
	if err := os.RemoveAll(indicesDir); err != nil {
		return fmt.Errorf("removing index dir: %w", err)
	}

	for name, ix := range c.indices {
		if err := ix.BuildFromDocuments(c.store.AllDocuments()); err != nil {
			return fmt.Errorf("rebuilding index %s: %w", name, err)
		}
		delete(c.pendingBuild, name)
	}
	c.logger.Infow("all indices rebuilt", "collection", c.name, "count", len(c.indices))
	return nil
}

// IndexHealthReport summarizes the on-disk state of a collection's indexes.
type IndexHealthReport struct {
	Expected  []string
	Present   []string
	Missing   []string
	Corrupted []string
}

// CheckIndicesHealth inspects every declared index's shard files.
func (c *Collection) CheckIndicesHealth() *IndexHealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := &IndexHealthReport{}
	names := make([]string, 0, len(c.indices))
	for name := range c.indices {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		report.Expected = append(report.Expected, name)
		present, corrupted := c.indices[name].CheckHealth()
		if present {
			report.Present = append(report.Present, name)
		} else {
			report.Missing = append(report.Missing, name)
		}
		if corrupted {
			report.Corrupted = append(report.Corrupted, name)
		}
	}
	return report
}

// Close releases every index's in-memory cache.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs error
	for name, ix := range c.indices {
		if err := ix.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("closing index %s: %w", name, err))
		}
	}
	return errs
}
