// Package db is the embedded database facade: it owns the on-disk layout,
// the per-collection locks, and the metadata file that records which
// collections and schemas exist.
package db

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/storage"
)

const (
	// MetadataFileName is the marker file that identifies a database root.
	MetadataFileName = "_db_metadata.json"
	// MetadataVersion is written into new metadata files.
	MetadataVersion = "1.0"
)

// CollectionMeta records one collection in the database metadata.
type CollectionMeta struct {
	Schema  *domain.Schema `json:"schema,omitempty"`
	Created string         `json:"created"`
}

// Metadata is the persisted database manifest.
type Metadata struct {
	Version     string                    `json:"version"`
	Created     string                    `json:"created"`
	Collections map[string]CollectionMeta `json:"collections"`
}

// Database is a handle on one database directory. It hands out Collection
// facades and keeps the metadata file in sync with them.
type Database struct {
	path   string
	cfg    *config
	logger *zap.SugaredLogger

	mu          sync.Mutex
	meta        *Metadata
	collections map[string]*Collection
}

// Create initializes a new database in dir. The directory must not already
// contain files; a fresh metadata manifest is written atomically.
func Create(dir string, opts ...Option) (*Database, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading database dir: %w", err)
	}
	if len(entries) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotEmptyDatabase, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}

	d := newDatabase(dir, opts)
	d.meta = &Metadata{
		Version:     MetadataVersion,
		Created:     time.Now().UTC().Format(time.RFC3339),
		Collections: make(map[string]CollectionMeta),
	}
	if err := d.saveMetadata(); err != nil {
		return nil, err
	}
	d.logger.Infow("database created", "path", dir)
	return d, nil
}

// Open attaches to an existing database. A directory without a metadata
// manifest is not a database.
func Open(dir string, opts ...Option) (*Database, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingDatabase, dir)
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	if meta.Collections == nil {
		meta.Collections = make(map[string]CollectionMeta)
	}

	d := newDatabase(dir, opts)
	d.meta = &meta
	d.logger.Infow("database opened", "path", dir, "collections", len(meta.Collections))
	return d, nil
}

func newDatabase(dir string, opts []Option) *Database {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Database{
		path:        dir,
		cfg:         cfg,
		logger:      cfg.logger,
		collections: make(map[string]*Collection),
	}
}

// Path returns the database root directory.
func (d *Database) Path() string {
	return d.path
}

// Collection returns a handle on the named collection, creating it if absent.
// An optional schema applies only on creation; reopening an existing
// collection keeps its stored schema.
func (d *Database) Collection(name string, schema ...*domain.Schema) (*Collection, error) {
	if name == "" || name[0] == '_' {
		return nil, &domain.ValidationError{Field: "collection", Reason: "name must be non-empty and not start with '_'"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if coll, ok := d.collections[name]; ok {
		return coll, nil
	}

	meta, exists := d.meta.Collections[name]
	if !exists {
		var s *domain.Schema
		if len(schema) > 0 && schema[0] != nil {
			s = schema[0]
			if err := s.Validate(); err != nil {
				return nil, err
			}
		}
		meta = CollectionMeta{Schema: s, Created: time.Now().UTC().Format(time.RFC3339)}
		d.meta.Collections[name] = meta
		if err := d.saveMetadata(); err != nil {
			delete(d.meta.Collections, name)
			return nil, err
		}
		d.logger.Infow("collection created", "name", name)
	}

	coll, err := newCollection(d, name, meta.Schema)
	if err != nil {
		return nil, err
	}
	d.collections[name] = coll
	return coll, nil
}

// DropCollection removes a collection's documents, indexes and metadata entry.
func (d *Database) DropCollection(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.meta.Collections[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}

	if coll, ok := d.collections[name]; ok {
		if err := coll.Close(); err != nil {
			d.logger.Warnw("closing collection before drop", "name", name, "error", err)
		}
		delete(d.collections, name)
	}
	if err := os.RemoveAll(filepath.Join(d.path, name)); err != nil {
		return fmt.Errorf("removing collection dir: %w", err)
	}

	delete(d.meta.Collections, name)
	if err := d.saveMetadata(); err != nil {
		return err
	}
	d.logger.Infow("collection dropped", "name", name)
	return nil
}

// ListCollections returns collection names in sorted order.
func (d *Database) ListCollections() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	names := make([]string, 0, len(d.meta.Collections))
	for name := range d.meta.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every open collection and releases the handle.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs error
	for name, coll := range d.collections {
		if err := coll.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(d.collections, name)
	}
	return errs
}

func (d *Database) saveMetadata() error {
	data, err := json.MarshalIndent(d.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	path := filepath.Join(d.path, MetadataFileName)
	if err := storage.AtomicWriteFile(path, data); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}
