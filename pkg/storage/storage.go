package storage

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/docshard/docshard/pkg/domain"
)

const (
	// PrimaryShardCount is the fixed fan-out of the first directory level.
	PrimaryShardCount = 256

	// DefaultSubShardCount is the default fan-out of the second directory level.
	DefaultSubShardCount = 16

	// IndicesDirName holds a collection's index shard files and is skipped
	// during document enumeration.
	IndicesDirName = "_indices"
)

// DocumentStore persists one collection's documents as individual JSON files
// in a two-level sharded directory tree: <collection>/HHH/SSS/<id>.json.
// Both levels are derived from the md5 of the document id, so a given id
// always resolves to the same path across processes.
type DocumentStore struct {
	path          string
	subShardCount int
	logger        *zap.SugaredLogger
}

// NewDocumentStore creates a store rooted at the given collection directory.
// A nil logger disables logging.
func NewDocumentStore(path string, subShardCount int, logger *zap.SugaredLogger) *DocumentStore {
	if subShardCount <= 0 {
		subShardCount = DefaultSubShardCount
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DocumentStore{
		path:          path,
		subShardCount: subShardCount,
		logger:        logger,
	}
}

// Path returns the collection directory the store is rooted at.
func (ds *DocumentStore) Path() string {
	return ds.path
}

// DocumentPath returns the on-disk location for a document id.
func (ds *DocumentStore) DocumentPath(id string) string {
	sum := md5.Sum([]byte(id))
	primary := binary.BigEndian.Uint16(sum[0:2]) % PrimaryShardCount
	sub := binary.BigEndian.Uint16(sum[2:4]) % uint16(ds.subShardCount)
	return filepath.Join(ds.path,
		fmt.Sprintf("%03d", primary),
		fmt.Sprintf("%03d", sub),
		id+".json")
}

// SaveDocument serializes and writes a document atomically: the JSON is
// written to a temp file in the target directory and renamed into place, so
// readers see either the prior committed version or the new one.
func (ds *DocumentStore) SaveDocument(doc domain.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("document has no id")
	}
	target := ds.DocumentPath(id)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", id, err)
	}

	return atomicWriteFile(target, data)
}

// LoadDocument returns the parsed document for the given id. A missing file
// yields domain.ErrNotFound. A file that exists but does not parse also
// yields domain.ErrNotFound after a warning, so one corrupt file cannot fail
// a whole query.
func (ds *DocumentStore) LoadDocument(id string) (domain.Document, error) {
	data, err := os.ReadFile(ds.DocumentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		ds.logger.Warnw("skipping corrupt document file",
			"collection", filepath.Base(ds.path), "id", id, "error", err)
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// DeleteDocument removes the document file if present and reports whether
// anything was removed.
func (ds *DocumentStore) DeleteDocument(id string) (bool, error) {
	err := os.Remove(ds.DocumentPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return true, nil
}

// atomicWriteFile writes data to path via a temp file and rename. The temp
// file is unlinked when the rename fails.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// AtomicWriteFile exposes the temp-file-plus-rename write used for documents
// so index shards and metadata share the same commit discipline.
func AtomicWriteFile(path string, data []byte) error {
	return atomicWriteFile(path, data)
}
