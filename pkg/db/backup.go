package db

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/storage"
)

const (
	snapshotMagic   = "DSHD"
	snapshotVersion = byte(1)
)

// snapshot is the portable image of a whole database: the manifest plus every
// collection's documents. Indexes are not captured; they rebuild on restore.
type snapshot struct {
	Metadata    *Metadata                    `msgpack:"metadata"`
	Collections map[string][]domain.Document `msgpack:"collections"`
}

// Backup writes a compressed snapshot of the whole database to path. The
// file starts with a magic header and format version, followed by an
// lz4-compressed msgpack body, and is written atomically.
func (d *Database) Backup(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := snapshot{
		Metadata:    d.meta,
		Collections: make(map[string][]domain.Document, len(d.meta.Collections)),
	}
	for name, meta := range d.meta.Collections {
		coll, err := d.collectionForBackup(name, meta)
		if err != nil {
			return err
		}
		var docs []domain.Document
		for doc := range coll.store.AllDocuments() {
			docs = append(docs, doc)
		}
		snap.Collections[name] = docs
	}

	var body bytes.Buffer
	zw := lz4.NewWriter(&body)
	if err := msgpack.NewEncoder(zw).Encode(&snap); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}

	var out bytes.Buffer
	out.WriteString(snapshotMagic)
	out.WriteByte(snapshotVersion)
	out.Write(body.Bytes())

	if err := storage.AtomicWriteFile(path, out.Bytes()); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	d.logger.Infow("database backed up", "path", path, "collections", len(snap.Collections))
	return nil
}

func (d *Database) collectionForBackup(name string, meta CollectionMeta) (*Collection, error) {
	if coll, ok := d.collections[name]; ok {
		return coll, nil
	}
	coll, err := newCollection(d, name, meta.Schema)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s for backup: %w", name, err)
	}
	d.collections[name] = coll
	return coll, nil
}

// RestoreSnapshot creates a new database in dir from a snapshot file. The
// directory must be empty; documents are written straight to each
// collection's store without validation, and every declared index is then
// rebuilt from the restored documents.
func RestoreSnapshot(dir, path string, opts ...Option) (*Database, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(raw) < len(snapshotMagic)+1 || string(raw[:len(snapshotMagic)]) != snapshotMagic {
		return nil, fmt.Errorf("not a snapshot file: %s", path)
	}
	if version := raw[len(snapshotMagic)]; version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	var snap snapshot
	zr := lz4.NewReader(bytes.NewReader(raw[len(snapshotMagic)+1:]))
	if err := msgpack.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	d, err := Create(dir, opts...)
	if err != nil {
		return nil, err
	}

	for name, docs := range snap.Collections {
		var schema *domain.Schema
		if snap.Metadata != nil {
			if meta, ok := snap.Metadata.Collections[name]; ok {
				schema = meta.Schema
			}
		}
		coll, err := d.Collection(name, schema)
		if err != nil {
			return nil, err
		}
		// Documents go straight to the store: the snapshot was validated when
		// written, and cross-collection relations would otherwise constrain
		// the restore order.
		for _, doc := range docs {
			if err := coll.store.SaveDocument(doc); err != nil {
				return nil, fmt.Errorf("restoring %s/%s: %w", name, doc.ID(), err)
			}
		}
		if err := coll.RebuildAllIndices(); err != nil {
			return nil, err
		}
	}

	d.logger.Infow("database restored", "path", dir, "collections", len(snap.Collections))
	return d, nil
}
