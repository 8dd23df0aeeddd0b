package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/docshard/docshard/pkg/domain"
)

// AllDocuments walks every primary shard and sub-shard and yields parsed
// documents on the returned channel. Unreadable or corrupt files are skipped
// with a warning. Order is filesystem-dependent and must not be relied upon.
func (ds *DocumentStore) AllDocuments() <-chan domain.Document {
	out := make(chan domain.Document, 100)

	go func() {
		defer close(out)

		primaries, err := os.ReadDir(ds.path)
		if err != nil {
			if !os.IsNotExist(err) {
				ds.logger.Warnw("failed to enumerate collection directory",
					"path", ds.path, "error", err)
			}
			return
		}

		for _, primary := range primaries {
			if !primary.IsDir() || strings.HasPrefix(primary.Name(), "_") {
				continue
			}
			primaryPath := filepath.Join(ds.path, primary.Name())
			subs, err := os.ReadDir(primaryPath)
			if err != nil {
				ds.logger.Warnw("failed to read primary shard directory",
					"path", primaryPath, "error", err)
				continue
			}
			for _, sub := range subs {
				if !sub.IsDir() {
					continue
				}
				ds.streamSubShard(filepath.Join(primaryPath, sub.Name()), out)
			}
		}
	}()

	return out
}

func (ds *DocumentStore) streamSubShard(dir string, out chan<- domain.Document) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		ds.logger.Warnw("failed to read sub-shard directory", "path", dir, "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			ds.logger.Warnw("skipping unreadable document file", "path", path, "error", err)
			continue
		}
		var doc domain.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			ds.logger.Warnw("skipping corrupt document file", "path", path, "error", err)
			continue
		}
		out <- doc
	}
}

// CountDocuments walks the shard tree and returns the number of parsable
// document files.
func (ds *DocumentStore) CountDocuments() int {
	count := 0
	for range ds.AllDocuments() {
		count++
	}
	return count
}
