package domain

import "strings"

// IDField is the name of the synthesized unique identifier every persisted
// document carries. It is assigned on insert and indexable like any other field.
const IDField = "id"

// Document represents a document in the database
type Document map[string]interface{}

// ID returns the document's identifier, or "" when unset.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Copy returns a shallow copy of the document. Nested maps and slices are
// shared with the original.
func (d Document) Copy() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Get resolves a field path on the document. A path containing '.' addresses
// nested maps by dot-splitting. The second return reports whether every
// segment of the path resolved.
func (d Document) Get(path string) (interface{}, bool) {
	if !strings.Contains(path, ".") {
		v, ok := d[path]
		return v, ok
	}

	segments := strings.Split(path, ".")
	var current interface{} = map[string]interface{}(d)
	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			if doc, isDoc := current.(Document); isDoc {
				m = map[string]interface{}(doc)
			} else {
				return nil, false
			}
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
