// Package query contains the planner and executor that turn boolean
// condition trees over field equalities into index probes, scans, and
// in-memory filtering.
package query

import (
	"github.com/docshard/docshard/pkg/domain"
	"github.com/docshard/docshard/pkg/normalize"
)

// Leaf is a single field equality predicate.
type Leaf struct {
	Field string
	Value interface{}
}

// Matches evaluates an equality predicate against a document. A field path
// containing '.' addresses nested values. When the document value is a
// sequence the predicate holds iff any element matches after normalization;
// otherwise it holds iff both sides normalize to the same string. Missing or
// null document values never match.
func Matches(doc domain.Document, field string, expected interface{}) bool {
	actual, ok := doc.Get(field)
	if !ok || actual == nil {
		return false
	}

	want, err := normalize.Value(expected)
	if err != nil {
		return false
	}

	if seq, isSeq := actual.([]interface{}); isSeq {
		for _, element := range seq {
			if element == nil {
				continue
			}
			got, err := normalize.Value(element)
			if err == nil && got == want {
				return true
			}
		}
		return false
	}

	got, err := normalize.Value(actual)
	if err != nil {
		return false
	}
	return got == want
}

// MatchesAll reports whether the document satisfies every leaf.
func MatchesAll(doc domain.Document, leaves []Leaf) bool {
	for _, leaf := range leaves {
		if !Matches(doc, leaf.Field, leaf.Value) {
			return false
		}
	}
	return true
}

// MatchesAny reports whether the document satisfies at least one leaf.
func MatchesAny(doc domain.Document, leaves []Leaf) bool {
	for _, leaf := range leaves {
		if Matches(doc, leaf.Field, leaf.Value) {
			return true
		}
	}
	return false
}
