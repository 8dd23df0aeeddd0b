package query

import (
	"container/heap"

	"github.com/docshard/docshard/pkg/domain"
)

// TopN returns the first n documents of docs under the given ordering without
// sorting the whole slice. A bounded heap holds the current best n; each
// remaining document either displaces the worst resident or is dropped.
func TopN(docs []domain.Document, n int, less func(a, b domain.Document) bool) []domain.Document {
	if n <= 0 {
		return nil
	}
	if n >= len(docs) {
		sorted := append([]domain.Document(nil), docs...)
		sortDocsByLess(sorted, less)
		return sorted
	}

	h := &docHeap{less: less}
	heap.Init(h)
	for _, doc := range docs {
		if h.Len() < n {
			heap.Push(h, doc)
			continue
		}
		if less(doc, h.docs[0]) {
			h.docs[0] = doc
			heap.Fix(h, 0)
		}
	}

	// Drain the heap worst-first into the result back-to-front.
	result := make([]domain.Document, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(domain.Document)
	}
	return result
}

// docHeap is a max-heap under less: the root is the worst of the resident
// documents, so it is the one displaced first.
type docHeap struct {
	docs []domain.Document
	less func(a, b domain.Document) bool
}

func (h *docHeap) Len() int           { return len(h.docs) }
func (h *docHeap) Less(i, j int) bool { return h.less(h.docs[j], h.docs[i]) }
func (h *docHeap) Swap(i, j int)      { h.docs[i], h.docs[j] = h.docs[j], h.docs[i] }

func (h *docHeap) Push(x interface{}) {
	h.docs = append(h.docs, x.(domain.Document))
}

func (h *docHeap) Pop() interface{} {
	last := len(h.docs) - 1
	doc := h.docs[last]
	h.docs = h.docs[:last]
	return doc
}
