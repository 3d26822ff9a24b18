// Package memory is an in-process VectorIndex using brute-force cosine
// similarity.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ineyio/creditgate"
)

// generation is an immutable chunk set of one document.
type generation struct {
	chunks []creditgate.Chunk
}

// Index stores one generation per document. Upsert builds a new generation
// off to the side and swaps the pointer under the write lock, so TopK always
// ranks a complete generation.
type Index struct {
	mu        sync.RWMutex
	docs      map[string]*generation
	writers   map[string]*writer
	dimension int
}

// writer serializes writers of one document. It lives in Index.writers
// only while refs > 0.
type writer struct {
	mu   sync.Mutex
	refs int
}

var _ creditgate.VectorIndex = (*Index)(nil)

// New creates an index. dimension 0 adopts the length of the first vector
// upserted.
func New(dimension int) *Index {
	return &Index{
		docs:      make(map[string]*generation),
		writers:   make(map[string]*writer),
		dimension: dimension,
	}
}

// lock acquires the document's writer lock. The returned func releases it
// and drops the entry once no writer holds or waits on it.
func (x *Index) lock(documentID string) func() {
	x.mu.Lock()
	w, ok := x.writers[documentID]
	if !ok {
		w = &writer{}
		x.writers[documentID] = w
	}
	w.refs++
	x.mu.Unlock()

	w.mu.Lock()
	return func() {
		w.mu.Unlock()
		x.mu.Lock()
		if w.refs--; w.refs == 0 {
			delete(x.writers, documentID)
		}
		x.mu.Unlock()
	}
}

// Upsert replaces the document's chunk set. Vectors are copied and
// normalized; chunks are ordered by Seq.
func (x *Index) Upsert(_ context.Context, documentID string, chunks []creditgate.Chunk) error {
	defer x.lock(documentID)()

	dim := x.dim()
	gen := &generation{chunks: make([]creditgate.Chunk, len(chunks))}
	for i, c := range chunks {
		if c.DocumentID != "" && c.DocumentID != documentID {
			return fmt.Errorf("creditgate/memory: chunk %q belongs to %q, not %q", c.ID, c.DocumentID, documentID)
		}
		if len(c.Vector) == 0 {
			return fmt.Errorf("creditgate/memory: chunk %q has no vector", c.ID)
		}
		if dim == 0 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim {
			return fmt.Errorf("creditgate/memory: chunk %q has dimension %d, index has %d", c.ID, len(c.Vector), dim)
		}
		c.DocumentID = documentID
		c.Vector = slices.Clone(c.Vector)
		creditgate.Normalize(c.Vector)
		gen.chunks[i] = c
	}
	slices.SortStableFunc(gen.chunks, func(a, b creditgate.Chunk) int { return a.Seq - b.Seq })

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dimension == 0 {
		x.dimension = dim
	} else if dim != x.dimension {
		return fmt.Errorf("creditgate/memory: dimension %d, index has %d", dim, x.dimension)
	}
	x.docs[documentID] = gen
	return nil
}

func (x *Index) dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

func (x *Index) snapshot(documentID string) *generation {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.docs[documentID]
}

// TopK returns up to k chunks of the document ranked by cosine similarity
// to query, ties broken by ascending Seq. An unknown document yields an
// empty result.
func (x *Index) TopK(_ context.Context, documentID string, query []float32, k int) ([]creditgate.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	gen := x.snapshot(documentID)
	if gen == nil || len(gen.chunks) == 0 {
		return nil, nil
	}
	if dim := x.dim(); len(query) != dim {
		return nil, fmt.Errorf("creditgate/memory: query has dimension %d, index has %d", len(query), dim)
	}

	q := slices.Clone(query)
	creditgate.Normalize(q)

	scored := make([]creditgate.ScoredChunk, len(gen.chunks))
	for i, c := range gen.chunks {
		scored[i] = creditgate.ScoredChunk{Chunk: c, Score: creditgate.Dot(c.Vector, q)}
	}
	slices.SortFunc(scored, func(a, b creditgate.ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Chunk.Seq - b.Chunk.Seq
		}
	})
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Delete drops the document's chunk set.
func (x *Index) Delete(_ context.Context, documentID string) error {
	defer x.lock(documentID)()

	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, documentID)
	return nil
}

// Count returns the number of chunks indexed for the document.
func (x *Index) Count(_ context.Context, documentID string) (int, error) {
	gen := x.snapshot(documentID)
	if gen == nil {
		return 0, nil
	}
	return len(gen.chunks), nil
}
