package creditgate

import "context"

// Embedder turns text into a unit-length vector of fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// VectorIndex stores chunk vectors per document.
//
// Upsert replaces the document's whole chunk set in one step: concurrent
// readers observe either the previous set or the new one, never a mix.
type VectorIndex interface {
	Upsert(ctx context.Context, documentID string, chunks []Chunk) error
	TopK(ctx context.Context, documentID string, query []float32, k int) ([]ScoredChunk, error)
	Delete(ctx context.Context, documentID string) error
	Count(ctx context.Context, documentID string) (int, error)
}

// Retriever returns the passages most relevant to a question, best first.
type Retriever interface {
	Retrieve(ctx context.Context, documentID, question string, k int) ([]Chunk, error)
}
