package storage

import (
	"context"
	"fmt"

	"quizHelper/core"
)

// Index is an immutable set of embedded chunks with nearest-neighbour lookup.
// Dimension checks and the k bounds are enforced here, so every backend sees
// the same contract. Safe for concurrent reads.
type Index struct {
	store VectorStore
	dim   int
	size  int
}

// NewIndex validates chunks and loads them into store. All embeddings must
// share the dimension of the first one.
func NewIndex(ctx context.Context, chunks []core.EmbeddedChunk, store VectorStore) (*Index, error) {
	if store == nil {
		store = NewMemoryVectorStore()
	}
	dim := 0
	if len(chunks) > 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return nil, &core.DimensionMismatchError{Want: dim, Got: len(c.Embedding)}
		}
	}
	if len(chunks) > 0 {
		if err := store.Upsert(ctx, chunks); err != nil {
			return nil, fmt.Errorf("load %d chunks into %s store: %w", len(chunks), store.Kind(), err)
		}
	}
	return &Index{store: store, dim: dim, size: len(chunks)}, nil
}

// Len is the number of indexed chunks.
func (ix *Index) Len() int { return ix.size }

// Dim is the embedding dimension, zero for an empty index.
func (ix *Index) Dim() int { return ix.dim }

// Backend names the vector store in use.
func (ix *Index) Backend() string { return ix.store.Kind() }

// Search returns up to k hits, best first, ties broken by chunk index.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]core.Hit, error) {
	if k <= 0 || ix.size == 0 {
		return []core.Hit{}, nil
	}
	if len(query) != ix.dim {
		return nil, &core.DimensionMismatchError{Want: ix.dim, Got: len(query)}
	}
	hits, err := ix.store.Search(ctx, query, min(k, ix.size))
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", ix.store.Kind(), err)
	}
	return hits, nil
}

// TopK returns the texts of the k most similar chunks.
func (ix *Index) TopK(ctx context.Context, query []float32, k int) ([]string, error) {
	hits, err := ix.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return core.HitTexts(hits), nil
}

// Close releases the backing store.
func (ix *Index) Close(ctx context.Context) error {
	return ix.store.Close(ctx)
}
