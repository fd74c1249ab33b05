package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"quizHelper/config"
	"quizHelper/core"
)

// VectorStore ranks embedded chunks by cosine similarity. Implementations
// must order equal scores by ascending chunk index.
type VectorStore interface {
	Kind() string
	Upsert(ctx context.Context, chunks []core.EmbeddedChunk) error
	Search(ctx context.Context, query []float32, k int) ([]core.Hit, error)
	Close(ctx context.Context) error
}

// ---------------- Memory implementation ----------------

type MemoryVectorStore struct {
	mu     sync.RWMutex
	chunks []core.EmbeddedChunk
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{}
}

func (s *MemoryVectorStore) Kind() string { return "memory" }

func (s *MemoryVectorStore) Upsert(_ context.Context, chunks []core.EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryVectorStore) Search(_ context.Context, query []float32, k int) ([]core.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]core.Hit, len(s.chunks))
	for i, c := range s.chunks {
		hits[i] = core.Hit{ChunkIndex: c.ChunkIndex, Score: CosineSimilarity(query, c.Embedding), Text: c.Text}
	}
	SortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *MemoryVectorStore) Close(context.Context) error { return nil }

// CosineSimilarity accumulates in float64. A zero vector scores 0 against
// everything.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortHits orders by score descending, then chunk index ascending.
func SortHits(hits []core.Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
}

// NewVectorStore connects the backend selected by cfg.Store. Each call gets
// its own table or collection, released by Close.
func NewVectorStore(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryVectorStore(), nil
	case "pgvector":
		return NewPgVectorStore(ctx, cfg.PostgresURL)
	case "milvus":
		return NewMilvusVectorStore(ctx, cfg.MilvusAddr, cfg.MilvusUsername, cfg.MilvusPassword)
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.Store)
	}
}

// NewOpenAIClient builds a client for any OpenAI-compatible endpoint.
func NewOpenAIClient(cfg *config.Config) *openai.Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}
