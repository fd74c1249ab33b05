package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"quizHelper/core"
)

// Set TEST_POSTGRES_URL to a database with the vector extension available.
func TestPgVectorConcurrentSearch(t *testing.T) {
	dbURL := os.Getenv("TEST_POSTGRES_URL")
	if dbURL == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()

	store, err := NewPgVectorStore(ctx, dbURL)
	if err != nil {
		t.Fatalf("NewPgVectorStore() failed: %v", err)
	}
	chunks := []core.EmbeddedChunk{
		{ChunkIndex: 0, Text: "A", Embedding: []float32{1, 0, 0}},
		{ChunkIndex: 1, Text: "B", Embedding: []float32{0, 1, 0}},
		{ChunkIndex: 2, Text: "C", Embedding: []float32{0, 0, 1}},
	}
	ix, err := NewIndex(ctx, chunks, store)
	if err != nil {
		t.Fatalf("NewIndex() failed: %v", err)
	}
	defer ix.Close(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts, err := ix.TopK(ctx, []float32{0, 1, 0}, 2)
			if err != nil {
				errs <- err
				return
			}
			if len(texts) != 2 || texts[0] != "B" {
				errs <- fmt.Errorf("unexpected results %v", texts)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
