package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
)

type countingEmbedder struct {
	calls int
	vec   []float32
}

func (c *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	c.calls++
	return c.vec, nil
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3.4028235e38}
	got, err := decodeVector(encodeVector(v))
	if err != nil {
		t.Fatalf("decodeVector() failed: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("Expected %d values, got %d", len(v), len(got))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("Value %d: expected %v, got %v", i, v[i], got[i])
		}
	}

	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated payload")
	}
}

func TestEmbeddingKey(t *testing.T) {
	a := embeddingKey("m1", "hello")
	if !strings.HasPrefix(a, "emb:m1:") {
		t.Errorf("Unexpected key prefix: %s", a)
	}
	if a == embeddingKey("m2", "hello") {
		t.Error("Keys for different models must differ")
	}
	if a != embeddingKey("m1", "hello") {
		t.Error("Keys must be deterministic")
	}
}

func TestCachedEmbedderFallsBackWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	next := &countingEmbedder{vec: []float32{1, 2}}
	cached := NewCachedEmbedder(next, client, time.Minute)
	defer cached.Close()
	if cached.model != "default" {
		t.Errorf("Expected default key namespace, got %q", cached.model)
	}

	v, err := cached.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed() should not fail when the cache is unreachable: %v", err)
	}
	if len(v) != 2 || next.calls != 1 {
		t.Errorf("Expected direct embedding call, got vec=%v calls=%d", v, next.calls)
	}
}

func TestCachedEmbedderUsesWrappedModel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	cached := NewCachedEmbedder(NewOpenAIEmbedder(nil, ""), client, time.Minute)
	if cached.model != string(openai.AdaEmbeddingV2) {
		t.Errorf("Expected key namespace %s, got %q", openai.AdaEmbeddingV2, cached.model)
	}
	cached = NewCachedEmbedder(NewOpenAIEmbedder(nil, "text-embedding-3-small"), client, time.Minute)
	if !strings.HasPrefix(embeddingKey(cached.model, "x"), "emb:text-embedding-3-small:") {
		t.Errorf("Unexpected key namespace %q", cached.model)
	}
}
