package storage

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens a client and checks it with a ping.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// CachedEmbedder keeps embeddings in Redis keyed by model and text hash.
// Redis errors never fail a call; the wrapped embedder is used instead.
type CachedEmbedder struct {
	next   Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *log.Logger
}

// modelNamer is implemented by embedders that know which model they call.
type modelNamer interface {
	Model() string
}

// NewCachedEmbedder wraps next. Keys are namespaced by next's model name so
// vectors from different models never mix.
func NewCachedEmbedder(next Embedder, client *redis.Client, ttl time.Duration) *CachedEmbedder {
	model := "default"
	if m, ok := next.(modelNamer); ok && m.Model() != "" {
		model = m.Model()
	}
	return &CachedEmbedder{
		next:   next,
		client: client,
		model:  model,
		ttl:    ttl,
		logger: log.New(os.Stderr, "[CACHE] ", log.LstdFlags),
	}
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(c.model, text)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if v, decErr := decodeVector(data); decErr == nil && len(v) > 0 {
			return v, nil
		}
		c.logger.Printf("Discarding corrupt cache entry %s", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Printf("Warning: cache lookup failed: %v", err)
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, encodeVector(v), c.ttl).Err(); err != nil {
		c.logger.Printf("Warning: cache write failed: %v", err)
	}
	return v, nil
}

func (c *CachedEmbedder) Close() error {
	return c.client.Close()
}
