package processors

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quizHelper/core"
	"quizHelper/storage"
)

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 128
)

// TextChunker cuts a document into overlapping token windows and embeds them.
type TextChunker struct {
	tokenizer Tokenizer
	embedder  storage.Embedder
	chunkSize int
	overlap   int
	timeout   time.Duration
	logger    *log.Logger
}

// NewTextChunker builds a chunker. chunkSize <= 0 selects DefaultChunkSize and
// a negative overlap is treated as zero.
func NewTextChunker(tok Tokenizer, embedder storage.Embedder, chunkSize, overlap int, timeout time.Duration, logger *log.Logger) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if logger == nil {
		logger = newLogger("CHUNKER")
	}
	return &TextChunker{
		tokenizer: tok,
		embedder:  embedder,
		chunkSize: chunkSize,
		overlap:   overlap,
		timeout:   timeout,
		logger:    logger,
	}
}

type tokenWindow struct {
	start, end int
}

// chunkWindows returns the [start, end) windows over total tokens. Windows
// advance by size-overlap and stop once one reaches the end. When the stride
// is not positive only the first window is produced.
func chunkWindows(total, size, overlap int) []tokenWindow {
	if total <= 0 {
		return nil
	}
	stride := size - overlap
	if stride <= 0 {
		return []tokenWindow{{0, min(size, total)}}
	}
	var windows []tokenWindow
	for start := 0; start < total; start += stride {
		end := min(start+size, total)
		windows = append(windows, tokenWindow{start, end})
		if end == total {
			break
		}
	}
	return windows
}

// Chunk tokenizes text and decodes each window back to text.
func (c *TextChunker) Chunk(text string) ([]core.TextChunk, error) {
	tokens, err := c.tokenizer.Encode(text)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if c.overlap >= c.chunkSize {
		c.logger.Printf("Warning: overlap %d >= chunk size %d, emitting a single chunk", c.overlap, c.chunkSize)
	}

	windows := chunkWindows(len(tokens), c.chunkSize, c.overlap)
	chunks := make([]core.TextChunk, 0, len(windows))
	for i, w := range windows {
		chunkText, err := c.tokenizer.Decode(tokens[w.start:w.end])
		if err != nil {
			return nil, fmt.Errorf("decode chunk %d: %w", i, err)
		}
		chunks = append(chunks, core.TextChunk{
			Index:      i,
			Text:       chunkText,
			TokenStart: w.start,
			TokenEnd:   w.end,
		})
	}
	c.logger.Printf("Split %d tokens into %d chunks (size %d, overlap %d)", len(tokens), len(chunks), c.chunkSize, c.overlap)
	return chunks, nil
}

// EmbedAll embeds chunks in order. The first failure aborts the whole build;
// every vector must share one dimension.
func (c *TextChunker) EmbedAll(ctx context.Context, chunks []core.TextChunk) ([]core.EmbeddedChunk, error) {
	start := time.Now()
	embedded := make([]core.EmbeddedChunk, 0, len(chunks))
	dim := 0
	for _, chunk := range chunks {
		vec, err := c.embed(ctx, chunk.Text)
		if err != nil {
			return nil, &core.EmbeddingServiceError{ChunkIndex: chunk.Index, Err: err}
		}
		if len(vec) == 0 {
			return nil, &core.EmbeddingServiceError{ChunkIndex: chunk.Index, Err: errors.New("empty embedding")}
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, &core.DimensionMismatchError{Want: dim, Got: len(vec)}
		}
		embedded = append(embedded, core.EmbeddedChunk{ChunkIndex: chunk.Index, Text: chunk.Text, Embedding: vec})
	}
	c.logger.Printf("Embedded %d chunks in %.2fs", len(embedded), time.Since(start).Seconds())
	return embedded, nil
}

func (c *TextChunker) embed(ctx context.Context, text string) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.embedder.Embed(ctx, text)
}
