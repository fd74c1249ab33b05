package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"quizHelper/config"
	"quizHelper/core"
	"quizHelper/storage"
	"quizHelper/utils"
)

// StoreFactory opens a fresh vector store for one index.
type StoreFactory func(ctx context.Context) (storage.VectorStore, error)

// Deps are the external collaborators of a Pipeline.
type Deps struct {
	Segmenter   Segmenter
	Transcriber Transcriber
	Tokenizer   Tokenizer
	Embedder    storage.Embedder
	Chat        ChatCompleter
	NewStore    StoreFactory
}

// Pipeline wires audio transcription, indexing and question answering.
type Pipeline struct {
	cfg         *config.Config
	segmenter   Segmenter
	coordinator *TranscriptionCoordinator
	chunker     *TextChunker
	answerer    *RetrievalAnswerer
	newStore    StoreFactory
	logger      *log.Logger
	indexLogger *log.Logger
}

func NewPipeline(cfg *config.Config, deps Deps) *Pipeline {
	newStore := deps.NewStore
	if newStore == nil {
		newStore = func(context.Context) (storage.VectorStore, error) {
			return storage.NewMemoryVectorStore(), nil
		}
	}
	timeout := cfg.ServiceTimeout()
	return &Pipeline{
		cfg:         cfg,
		segmenter:   deps.Segmenter,
		coordinator: NewTranscriptionCoordinator(deps.Transcriber, cfg.Workers, timeout, nil),
		chunker:     NewTextChunker(deps.Tokenizer, deps.Embedder, cfg.ChunkSize, cfg.ChunkOverlap, timeout, nil),
		answerer:    NewRetrievalAnswerer(deps.Embedder, deps.Chat, cfg.TopK, timeout, nil),
		newStore:    newStore,
		logger:      newLogger("PIPELINE"),
		indexLogger: newLogger("INDEX"),
	}
}

// NewPipelineFromConfig builds every collaborator from cfg. The returned
// cleanup closes connections opened here.
func NewPipelineFromConfig(ctx context.Context, cfg *config.Config) (*Pipeline, func(), error) {
	client := storage.NewOpenAIClient(cfg)

	segmenter, err := NewSegmenter(cfg.Segmenter, cfg.AudioFilter, "", nil)
	if err != nil {
		return nil, nil, err
	}
	transcriber, err := NewTranscriber(cfg.ASRProvider, client, cfg.TranscriptionModel, cfg.WhisperScript)
	if err != nil {
		return nil, nil, err
	}
	tok, err := NewTokenizer(cfg.Tokenizer, cfg.TokenizerFile)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var embedder storage.Embedder = storage.NewOpenAIEmbedder(client, cfg.EmbeddingModel)
	if cfg.RedisAddr != "" {
		rdb, err := storage.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("Warning: embedding cache disabled: %v", err)
		} else {
			cached := storage.NewCachedEmbedder(embedder, rdb, cfg.RedisTTL())
			embedder = cached
			cleanup = func() { cached.Close() }
		}
	}

	p := NewPipeline(cfg, Deps{
		Segmenter:   segmenter,
		Transcriber: transcriber,
		Tokenizer:   tok,
		Embedder:    embedder,
		Chat:        NewOpenAIChat(client, cfg.ChatModel),
		NewStore: func(ctx context.Context) (storage.VectorStore, error) {
			return storage.NewVectorStore(ctx, cfg)
		},
	})
	return p, cleanup, nil
}

// IsTranscript reports whether path already holds transcript text.
func IsTranscript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// ProcessAudio transcribes the audio at path and writes the transcript next
// to it with a .txt extension. Nothing is written when a fatal error occurs.
func (p *Pipeline) ProcessAudio(ctx context.Context, path string) (string, error) {
	start := time.Now()
	out := utils.SiblingPath(path, ".txt")
	if out == path {
		return "", fmt.Errorf("%s is already a transcript", path)
	}

	segmentLength := p.cfg.SegmentLengthMs
	if segmentLength <= 0 {
		segmentLength = DefaultSegmentLengthMs
	}
	segments, err := p.segmenter.Segment(ctx, path, segmentLength)
	if err != nil {
		return "", err
	}

	text, report, err := p.coordinator.TranscribeWithReport(ctx, segments)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(out, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}

	p.logger.Printf("Transcription completed in %.2f seconds (%d/%d segments)", time.Since(start).Seconds(), report.Succeeded, report.Segments)
	p.logger.Printf("Transcript saved to: %s", out)
	return out, nil
}

// BuildIndex chunks and embeds the transcript at path.
func (p *Pipeline) BuildIndex(ctx context.Context, path string) (*storage.Index, error) {
	start := time.Now()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	chunks, err := p.chunker.Chunk(string(data))
	if err != nil {
		return nil, err
	}
	embedded, err := p.chunker.EmbedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	store, err := p.newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	ix, err := storage.NewIndex(ctx, embedded, store)
	if err != nil {
		store.Close(ctx)
		return nil, err
	}
	p.indexLogger.Printf("Built %s index: %d chunks, dimension %d, in %.2fs", ix.Backend(), ix.Len(), ix.Dim(), time.Since(start).Seconds())
	return ix, nil
}

// AnswerQuery parses queryText and answers it against ix.
func (p *Pipeline) AnswerQuery(ctx context.Context, queryText string, ix *storage.Index) (string, error) {
	q, err := core.ParseQuery(queryText)
	if err != nil {
		return "", err
	}
	return p.answerer.Answer(ctx, q, ix)
}

// Search returns the k passages nearest to text, with scores.
func (p *Pipeline) Search(ctx context.Context, text string, k int, ix *storage.Index) ([]core.Hit, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrEmptyQuestion
	}
	return p.answerer.Retrieve(ctx, text, ix, k)
}

// Prepare turns an input path into an index, transcribing first when the
// input is audio.
func (p *Pipeline) Prepare(ctx context.Context, path string) (*storage.Index, error) {
	transcript := path
	if !IsTranscript(path) {
		out, err := p.ProcessAudio(ctx, path)
		if err != nil {
			return nil, err
		}
		transcript = out
	}
	return p.BuildIndex(ctx, transcript)
}
