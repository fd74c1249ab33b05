package core

// ========== Pipeline data structures ==========

// AudioSegment is one fixed-duration slice of the source audio, materialized
// to a temporary file owned by whoever holds the segment.
type AudioSegment struct {
	Index   int    `json:"index"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Path    string `json:"path"`
}

// DurationMs returns EndMs - StartMs.
func (s AudioSegment) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// TranscriptResult is produced by one worker call. Text is empty when the
// segment failed; Err keeps the reason for the report.
type TranscriptResult struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Err   error  `json:"-"`
}

// TextChunk is a token window over a document. TokenEnd is exclusive.
type TextChunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenStart int    `json:"token_start"`
	TokenEnd   int    `json:"token_end"`
}

// TokenCount returns the number of tokens covered by the chunk.
func (c TextChunk) TokenCount() int {
	return c.TokenEnd - c.TokenStart
}

// EmbeddedChunk pairs a chunk's text with its embedding vector.
type EmbeddedChunk struct {
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// Query is a multiple-choice question parsed from line-structured text.
type Query struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
}

// Hit is one ranked retrieval result.
type Hit struct {
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// HitTexts drops the scores and keeps the ranked order.
func HitTexts(hits []Hit) []string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts
}
