package core

import (
	"errors"
	"fmt"
)

// ErrEmptyQuestion is returned when a query has no question line.
var ErrEmptyQuestion = errors.New("query has no question")

// DecodeError means the audio source could not be parsed. It aborts the
// transcription job before any worker is dispatched.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SegmentTranscriptionError is segment-local: it is logged and the segment
// contributes no text.
type SegmentTranscriptionError struct {
	Index int
	Err   error
}

func (e *SegmentTranscriptionError) Error() string {
	return fmt.Sprintf("transcribe segment %d: %v", e.Index, e.Err)
}

func (e *SegmentTranscriptionError) Unwrap() error { return e.Err }

// EmbeddingServiceError aborts an index build.
type EmbeddingServiceError struct {
	ChunkIndex int
	Err        error
}

func (e *EmbeddingServiceError) Error() string {
	if e.ChunkIndex < 0 {
		return fmt.Sprintf("embedding service: %v", e.Err)
	}
	return fmt.Sprintf("embedding service failed on chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// AnswerServiceError is returned when the chat-completion call fails.
type AnswerServiceError struct {
	Err error
}

func (e *AnswerServiceError) Error() string {
	return fmt.Sprintf("answer service: %v", e.Err)
}

func (e *AnswerServiceError) Unwrap() error { return e.Err }

// DimensionMismatchError reports a vector whose length differs from the
// dimension fixed by the index.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index has %d, got %d", e.Want, e.Got)
}
