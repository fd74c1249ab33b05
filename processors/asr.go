package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Transcriber turns one audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// OpenAITranscriber sends the file bytes to an OpenAI-compatible
// /audio/transcriptions endpoint.
type OpenAITranscriber struct {
	client *openai.Client
	model  string
}

func NewOpenAITranscriber(client *openai.Client, model string) *OpenAITranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAITranscriber{client: client, model: model}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filepath.Base(audioPath),
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	return resp.Text, nil
}

// LocalWhisperTranscriber runs a Python whisper script that prints a JSON
// array of {start, end, text} objects.
type LocalWhisperTranscriber struct {
	Python string
	Script string
}

func NewLocalWhisperTranscriber(script string) *LocalWhisperTranscriber {
	if script == "" {
		script = filepath.Join("scripts", "whisper_transcribe.py")
	}
	return &LocalWhisperTranscriber{Python: "python", Script: script}
}

type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func (l *LocalWhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	cmd := exec.CommandContext(ctx, l.Python, l.Script, audioPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("local whisper transcription failed: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseWhisperOutput(output)
}

func parseWhisperOutput(output []byte) (string, error) {
	var segments []whisperSegment
	if err := json.Unmarshal(output, &segments); err != nil {
		return "", fmt.Errorf("failed to parse whisper output: %w", err)
	}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, " "), nil
}

// NewTranscriber picks the backend named by provider.
func NewTranscriber(provider string, client *openai.Client, model, whisperScript string) (Transcriber, error) {
	switch provider {
	case "", "openai":
		return NewOpenAITranscriber(client, model), nil
	case "local_whisper":
		return NewLocalWhisperTranscriber(whisperScript), nil
	default:
		return nil, fmt.Errorf("unknown asr provider %q", provider)
	}
}
