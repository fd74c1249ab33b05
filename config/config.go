package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("configuration validation failed")

type Config struct {
	APIKey             string `json:"api_key" yaml:"api_key"`
	BaseURL            string `json:"base_url" yaml:"base_url"`
	TranscriptionModel string `json:"transcription_model" yaml:"transcription_model"`
	EmbeddingModel     string `json:"embedding_model" yaml:"embedding_model"`
	ChatModel          string `json:"chat_model" yaml:"chat_model"`

	// Pipeline
	SegmentLengthMs       int64 `json:"segment_length_ms" yaml:"segment_length_ms"`
	ChunkSize             int   `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap          int   `json:"chunk_overlap" yaml:"chunk_overlap"`
	TopK                  int   `json:"top_k" yaml:"top_k"`
	Workers               int   `json:"workers" yaml:"workers"` // 0 = NumCPU-1
	ServiceTimeoutSeconds int   `json:"service_timeout_seconds" yaml:"service_timeout_seconds"`

	Segmenter     string `json:"segmenter" yaml:"segmenter"`       // "auto", "beep", "ffmpeg"
	AudioFilter   string `json:"audio_filter" yaml:"audio_filter"` // ffmpeg only: "", "speech", "normalize"
	ASRProvider   string `json:"asr_provider" yaml:"asr_provider"` // "openai", "local_whisper"
	WhisperScript string `json:"whisper_script" yaml:"whisper_script"`
	Tokenizer     string `json:"tokenizer" yaml:"tokenizer"`
	TokenizerFile string `json:"tokenizer_file" yaml:"tokenizer_file"`

	// Vector store backend: "memory", "pgvector", "milvus"
	Store          string `json:"store" yaml:"store"`
	PostgresURL    string `json:"postgres_url" yaml:"postgres_url"`
	MilvusAddr     string `json:"milvus_addr" yaml:"milvus_addr"`
	MilvusUsername string `json:"milvus_username" yaml:"milvus_username"`
	MilvusPassword string `json:"milvus_password" yaml:"milvus_password"`

	// Embedding cache, disabled when RedisAddr is empty
	RedisAddr       string `json:"redis_addr" yaml:"redis_addr"`
	RedisTTLSeconds int    `json:"redis_ttl_seconds" yaml:"redis_ttl_seconds"`

	Port string `json:"port" yaml:"port"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BaseURL:            "https://api.openai.com/v1",
		TranscriptionModel: "whisper-1",
		EmbeddingModel:     "text-embedding-ada-002",
		ChatModel:          "gpt-4o",
		SegmentLengthMs:    60_000,
		ChunkSize:          1024,
		ChunkOverlap:       128,
		TopK:               5,
		Segmenter:          "auto",
		ASRProvider:        "openai",
		WhisperScript:      filepath.Join("scripts", "whisper_transcribe.py"),
		Tokenizer:          "cl100k_base",
		Store:              "memory",
		MilvusAddr:         "localhost:19530",
		RedisTTLSeconds:    7 * 24 * 3600,
		Port:               "8080",
	}
}

// Load builds the configuration from defaults, an optional file and the
// environment, in that order. An empty path tries config.json, config.yaml
// and config.yml in the working directory. A .env file is loaded first when
// present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		for _, candidate := range []string{"config.json", "config.yaml", "config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.APIKey, "OPENAI_API_KEY")
	setString(&c.APIKey, "API_KEY")
	setString(&c.BaseURL, "BASE_URL")
	setString(&c.TranscriptionModel, "TRANSCRIPTION_MODEL")
	setString(&c.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&c.ChatModel, "CHAT_MODEL")
	setInt64(&c.SegmentLengthMs, "SEGMENT_LENGTH_MS")
	setInt(&c.ChunkSize, "CHUNK_SIZE")
	setInt(&c.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&c.TopK, "TOP_K")
	setInt(&c.Workers, "WORKERS")
	setInt(&c.ServiceTimeoutSeconds, "SERVICE_TIMEOUT_SECONDS")
	setString(&c.Segmenter, "SEGMENTER")
	setString(&c.AudioFilter, "AUDIO_FILTER")
	setString(&c.ASRProvider, "ASR_PROVIDER")
	setString(&c.WhisperScript, "WHISPER_SCRIPT")
	setString(&c.Tokenizer, "TOKENIZER")
	setString(&c.TokenizerFile, "TOKENIZER_FILE")
	setString(&c.Store, "STORE")
	setString(&c.PostgresURL, "POSTGRES_URL")
	setString(&c.PostgresURL, "DATABASE_URL")
	setString(&c.MilvusAddr, "MILVUS_ADDR")
	setString(&c.MilvusUsername, "MILVUS_USERNAME")
	setString(&c.MilvusPassword, "MILVUS_PASSWORD")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setInt(&c.RedisTTLSeconds, "REDIS_TTL_SECONDS")
	setString(&c.Port, "PORT")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

func setInt64(dst *int64, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("Warning: ignoring %s=%q: %v", key, v, err)
		return
	}
	*dst = n
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, "API key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		problems = append(problems, "base URL is required")
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		problems = append(problems, "embedding model is required")
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		problems = append(problems, "chat model is required")
	}
	if c.SegmentLengthMs <= 0 {
		problems = append(problems, "segment_length_ms must be positive")
	}
	if c.ChunkSize <= 0 {
		problems = append(problems, "chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 {
		problems = append(problems, "chunk_overlap must not be negative")
	}
	if c.Workers < 0 {
		problems = append(problems, "workers must not be negative")
	}
	if c.ServiceTimeoutSeconds < 0 {
		problems = append(problems, "service_timeout_seconds must not be negative")
	}
	switch c.Segmenter {
	case "auto", "beep", "ffmpeg":
	default:
		problems = append(problems, fmt.Sprintf("unknown segmenter %q", c.Segmenter))
	}
	switch c.AudioFilter {
	case "", "speech", "normalize":
	default:
		problems = append(problems, fmt.Sprintf("unknown audio_filter %q", c.AudioFilter))
	}
	switch c.ASRProvider {
	case "openai", "local_whisper":
	default:
		problems = append(problems, fmt.Sprintf("unknown asr_provider %q", c.ASRProvider))
	}
	switch c.Store {
	case "memory", "milvus":
	case "pgvector":
		if strings.TrimSpace(c.PostgresURL) == "" {
			problems = append(problems, "postgres_url is required for the pgvector store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q", c.Store))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	if c.ChunkOverlap >= c.ChunkSize {
		log.Printf("Warning: chunk_overlap (%d) >= chunk_size (%d), every document will produce a single chunk", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// ServiceTimeout is the per-call deadline for remote services; zero means none.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.ServiceTimeoutSeconds) * time.Second
}

// RedisTTL is how long cached embeddings live.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.RedisTTLSeconds) * time.Second
}

func PrintInstructions() {
	fmt.Println("\n=== Configuration ===")
	fmt.Println("Put the settings in config.json (or config.yaml), a .env file, or the environment:")
	fmt.Println("1. api_key: OpenAI-compatible API key (OPENAI_API_KEY / API_KEY)")
	fmt.Println("2. base_url: API base URL (default: https://api.openai.com/v1)")
	fmt.Println("3. embedding_model / chat_model / transcription_model")
	fmt.Println("4. segment_length_ms, chunk_size, chunk_overlap, top_k, workers")
	fmt.Println("5. store: memory | pgvector | milvus")
	fmt.Println("6. redis_addr: enables the embedding cache")
	fmt.Println("\nExample:")
	fmt.Println(`{
  "api_key": "sk-...",
  "base_url": "https://api.openai.com/v1",
  "embedding_model": "text-embedding-ada-002",
  "chat_model": "gpt-4o",
  "segment_length_ms": 60000,
  "chunk_size": 1024,
  "chunk_overlap": 128,
  "top_k": 5,
  "store": "memory"
}`)
	fmt.Println("=====================")
}
