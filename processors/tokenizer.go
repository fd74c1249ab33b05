package processors

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Tokenizer maps text to token ids and back. Decode(Encode(s)) need not be
// byte-identical to s but must read the same.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
}

// TiktokenTokenizer uses a named BPE encoding such as cl100k_base.
type TiktokenTokenizer struct {
	name string
	enc  *tiktoken.Tiktoken
}

func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{name: encoding, enc: enc}, nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	return t.enc.Decode(tokens), nil
}

// HFTokenizer loads a HuggingFace tokenizer.json from disk.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

func (h *HFTokenizer) Encode(text string) ([]int, error) {
	en, err := h.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return en.Ids, nil
}

func (h *HFTokenizer) Decode(tokens []int) (string, error) {
	return h.tk.Decode(tokens, true), nil
}

// NewTokenizer prefers a tokenizer file when one is configured.
func NewTokenizer(encoding, file string) (Tokenizer, error) {
	if file != "" {
		return NewHFTokenizer(file)
	}
	return NewTiktokenTokenizer(encoding)
}
