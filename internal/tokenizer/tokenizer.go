package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding or model is configured.
const DefaultEncoding = "cl100k_base"

// Counter counts prompt tokens.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewTiktoken loads an encoding by name, falling back to the encoding of a model name.
// Loading may need network access to fetch the BPE ranks on first use.
func NewTiktoken(encodingOrModel string) (*Tiktoken, error) {
	if encodingOrModel == "" {
		encodingOrModel = DefaultEncoding
	}

	tke, err := tiktoken.GetEncoding(encodingOrModel)
	if err == nil {
		return &Tiktoken{encoding: encodingOrModel, tke: tke}, nil
	}

	tke, modelErr := tiktoken.EncodingForModel(encodingOrModel)
	if modelErr != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encodingOrModel, err)
	}
	return &Tiktoken{encoding: encodingOrModel, tke: tke}, nil
}

// Count implements Counter.
func (t *Tiktoken) Count(text string) int {
	return len(t.tke.Encode(text, nil, nil))
}

// Encoding returns the configured encoding or model name.
func (t *Tiktoken) Encoding() string { return t.encoding }

// Approx estimates roughly four characters per token.
// Used when the BPE ranks cannot be loaded.
type Approx struct{}

// Count implements Counter.
func (Approx) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
