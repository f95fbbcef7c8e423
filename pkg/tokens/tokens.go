// Package tokens provides tiktoken-based token counting. Backends that do
// not report usage (and the metrics middleware estimating prompt size) use
// it instead of guessing from character counts.
package tokens

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens for a specific model family.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for the given model name. All supported
// backends approximate well enough with the GPT-4 encoding; Claude and
// Gemini tokenizers are not public, so GPT-4 counts are the accepted proxy.
func NewCounter(model string) (*Counter, error) {
	tikModel := tokenizer.GPT4
	if strings.HasPrefix(model, "gpt-3") {
		tikModel = tokenizer.GPT35Turbo
	}
	codec, err := tokenizer.ForModel(tikModel)
	if err != nil {
		return nil, fmt.Errorf("create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to the 4-chars-
// per-token heuristic if the codec fails.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Count is a convenience for one-off counting with the default encoding.
func Count(text string) int {
	counter, err := NewCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.Count(text)
}
