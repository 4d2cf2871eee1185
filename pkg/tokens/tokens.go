// Package tokens estimates prompt sizes so the agent loop can log how close a
// conversation is getting to the model's context window.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a tiktoken encoding for a specific model.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter resolves an encoding for the given model name, falling back to
// treating the name as an encoding name directly.
func NewCounter(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(model)
		if err != nil {
			return nil, err
		}
	}
	return &Counter{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (c *Counter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
