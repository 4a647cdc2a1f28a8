package usecase

import (
	"github.com/pkoukk/tiktoken-go"

	"lectern/internal/domain"
)

// fallbackEncoding is a reasonable tokenizer for models tiktoken does not
// know by name; most current chat models tokenize in the same ballpark.
const fallbackEncoding = "cl100k_base"

// messageOverhead approximates the per-message envelope (role framing,
// separators) the provider adds on the wire.
const messageOverhead = 4

// TokenCounter estimates token counts with tiktoken encodings. When no
// encoding can be loaded it degrades to a bytes/4 heuristic, which is crude
// but keeps budget checks working offline.
type TokenCounter struct {
	enc *tiktoken.Tiktoken // nil = heuristic mode
}

var _ domain.TokenCounter = (*TokenCounter)(nil)

// NewTokenCounter builds a counter for the given provider and model.
// OpenAI model names resolve to their exact encoding; everything else uses
// the fallback encoding as a close-enough estimate.
func NewTokenCounter(provider, model string) *TokenCounter {
	var enc *tiktoken.Tiktoken
	var err error

	if provider == "openai" {
		if enc, err = tiktoken.EncodingForModel(model); err == nil {
			return &TokenCounter{enc: enc}
		}
	}
	if enc, err = tiktoken.GetEncoding(fallbackEncoding); err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// CountText estimates the token count of a single string.
func (c *TokenCounter) CountText(s string) int {
	if c.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(c.enc.Encode(s, nil, nil))
}

// CountMessages estimates the token count of a transcript, including tool
// call names and arguments.
func (c *TokenCounter) CountMessages(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + c.CountText(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.CountText(tc.Name) + c.CountText(string(tc.Arguments))
		}
	}
	return total
}
