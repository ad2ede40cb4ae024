package usecase

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"chatrelay/internal/domain"
)

// messageOverheadTokens approximates the per-message framing cost
// (role markers, separators) that chat formats add on top of content.
const messageOverheadTokens = 4

// TokenCounter estimates token counts using the cl100k_base encoding.
// Providers that report usage take precedence; this exists so a complete
// event always carries a total even when the provider stays silent.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a lazy token counter. The encoding is loaded on
// first use so construction never fails.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (c *TokenCounter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		// Error is deliberately swallowed: a missing encoding file degrades
		// to the chars/4 heuristic instead of failing the stream.
		c.enc, _ = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	})
	return c.enc
}

// Count returns the token count of a single piece of text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	// Rough heuristic: ~4 characters per token for English-like text.
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountRequest estimates the prompt-side token count of a chat request.
func (c *TokenCounter) CountRequest(req domain.ChatRequest) int {
	total := 0
	for _, m := range req.Messages {
		total += c.Count(m.Content) + messageOverheadTokens
	}
	return total
}
