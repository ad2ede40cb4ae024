package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chatrelay/internal/domain"
)

func TestTokenCounterCount(t *testing.T) {
	c := NewTokenCounter()

	assert.Zero(t, c.Count(""))
	assert.Positive(t, c.Count("Hello, world"))

	// Longer text costs more tokens.
	short := c.Count("hi")
	long := c.Count("The quick brown fox jumps over the lazy dog, twice at least.")
	assert.Greater(t, long, short)
}

func TestTokenCounterCountRequest(t *testing.T) {
	c := NewTokenCounter()

	req := domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be brief"},
			{Role: domain.RoleUser, Content: "hello"},
		},
	}

	total := c.CountRequest(req)
	// Two messages of per-message overhead plus their content.
	assert.GreaterOrEqual(t, total, 2*messageOverheadTokens)
	assert.Greater(t, total, c.Count("be brief")+c.Count("hello"))
}
