//go:build !bedrock

package llm

import (
	"errors"
	"log/slog"

	"chatrelay/internal/domain"
	"chatrelay/internal/infra/config"
)

// NewBedrockProvider is a stub for builds without the bedrock tag; the AWS SDK
// dependency is only compiled in when -tags bedrock is set.
func NewBedrockProvider(_ config.ProviderConfig, _ *slog.Logger) (domain.StreamingLLMProvider, error) {
	return nil, errors.New("bedrock provider: built without bedrock support (rebuild with -tags bedrock)")
}
