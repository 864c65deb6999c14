// -- internal/llmclient/factory.go --
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// ProviderGemini is the only provider wired today.
const ProviderGemini = "gemini"

// Request is one prompt for the model.
type Request struct {
	System string
	Prompt string
	// Temperature overrides the configured one when set.
	Temperature *float32
	// JSON asks the model for a JSON document.
	JSON bool
}

// Client generates text from prompts.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// NewClient creates a Client based on the configuration.
func NewClient(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger, opts ...Option) (Client, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiClient(ctx, cfg, logger, opts...)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, ProviderGemini)
	}
}
