// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// ErrBlocked is returned when the model refused to answer.
var ErrBlocked = errors.New("generation blocked by the model")

// GeminiClient implements Client on the Gemini API through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures a GeminiClient.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint, such as a proxy or a
// test server.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.AnalysisConfig, logger *zap.Logger, opts ...Option) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required (set GEMINI_API_KEY or analysis.api_key)")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("analysis.model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends the prompts to the model and returns the concatenated text
// of the first candidate that has any.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	gc := &genai.GenerateContentConfig{Temperature: genai.Ptr(temperature)}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), gc)
	if err != nil {
		c.logger.Error("Gemini request failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	var text strings.Builder
	var reason genai.FinishReason
	if resp != nil {
		for _, candidate := range resp.Candidates {
			reason = candidate.FinishReason
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}
			if text.Len() > 0 {
				break
			}
		}
	}
	if text.Len() == 0 {
		if reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
			return "", fmt.Errorf("%w (reason: %s)", ErrBlocked, reason)
		}
		return "", fmt.Errorf("gemini returned no content (reason: %s)", reason)
	}

	fields := []zap.Field{zap.String("model", c.model), zap.Duration("duration", time.Since(startTime))}
	if u := resp.UsageMetadata; u != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", u.PromptTokenCount),
			zap.Int32("completion_tokens", u.CandidatesTokenCount),
			zap.Int32("total_tokens", u.TotalTokenCount))
	}
	c.logger.Info("LLM generation complete (Gemini)", fields...)
	return text.String(), nil
}
