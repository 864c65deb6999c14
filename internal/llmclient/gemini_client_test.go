package llmclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// -- Test Setup Helpers --

func validConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		Provider:    ProviderGemini,
		Model:       "test-model",
		APIKey:      "test-api-key",
		Timeout:     5 * time.Second,
		Temperature: 0.3,
	}
}

// setupGeminiClient points a GeminiClient at a fake Gemini endpoint and
// returns a log observer.
func setupGeminiClient(t *testing.T, handler http.HandlerFunc) (*GeminiClient, *observer.ObservedLogs) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	core, logs := observer.New(zap.InfoLevel)
	client, err := NewGeminiClient(context.Background(), validConfig(), zap.New(core), WithBaseURL(server.URL))
	require.NoError(t, err)
	return client, logs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func candidate(text, reason string) map[string]any {
	c := map[string]any{"finishReason": reason}
	if text != "" {
		c["content"] = map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}}
	}
	return c
}

// -- Tests --

func TestNewGeminiClient_Failure_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = ""
	client, err := NewGeminiClient(context.Background(), cfg, nil)
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "Gemini API Key is required")
}

func TestNewClient_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Provider = "groq"
	client, err := NewClient(context.Background(), cfg, zap.NewNop())
	assert.Nil(t, client)
	assert.ErrorContains(t, err, "unsupported LLM provider configured: 'groq'")
}

func TestGenerate_Success(t *testing.T) {
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent"), r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		text := string(body)
		assert.Contains(t, text, "Summarize the failures.")
		assert.Contains(t, text, "You triage UI test failures.")
		assert.Contains(t, text, "application/json")

		writeJSON(w, http.StatusOK, map[string]any{
			"candidates":    []any{candidate(`[{"scenario":"a"}]`, "STOP")},
			"usageMetadata": map[string]any{"promptTokenCount": 100, "candidatesTokenCount": 50, "totalTokenCount": 150},
		})
	})

	out, err := client.Generate(context.Background(), Request{
		System: "You triage UI test failures.",
		Prompt: "Summarize the failures.",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"scenario":"a"}]`, out)

	entries := logs.FilterMessage("LLM generation complete (Gemini)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int32(150), entries[0].ContextMap()["total_tokens"])
}

func TestGenerate_SkipsEmptyCandidates(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []any{candidate("", "OTHER"), candidate("second", "STOP")},
		})
	})
	out, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestGenerate_Blocked(t *testing.T) {
	client, _ := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"candidates": []any{candidate("", "SAFETY")}})
	})
	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGenerate_APIError(t *testing.T) {
	client, logs := setupGeminiClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"code": 400, "message": "API key not valid", "status": "INVALID_ARGUMENT"},
		})
	})
	_, err := client.Generate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini generation failed")
	assert.Equal(t, 1, logs.FilterMessage("Gemini request failed").Len())
}
