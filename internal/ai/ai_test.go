package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journez/backend/internal/parse"
)

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]parse.Category{parse.CategoryEat, "nightlife", parse.CategoryDo}, " Prague ", 5)
	assert.Equal(t, SystemInstruction, prompt.System)
	assert.Equal(t, []string{
		"Where are 5 places to eat in Prague?",
		"Where are 5 places to do activities in Prague?",
	}, prompt.Questions)

	assert.Empty(t, BuildPrompt(nil, "Prague", 3).Questions)
}

func TestNewClientsRequireKeys(t *testing.T) {
	_, err := NewGeminiClient(GeminiConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = NewOpenAIClient(Config{APIKey: " "})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestGeminiGenerate(t *testing.T) {
	var captured geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gem-key", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"**Places to eat:**\n"},{"text":"1. **Lokál:** Pub."}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	client, err := NewGeminiClient(GeminiConfig{APIKey: "gem-key", BaseURL: server.URL + "/"})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), BuildPrompt([]parse.Category{parse.CategoryEat, parse.CategoryShop}, "Prague", 2))
	require.NoError(t, err)
	assert.Equal(t, "**Places to eat:**\n1. **Lokál:** Pub.", text)

	require.Len(t, captured.Contents, 1)
	require.Len(t, captured.Contents[0].Parts, 2)
	assert.Equal(t, "Where are 2 places to shop in Prague?", captured.Contents[0].Parts[1].Text)
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, SystemInstruction, captured.SystemInstruction.Parts[0].Text)
}

func TestGeminiGenerateFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"blank text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"  "}]}}]}`},
		{"garbage", http.StatusOK, `not json`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client, err := NewGeminiClient(GeminiConfig{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)
			_, err = client.Generate(context.Background(), Prompt{Questions: []string{"q"}})
			assert.ErrorIs(t, err, ErrGeneration)
		})
	}
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer oa-key", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "q1\nq2", body.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"## Things To Do\n1. A: b"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "oa-key", Model: "test-model", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := client.Generate(context.Background(), Prompt{System: "sys", Questions: []string{"q1", "q2"}})
	require.NoError(t, err)
	assert.Equal(t, "## Things To Do\n1. A: b", text)
}

func TestOpenAIGenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(Config{APIKey: "oa-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), Prompt{Questions: []string{"q"}})
	assert.ErrorIs(t, err, ErrGeneration)
}

type stubGenerator struct {
	name    string
	enabled bool
	text    string
	err     error
	calls   int
}

func (s *stubGenerator) Enabled() bool { return s.enabled }
func (s *stubGenerator) Name() string  { return s.name }
func (s *stubGenerator) Generate(context.Context, Prompt) (string, error) {
	s.calls++
	return s.text, s.err
}

func TestWithFallback(t *testing.T) {
	t.Run("primary answers", func(t *testing.T) {
		primary := &stubGenerator{name: "a", enabled: true, text: "from a"}
		fallback := &stubGenerator{name: "b", enabled: true, text: "from b"}
		text, err := WithFallback(primary, fallback).Generate(context.Background(), Prompt{})
		require.NoError(t, err)
		assert.Equal(t, "from a", text)
		assert.Equal(t, 0, fallback.calls)
	})

	t.Run("fallback consulted once", func(t *testing.T) {
		primary := &stubGenerator{name: "a", enabled: true, err: generationError("a", errors.New("down"))}
		fallback := &stubGenerator{name: "b", enabled: true, text: "from b"}
		chain := WithFallback(primary, fallback)
		assert.Equal(t, "a+b", chain.Name())
		text, err := chain.Generate(context.Background(), Prompt{})
		require.NoError(t, err)
		assert.Equal(t, "from b", text)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 1, fallback.calls)
	})

	t.Run("both fail", func(t *testing.T) {
		primary := &stubGenerator{name: "a", enabled: true, err: generationError("a", errors.New("down"))}
		fallback := &stubGenerator{name: "b", enabled: true, err: generationError("b", errors.New("also down"))}
		_, err := WithFallback(primary, fallback).Generate(context.Background(), Prompt{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGeneration)
		assert.True(t, strings.Contains(err.Error(), "also down"))
	})

	t.Run("nothing enabled", func(t *testing.T) {
		chain := WithFallback(&stubGenerator{name: "a"}, &stubGenerator{name: "b"})
		assert.False(t, chain.Enabled())
		_, err := chain.Generate(context.Background(), Prompt{})
		assert.ErrorIs(t, err, ErrDisabled)
	})

	t.Run("nil sides collapse", func(t *testing.T) {
		only := &stubGenerator{name: "a", enabled: true}
		assert.Same(t, only, WithFallback(nil, only))
		var gemini *GeminiClient
		assert.Same(t, only, WithFallback(only, gemini))
	})
}
