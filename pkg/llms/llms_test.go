package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigila-ai/vigila/pkg/config"
)

func ollamaTestConfig(host string) *config.LLMConfig {
	cfg := &config.LLMConfig{Backend: config.LLMBackendOllama, Host: host}
	cfg.SetDefaults()
	return cfg
}

func TestOllamaBuildRequest(t *testing.T) {
	p, err := NewOllamaProvider(ollamaTestConfig(""))
	require.NoError(t, err)

	messages := []Message{
		System("sei un assistente"),
		User("ciao"),
	}

	req := p.buildRequest(messages, false, Options{Temperature: 0.1, MaxTokens: 200, JSONMode: true})

	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "json", req.Format)
	assert.Equal(t, 0.1, req.Options.Temperature)
	assert.Equal(t, 200, req.Options.NumPredict)
	assert.False(t, req.Stream)
}

func TestOllamaChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "json", req.Format)

		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Message:         ollamaMessage{Role: "assistant", Content: `{"intent":"greet"}`},
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(ollamaTestConfig(srv.URL))
	require.NoError(t, err)

	text, err := p.Chat(context.Background(), []Message{User("ciao")}, Options{JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"greet"}`, text)
}

func TestOllamaChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks := []ollamaResponse{
			{Message: ollamaMessage{Content: "Buon"}},
			{Message: ollamaMessage{Content: "giorno"}},
			{Done: true, PromptEvalCount: 3, EvalCount: 2},
		}
		enc := json.NewEncoder(w)
		for _, c := range chunks {
			_ = enc.Encode(c)
		}
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(ollamaTestConfig(srv.URL))
	require.NoError(t, err)

	ch, err := p.ChatStream(context.Background(), []Message{User("ciao")}, Options{})
	require.NoError(t, err)

	var text string
	var done bool
	for chunk := range ch {
		switch chunk.Type {
		case "text":
			text += chunk.Text
		case "done":
			done = true
			assert.Equal(t, 5, chunk.Tokens)
		case "error":
			t.Fatalf("unexpected stream error: %v", chunk.Error)
		}
	}
	assert.Equal(t, "Buongiorno", text)
	assert.True(t, done)
}

func TestOllamaChatHonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(ollamaTestConfig(srv.URL))
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Chat(context.Background(), []Message{User("ciao")}, Options{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOpenAIBuildRequest(t *testing.T) {
	cfg := &config.LLMConfig{Backend: config.LLMBackendOpenAI, APIKey: "sk-test", Model: "gpt-4o-mini"}
	cfg.SetDefaults()
	p, err := NewOpenAIProvider(cfg)
	require.NoError(t, err)

	req := p.buildRequest([]Message{User("ciao")}, true, Options{Temperature: 0.3, JSONMode: true})

	assert.True(t, req.Stream)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	assert.Equal(t, 0.3, req.Temperature)
}

func TestAnthropicBuildRequestFoldsSystemMessages(t *testing.T) {
	cfg := &config.LLMConfig{Backend: config.LLMBackendAnthropic, APIKey: "sk-test", Model: "claude-3-5-haiku-20241022"}
	cfg.SetDefaults()
	p, err := NewAnthropicProvider(cfg)
	require.NoError(t, err)

	req := p.buildRequest([]Message{
		System("regole"),
		User("ciao"),
	}, false, Options{JSONMode: true})

	assert.Contains(t, req.System, "regole")
	assert.Contains(t, req.System, "JSON")
	// JSON mode appends the "{" prefill as the last assistant message.
	require.NotEmpty(t, req.Messages)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, "assistant", last.Role)
	assert.Equal(t, "{", last.Content)
}

func TestNewFromConfigGDPRGate(t *testing.T) {
	cfg := &config.LLMConfig{Backend: config.LLMBackendOpenAI, APIKey: "sk-test"}
	cfg.SetDefaults()

	_, err := NewFromConfig(cfg, config.GDPRConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_external_llm")

	_, err = NewFromConfig(cfg, config.GDPRConfig{AllowExternalLLM: true})
	require.NoError(t, err)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	cfg := ollamaTestConfig("")

	_, err := r.CreateFromConfig("main", cfg, config.GDPRConfig{})
	require.NoError(t, err)

	_, err = r.CreateFromConfig("main", cfg, config.GDPRConfig{})
	require.Error(t, err)
}
