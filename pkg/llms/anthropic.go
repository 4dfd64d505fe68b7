package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/httpclient"
)

const anthropicVersion = "2023-06-01"

type AnthropicProvider struct {
	cfg        *config.LLMConfig
	httpClient *httpclient.Client
	baseURL    string
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

func NewAnthropicProvider(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	baseURL := cfg.Host
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &AnthropicProvider{
		cfg:        cfg,
		httpClient: newHTTPClient(config.LLMBackendAnthropic),
		baseURL:    baseURL,
	}, nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	start := time.Now()
	ctx, cancel := callContext(ctx, opts, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	ctx, span := startSpan(ctx, "anthropic", p.cfg.Model, false)

	response, err := p.makeRequest(ctx, p.buildRequest(messages, false, opts))
	if err != nil {
		finishCall(span, p.cfg.Model, "chat", start, 0, 0, err)
		return "", err
	}
	if response.Error != nil {
		apiErr := fmt.Errorf("anthropic API error: %s", response.Error.Message)
		finishCall(span, p.cfg.Model, "chat", start, 0, 0, apiErr)
		return "", apiErr
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result := text.String()
	// JSON mode is emulated with an assistant prefill of "{"; stitch the
	// brace back on so callers always see complete JSON.
	if opts.JSONMode && !strings.HasPrefix(strings.TrimSpace(result), "{") {
		result = "{" + result
	}

	inTok, outTok := 0, 0
	if response.Usage != nil {
		inTok, outTok = response.Usage.InputTokens, response.Usage.OutputTokens
	}
	finishCall(span, p.cfg.Model, "chat", start, inTok, outTok, nil)
	return result, nil
}

func (p *AnthropicProvider) ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, opts)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)
		if err := p.makeStreamingRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Type: "error", Error: err}
		}
	}()

	return outputCh, nil
}

func (p *AnthropicProvider) Ping(ctx context.Context) error {
	// No dedicated health endpoint; a one-token request doubles as one.
	_, err := p.makeRequest(ctx, anthropicRequest{
		Model:     p.cfg.Model,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	return err
}

func (p *AnthropicProvider) ModelName() string { return p.cfg.Model }

func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) buildRequest(messages []Message, stream bool, opts Options) anthropicRequest {
	request := anthropicRequest{
		Model:       p.cfg.Model,
		Temperature: opts.Temperature,
		Stream:      stream,
	}

	// Anthropic carries the system prompt as a top-level field.
	var chat []anthropicMessage
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if request.System != "" {
				request.System += "\n\n"
			}
			request.System += msg.Content
			continue
		}
		chat = append(chat, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	if opts.JSONMode {
		request.System += "\n\nRespond with a single valid JSON object and nothing else."
		if !stream {
			chat = append(chat, anthropicMessage{Role: "assistant", Content: "{"})
		}
	}
	request.Messages = chat

	if opts.MaxTokens > 0 {
		request.MaxTokens = opts.MaxTokens
	} else if p.cfg.MaxTokens > 0 {
		request.MaxTokens = p.cfg.MaxTokens
	} else {
		request.MaxTokens = 1024
	}

	return request
}

func (p *AnthropicProvider) newHTTPRequest(ctx context.Context, request anthropicRequest) (*http.Request, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request anthropicRequest) (*anthropicResponse, error) {
	req, err := p.newHTTPRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &response, nil
}

func (p *AnthropicProvider) makeStreamingRequest(ctx context.Context, request anthropicRequest, outputCh chan<- StreamChunk) error {
	req, err := p.newHTTPRequest(ctx, request)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("anthropic streaming request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}
	}
	if err != nil {
		return fmt.Errorf("anthropic streaming request failed: %w", err)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	totalTokens := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				outputCh <- StreamChunk{Type: "text", Text: event.Delta.Text}
			}
		case "message_delta":
			if event.Usage != nil {
				totalTokens = event.Usage.OutputTokens
			}
		case "message_stop":
			outputCh <- StreamChunk{Type: "done", Tokens: totalTokens}
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}

	outputCh <- StreamChunk{Type: "done", Tokens: totalTokens}
	return nil
}
