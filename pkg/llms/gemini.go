package llms

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/vigila-ai/vigila/pkg/config"
)

// GeminiProvider wraps the official genai SDK.
type GeminiProvider struct {
	cfg    *config.LLMConfig
	client *genai.Client
}

func NewGeminiProvider(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiProvider{cfg: cfg, client: client}, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	start := time.Now()
	ctx, cancel := callContext(ctx, opts, time.Duration(p.cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	ctx, span := startSpan(ctx, "gemini", p.cfg.Model, false)

	contents, genCfg := p.buildRequest(messages, opts)

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, genCfg)
	if err != nil {
		finishCall(span, p.cfg.Model, "chat", start, 0, 0, err)
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	inTok, outTok := 0, 0
	if resp.UsageMetadata != nil {
		inTok = int(resp.UsageMetadata.PromptTokenCount)
		outTok = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	finishCall(span, p.cfg.Model, "chat", start, inTok, outTok, nil)
	return resp.Text(), nil
}

func (p *GeminiProvider) ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	contents, genCfg := p.buildRequest(messages, opts)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.cfg.Model, contents, genCfg) {
			if err != nil {
				outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("gemini streaming error: %w", err)}
				return
			}
			if text := resp.Text(); text != "" {
				outputCh <- StreamChunk{Type: "text", Text: text}
			}
		}
		outputCh <- StreamChunk{Type: "done"}
	}()

	return outputCh, nil
}

func (p *GeminiProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.GenerateContent(ctx, p.cfg.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: "ping"}}}},
		&genai.GenerateContentConfig{MaxOutputTokens: 1},
	)
	return err
}

func (p *GeminiProvider) ModelName() string { return p.cfg.Model }

func (p *GeminiProvider) Close() error { return nil }

func (p *GeminiProvider) buildRequest(messages []Message, opts Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(opts.MaxTokens)
	} else if p.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(p.cfg.MaxTokens)
	}
	if opts.JSONMode {
		genCfg.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			genCfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents, genCfg
}
