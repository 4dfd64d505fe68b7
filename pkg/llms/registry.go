package llms

import (
	"fmt"

	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/registry"
)

// Registry holds named LLM providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

// NewFromConfig builds a provider for the configured backend. The GDPR
// gate refuses remote backends unless explicitly allowed: inspection
// queries carry establishment and personal identifiers and must not leave
// the premises by accident.
func NewFromConfig(cfg *config.LLMConfig, gdpr config.GDPRConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm config cannot be nil")
	}

	if cfg.Backend != config.LLMBackendOllama && !gdpr.AllowExternalLLM {
		return nil, fmt.Errorf("backend %q sends data to an external service; set gdpr.allow_external_llm to enable it", cfg.Backend)
	}

	switch cfg.Backend {
	case config.LLMBackendOllama:
		return NewOllamaProvider(cfg)
	case config.LLMBackendOpenAI:
		return NewOpenAIProvider(cfg)
	case config.LLMBackendAnthropic:
		return NewAnthropicProvider(cfg)
	case config.LLMBackendGemini:
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM backend: %s (supported: ollama, openai, anthropic, gemini)", cfg.Backend)
	}
}

// CreateFromConfig builds and registers a provider under the given name.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMConfig, gdpr config.GDPRConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("LLM name cannot be empty")
	}

	provider, err := NewFromConfig(cfg, gdpr)
	if err != nil {
		return nil, err
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("registering LLM: %w", err)
	}

	return provider, nil
}
