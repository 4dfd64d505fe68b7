package config

import (
	"fmt"
	"os"
)

// LLMBackend identifies the LLM backend type.
type LLMBackend string

const (
	LLMBackendOllama    LLMBackend = "ollama"
	LLMBackendOpenAI    LLMBackend = "openai"
	LLMBackendAnthropic LLMBackend = "anthropic"
	LLMBackendGemini    LLMBackend = "gemini"
)

// LLMTemperatures holds per-use temperature overrides. Classification
// wants near-deterministic output; generation tolerates some variety.
type LLMTemperatures struct {
	Classify float64 `yaml:"classify,omitempty" json:"classify,omitempty" jsonschema:"default=0.1"`
	Generate float64 `yaml:"generate,omitempty" json:"generate,omitempty" jsonschema:"default=0.3"`
}

// LLMConfig configures the LLM backend.
type LLMConfig struct {
	// Backend type (ollama, openai, anthropic, gemini). Non-ollama
	// backends are refused unless gdpr.allow_external_llm is set.
	Backend LLMBackend `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=ollama,enum=openai,enum=anthropic,enum=gemini,default=ollama"`

	// Model identifier passed to the backend.
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for remote backends. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// Host overrides the backend endpoint (ollama default
	// http://localhost:11434).
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	Temperature LLMTemperatures `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens caps generated responses. Classification calls use their
	// own much smaller cap set by the router.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"default=1024"`

	// TimeoutSeconds is the default per-call deadline. Individual call
	// sites (classify, rerank, generate) may shorten it.
	TimeoutSeconds int `yaml:"timeout_s,omitempty" json:"timeout_s,omitempty" jsonschema:"default=30"`
}

func (c *LLMConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = LLMBackendOllama
	}
	if c.Model == "" {
		switch c.Backend {
		case LLMBackendOllama:
			c.Model = "llama3.1:8b"
		case LLMBackendOpenAI:
			c.Model = "gpt-4o-mini"
		case LLMBackendAnthropic:
			c.Model = "claude-3-5-haiku-20241022"
		case LLMBackendGemini:
			c.Model = "gemini-2.0-flash"
		}
	}
	if c.APIKey == "" {
		c.APIKey = apiKeyFromEnv(c.Backend)
	}
	if c.Temperature.Classify == 0 {
		c.Temperature.Classify = 0.1
	}
	if c.Temperature.Generate == 0 {
		c.Temperature.Generate = 0.3
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

func (c *LLMConfig) Validate() error {
	switch c.Backend {
	case LLMBackendOllama, LLMBackendOpenAI, LLMBackendAnthropic, LLMBackendGemini:
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	switch c.Backend {
	case LLMBackendOpenAI, LLMBackendAnthropic, LLMBackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("backend %q requires an api_key", c.Backend)
		}
	}
	return nil
}

func apiKeyFromEnv(backend LLMBackend) string {
	switch backend {
	case LLMBackendOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case LLMBackendAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case LLMBackendGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}
