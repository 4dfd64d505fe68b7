// Package config defines the Vigila configuration model and its loader.
//
// Configuration is read from a YAML document and overridden by environment
// variables (VIGILA_ prefix, double underscore as the level separator, e.g.
// VIGILA_SESSION__TTL_S=600). Every section implements SetDefaults and
// Validate; loading always produces a fully defaulted, validated Config.
package config

import (
	"fmt"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty" json:"server,omitempty" jsonschema:"title=Server"`
	LLM       LLMConfig       `yaml:"llm,omitempty" json:"llm,omitempty" jsonschema:"title=LLM"`
	Session   SessionConfig   `yaml:"session,omitempty" json:"session,omitempty" jsonschema:"title=Session"`
	Cache     CacheConfig     `yaml:"cache,omitempty" json:"cache,omitempty" jsonschema:"title=Cache"`
	Router    RouterConfig    `yaml:"router,omitempty" json:"router,omitempty" jsonschema:"title=Router"`
	TwoPhase  TwoPhaseConfig  `yaml:"two_phase,omitempty" json:"two_phase,omitempty" jsonschema:"title=Two-Phase"`
	Fallback  FallbackConfig  `yaml:"fallback,omitempty" json:"fallback,omitempty" jsonschema:"title=Fallback"`
	Retriever RetrieverConfig `yaml:"retriever,omitempty" json:"retriever,omitempty" jsonschema:"title=Retriever"`
	Data      DataConfig      `yaml:"data,omitempty" json:"data,omitempty" jsonschema:"title=Data"`
	GDPR      GDPRConfig      `yaml:"gdpr,omitempty" json:"gdpr,omitempty" jsonschema:"title=GDPR"`
	Logging   LoggingConfig   `yaml:"logging,omitempty" json:"logging,omitempty" jsonschema:"title=Logging"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.LLM.SetDefaults()
	c.Session.SetDefaults()
	c.Cache.SetDefaults()
	c.Router.SetDefaults()
	c.TwoPhase.SetDefaults()
	c.Fallback.SetDefaults()
	c.Retriever.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and the cross-section GDPR gate.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Router.Validate(); err != nil {
		return fmt.Errorf("router: %w", err)
	}
	if err := c.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	if !c.GDPR.AllowExternalLLM && c.LLM.Backend != LLMBackendOllama {
		return fmt.Errorf("llm backend %q requires gdpr.allow_external_llm: true", c.LLM.Backend)
	}
	return nil
}

// Default returns a fully defaulted Config.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,default=0.0.0.0"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,default=5005"`

	// ReadTimeoutS bounds request body reads. WriteTimeoutS must exceed
	// the graph timeout or streaming turns get cut off mid-flight.
	ReadTimeoutS  int `yaml:"read_timeout_s,omitempty" json:"read_timeout_s,omitempty" jsonschema:"default=30"`
	WriteTimeoutS int `yaml:"write_timeout_s,omitempty" json:"write_timeout_s,omitempty" jsonschema:"default=90"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 5005
	}
	if c.ReadTimeoutS == 0 {
		c.ReadTimeoutS = 30
	}
	if c.WriteTimeoutS == 0 {
		c.WriteTimeoutS = 90
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// SessionConfig configures per-sender conversational memory.
type SessionConfig struct {
	// TTLSeconds is the sliding session lifetime. Entries older than TTL
	// read as absent; entries older than 2×TTL are purged.
	TTLSeconds int `yaml:"ttl_s,omitempty" json:"ttl_s,omitempty" jsonschema:"default=300"`

	// GraphTimeoutSeconds is the hard per-turn deadline.
	GraphTimeoutSeconds int `yaml:"graph_timeout_s,omitempty" json:"graph_timeout_s,omitempty" jsonschema:"default=50"`

	// EvictEveryWrites triggers a purge pass every N store writes.
	EvictEveryWrites int `yaml:"evict_every_writes,omitempty" json:"evict_every_writes,omitempty" jsonschema:"default=100"`

	// EvictIntervalSeconds is the background purge tick.
	EvictIntervalSeconds int `yaml:"evict_interval_s,omitempty" json:"evict_interval_s,omitempty" jsonschema:"default=30"`
}

func (c *SessionConfig) SetDefaults() {
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 300
	}
	if c.GraphTimeoutSeconds == 0 {
		c.GraphTimeoutSeconds = 50
	}
	if c.EvictEveryWrites == 0 {
		c.EvictEveryWrites = 100
	}
	if c.EvictIntervalSeconds == 0 {
		c.EvictIntervalSeconds = 30
	}
}

func (c *SessionConfig) Validate() error {
	if c.TTLSeconds < 0 || c.GraphTimeoutSeconds < 0 {
		return fmt.Errorf("negative timeout")
	}
	return nil
}

// CacheConfig configures the classification cache.
type CacheConfig struct {
	Classification ClassificationCacheConfig `yaml:"classification,omitempty" json:"classification,omitempty"`
}

func (c *CacheConfig) SetDefaults() {
	c.Classification.SetDefaults()
}

func (c *CacheConfig) Validate() error {
	if c.Classification.Capacity < 0 {
		return fmt.Errorf("negative cache capacity")
	}
	return nil
}

// ClassificationCacheConfig bounds the LRU over classifier results.
type ClassificationCacheConfig struct {
	TTLSeconds int `yaml:"ttl_s,omitempty" json:"ttl_s,omitempty" jsonschema:"default=3600"`
	Capacity   int `yaml:"capacity,omitempty" json:"capacity,omitempty" jsonschema:"default=1024"`
}

func (c *ClassificationCacheConfig) SetDefaults() {
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 3600
	}
	if c.Capacity == 0 {
		c.Capacity = 1024
	}
}

// RouterConfig holds the classifier confidence thresholds. Values are
// model-dependent tunables, never hard-coded at call sites.
type RouterConfig struct {
	HighThreshold float64 `yaml:"high_threshold,omitempty" json:"high_threshold,omitempty" jsonschema:"default=0.65"`
	MinThreshold  float64 `yaml:"min_threshold,omitempty" json:"min_threshold,omitempty" jsonschema:"default=0.4"`
	AmbiguityGap  float64 `yaml:"ambiguity_gap,omitempty" json:"ambiguity_gap,omitempty" jsonschema:"default=0.15"`

	// MaxMessageTokens truncates the message sent to the classifier LLM.
	// The original text is preserved in conversation state.
	MaxMessageTokens int `yaml:"max_message_tokens,omitempty" json:"max_message_tokens,omitempty" jsonschema:"default=1000"`

	// FewShot is the number of retrieved examples in the classify prompt.
	FewShot int `yaml:"few_shot,omitempty" json:"few_shot,omitempty" jsonschema:"default=6"`
}

func (c *RouterConfig) SetDefaults() {
	if c.HighThreshold == 0 {
		c.HighThreshold = 0.65
	}
	if c.MinThreshold == 0 {
		c.MinThreshold = 0.40
	}
	if c.AmbiguityGap == 0 {
		c.AmbiguityGap = 0.15
	}
	if c.MaxMessageTokens == 0 {
		c.MaxMessageTokens = 1000
	}
	if c.FewShot == 0 {
		c.FewShot = 6
	}
}

func (c *RouterConfig) Validate() error {
	if c.MinThreshold > c.HighThreshold {
		return fmt.Errorf("min_threshold %.2f exceeds high_threshold %.2f", c.MinThreshold, c.HighThreshold)
	}
	if c.HighThreshold > 1 || c.MinThreshold < 0 {
		return fmt.Errorf("thresholds must lie in [0,1]")
	}
	return nil
}

// TwoPhaseConfig overrides per-intent item-count thresholds above which a
// result is summarized and offered for expansion.
type TwoPhaseConfig struct {
	Thresholds map[string]int `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

func (c *TwoPhaseConfig) SetDefaults() {
	if c.Thresholds == nil {
		c.Thresholds = map[string]int{}
	}
}

// FallbackConfig configures fallback recovery.
type FallbackConfig struct {
	// MaxLoop is the number of consecutive fallback turns before the
	// stock "please rephrase" reply.
	MaxLoop int `yaml:"max_loop,omitempty" json:"max_loop,omitempty" jsonschema:"default=3"`
}

func (c *FallbackConfig) SetDefaults() {
	if c.MaxLoop == 0 {
		c.MaxLoop = 3
	}
}

func (c *FallbackConfig) Validate() error {
	if c.MaxLoop < 1 {
		return fmt.Errorf("max_loop must be at least 1")
	}
	return nil
}

// RetrieverConfig configures the few-shot example index.
type RetrieverConfig struct {
	// ExamplesPath is a YAML corpus of classified example utterances.
	ExamplesPath string `yaml:"examples_path,omitempty" json:"examples_path,omitempty"`

	// EmbeddingModel is the ollama embedding model backing the index.
	EmbeddingModel string `yaml:"embedding_model,omitempty" json:"embedding_model,omitempty" jsonschema:"default=nomic-embed-text"`
}

func (c *RetrieverConfig) SetDefaults() {
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "nomic-embed-text"
	}
}

// DataConfig locates the domain dataset backing the tools.
type DataConfig struct {
	// DatasetPath is a YAML document of plans, establishments,
	// inspections, staff, procedures, and comuni. Empty starts an empty
	// store, useful with an external datastore mounted later.
	DatasetPath string `yaml:"dataset_path,omitempty" json:"dataset_path,omitempty"`
}

// GDPRConfig gates data egress to non-local LLM backends.
type GDPRConfig struct {
	AllowExternalLLM bool `yaml:"allow_external_llm,omitempty" json:"allow_external_llm,omitempty" jsonschema:"default=false"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"default=info,enum=debug,enum=info,enum=warn,enum=error"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"default=simple,enum=simple,enum=verbose"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}
