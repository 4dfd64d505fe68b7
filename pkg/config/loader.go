package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix recognized on override variables.
// VIGILA_SESSION__TTL_S=600 overrides session.ttl_s.
const EnvPrefix = "VIGILA_"

// LoaderOptions configures config loading.
type LoaderOptions struct {
	// Path to the YAML config file. Empty means defaults + env only.
	Path string

	// Watch enables fsnotify-based reload of the config file.
	Watch bool

	// OnChange is invoked with the reloaded config after a watched file
	// changes. Reload failures are logged and the old config stays live.
	OnChange func(*Config) error
}

// Loader loads, validates, and optionally watches the configuration.
type Loader struct {
	options  LoaderOptions
	stopChan chan struct{}
}

func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{
		options:  opts,
		stopChan: make(chan struct{}),
	}
}

// Load reads the config file (if any), applies environment overrides,
// defaults, and validation. When watching is enabled a goroutine keeps
// reloading on file changes until Stop is called.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.loadOnce()
	if err != nil {
		return nil, err
	}

	if l.options.Watch && l.options.Path != "" {
		go l.watch()
	}

	return cfg, nil
}

// Stop terminates the file watcher, if running.
func (l *Loader) Stop() {
	close(l.stopChan)
}

func (l *Loader) loadOnce() (*Config, error) {
	k := koanf.New(".")

	if l.options.Path != "" {
		if err := k.Load(file.Provider(l.options.Path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", l.options.Path, err)
		}
	}

	// Expand ${VAR} references in file-sourced string values before env
	// overrides land, so an override is never re-expanded.
	expanded := map[string]interface{}{}
	for key, value := range k.All() {
		if s, ok := value.(string); ok {
			expanded[key] = ExpandEnvVars(s)
		}
	}
	if len(expanded) > 0 {
		if err := k.Load(confmap.Provider(expanded, "."), nil); err != nil {
			return nil, fmt.Errorf("expanding env references: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// envKeyToPath maps VIGILA_CACHE__CLASSIFICATION__TTL_S to
// cache.classification.ttl_s. A single underscore stays part of the key,
// a double underscore descends a level.
func envKeyToPath(key string) string {
	key = key[len(EnvPrefix):]
	var out []byte
	for i := 0; i < len(key); i++ {
		if key[i] == '_' && i+1 < len(key) && key[i+1] == '_' {
			out = append(out, '.')
			i++
			continue
		}
		c := key[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func (l *Loader) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	dir := filepath.Dir(l.options.Path)
	if err := watcher.Add(dir); err != nil {
		slog.Warn("config watch failed", "dir", dir, "error", err)
		return
	}

	target := filepath.Clean(l.options.Path)
	var debounce *time.Timer

	for {
		select {
		case <-l.stopChan:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Debounce bursts of write events from a single save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, l.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watch error", "error", err)
		}
	}
}

func (l *Loader) reload() {
	cfg, err := l.loadOnce()
	if err != nil {
		slog.Warn("config reload failed, keeping previous config", "error", err)
		return
	}
	if l.options.OnChange != nil {
		if err := l.options.OnChange(cfg); err != nil {
			slog.Warn("config change callback failed", "error", err)
			return
		}
	}
	slog.Info("configuration reloaded", "path", l.options.Path)
}
