package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	vigila "github.com/vigila-ai/vigila"
	"github.com/vigila-ai/vigila/pkg/config"
	"github.com/vigila-ai/vigila/pkg/dialogue"
	"github.com/vigila-ai/vigila/pkg/fallback"
	"github.com/vigila-ai/vigila/pkg/graph"
	"github.com/vigila-ai/vigila/pkg/llms"
	"github.com/vigila-ai/vigila/pkg/observability"
	"github.com/vigila-ai/vigila/pkg/response"
	"github.com/vigila-ai/vigila/pkg/retriever"
	"github.com/vigila-ai/vigila/pkg/router"
	"github.com/vigila-ai/vigila/pkg/server"
	"github.com/vigila-ai/vigila/pkg/session"
	"github.com/vigila-ai/vigila/pkg/tools"
	"github.com/vigila-ai/vigila/pkg/twophase"
)

// ServeCmd starts the chat webhook server.
type ServeCmd struct {
	Port  int  `short:"p" help:"Listen port. Overrides config."`
	Watch bool `short:"w" help:"Reload thresholds and tunables when the config file changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.LoadDotEnv()

	// Hot-reload targets, populated during wiring below.
	var (
		rt      *router.Router
		manager *dialogue.Manager
		shaper  *twophase.Shaper
		engine  *fallback.Engine
	)

	loader := config.NewLoader(config.LoaderOptions{
		Path:  cli.Config,
		Watch: c.Watch,
		OnChange: func(cfg *config.Config) error {
			if rt == nil {
				// File changed before wiring finished; the fresh
				// config is picked up at construction anyway.
				return nil
			}
			rt.Reconfigure(cfg.Router)
			manager.Reconfigure(cfg.Router)
			shaper.Reconfigure(cfg.TwoPhase)
			engine.Reconfigure(cfg.Fallback.MaxLoop)
			slog.Info("configuration reloaded", "source", cli.Config)
			return nil
		},
	})
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	defer loader.Stop()

	cleanupLog, err := setupLogging(cli, cfg.Logging)
	if err != nil {
		return err
	}
	defer cleanupLog()

	if c.Port > 0 {
		cfg.Server.Port = c.Port
	}

	obs, err := observability.NewManager()
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	observability.SetGlobalMetrics(obs.Metrics())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown", "error", err)
		}
	}()

	provider, err := llms.NewFromConfig(&cfg.LLM, cfg.GDPR)
	if err != nil {
		return fmt.Errorf("initializing LLM provider: %w", err)
	}
	defer provider.Close()

	ret, err := buildRetriever(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing retriever: %w", err)
	}

	store, err := buildDatastore(cfg)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}
	registry, err := tools.NewDefaultRegistry(store)
	if err != nil {
		return fmt.Errorf("initializing tool registry: %w", err)
	}

	sessions := session.NewStore(time.Duration(cfg.Session.TTLSeconds)*time.Second,
		session.WithEvictEveryWrites(cfg.Session.EvictEveryWrites),
		session.WithEvictInterval(time.Duration(cfg.Session.EvictIntervalSeconds)*time.Second))
	defer sessions.Close()

	rt = router.New(cfg.Router, cfg.Cache.Classification, provider, ret, cfg.LLM.Temperature.Classify)
	manager = dialogue.NewManager(cfg.Router)
	shaper = twophase.NewShaper(cfg.TwoPhase)
	engine = fallback.NewEngine(provider, cfg.Fallback.MaxLoop)
	generator := response.NewGenerator(provider, cfg.LLM.Temperature.Generate, cfg.LLM.MaxTokens)

	g := graph.New(rt, manager, engine, registry, shaper, generator, sessions,
		time.Duration(cfg.Session.GraphTimeoutSeconds)*time.Second)

	srv := server.New(cfg.Server, g, server.Options{
		Router:    rt,
		Provider:  provider,
		Retriever: ret,
		Store:     sessions,
		Obs:       obs,
		Directory: store,
		Version:   vigila.Version,
	})

	slog.Info("starting vigila", "version", vigila.Version, "address", srv.Address(),
		"backend", cfg.LLM.Backend, "model", cfg.LLM.Model)
	return srv.Start(ctx)
}

// buildRetriever seeds the few-shot example index. When the ollama
// embedding endpoint is unreachable it falls back to the hash embedder
// so classification still gets lexical neighbors.
func buildRetriever(ctx context.Context, cfg *config.Config) (*retriever.Store, error) {
	examples, err := retriever.LoadCorpus(cfg.Retriever.ExamplesPath)
	if err != nil {
		return nil, err
	}

	st, err := retriever.NewStore(retriever.NewOllamaEmbedder(cfg.LLM.Host, cfg.Retriever.EmbeddingModel))
	if err != nil {
		return nil, err
	}
	if err := st.Seed(ctx, examples); err != nil {
		slog.Warn("embedding endpoint unavailable, using hash embedder", "error", err)
		st, err = retriever.NewStore(retriever.NewHashEmbedder(256))
		if err != nil {
			return nil, err
		}
		if err := st.Seed(ctx, examples); err != nil {
			return nil, err
		}
	}
	slog.Info("retriever seeded", "examples", st.Size())
	return st, nil
}

// buildDatastore loads the inspection dataset. An empty path yields an
// empty in-memory store so the server still answers smalltalk intents.
func buildDatastore(cfg *config.Config) (*tools.MemStore, error) {
	if cfg.Data.DatasetPath == "" {
		slog.Warn("no dataset configured, domain queries will return empty results")
		return tools.NewMemStore(tools.Dataset{}), nil
	}
	ds, err := tools.LoadDataset(cfg.Data.DatasetPath)
	if err != nil {
		return nil, err
	}
	return tools.NewMemStore(ds), nil
}
