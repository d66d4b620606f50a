package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/entrhq/mnemo/pkg/agent"
	"github.com/entrhq/mnemo/pkg/agent/tools"
	"github.com/entrhq/mnemo/pkg/config"
	"github.com/entrhq/mnemo/pkg/contextbuilder"
	"github.com/entrhq/mnemo/pkg/embedding"
	"github.com/entrhq/mnemo/pkg/llm"
	"github.com/entrhq/mnemo/pkg/llm/anthropic"
	"github.com/entrhq/mnemo/pkg/llm/openai"
	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/memory/index"
	"github.com/entrhq/mnemo/pkg/session"
)

var appLog *logging.Logger

func init() {
	var err error
	appLog, err = logging.NewLogger("mnemo")
	if err != nil {
		appLog.Warnf("Failed to initialize mnemo logger, using stderr fallback: %v", err)
	}
}

// loadConfig resolves the config file and applies, in order, the file,
// the environment and the command line flags.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		ws := workspace
		if ws == "" {
			ws = os.Getenv("MNEMO_WORKSPACE")
		}
		if ws == "" {
			ws = config.DefaultWorkspace()
		}
		path = filepath.Join(ws, config.FileName)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.Workspace = workspace
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	return cfg, nil
}

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	store     *memory.FileStore
	counter   tokenizer.Counter
	embedder  embedding.Embedder
	index     *index.Index
	reindexer *index.Reindexer
	builder   *contextbuilder.Builder
	registry  *tools.Registry
}

// newApp opens the memory store and, when enabled, the semantic index.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := memory.NewFileStore(cfg.MemoryDir(), memory.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		counter: tokenizer.Default(),
	}

	if cfg.Index.Enabled {
		a.embedder, err = embedding.New(ctx, embedding.Config{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
			CacheSize:  cfg.Embedding.CacheSize,
		})
		if err != nil {
			// The index is optional: without an embedder it runs disabled.
			appLog.Warnf("embedding provider unavailable: %v", err)
			a.embedder = nil
		}
	}

	a.index = index.Open(ctx, index.Config{
		Enabled:          cfg.Index.Enabled,
		Dir:              cfg.IndexDir(),
		MaxTokens:        cfg.Index.MaxTokens,
		Overlap:          cfg.Index.Overlap,
		EmbedConcurrency: cfg.Index.EmbedConcurrency,
	}, store, a.embedder, index.WithCounter(a.counter))
	a.reindexer = index.NewReindexer(a.index)

	a.builder = contextbuilder.New(store,
		contextbuilder.WithIndex(a.index),
		contextbuilder.WithCounter(a.counter),
		contextbuilder.WithBudget(cfg.Agent.ContextBudget),
		contextbuilder.WithTopK(cfg.Index.TopK))
	a.registry = tools.NewRegistry(tools.MemoryTools(store, a.index)...)
	return a, nil
}

// startIndexing indexes existing notes into an empty index and starts the
// background reindexer.
func (a *app) startIndexing(ctx context.Context) {
	if !a.index.Enabled() {
		return
	}
	if err := a.index.Bootstrap(ctx); err != nil {
		appLog.Warnf("initial indexing incomplete: %v", err)
	}
	a.reindexer.Start(ctx)
}

// newProvider builds the configured chat model.
func (a *app) newProvider() (llm.Provider, error) {
	c := a.cfg.LLM
	switch c.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewProvider(c.APIKey,
			anthropic.WithModel(c.Model),
			anthropic.WithBaseURL(c.BaseURL),
			anthropic.WithMaxTokens(c.MaxTokens))
	default:
		opts := []openai.ProviderOption{openai.WithModel(c.Model)}
		if c.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.BaseURL))
		}
		return openai.NewProvider(c.APIKey, opts...)
	}
}

// newCoordinator builds the agent loop and the session coordinator over it.
func (a *app) newCoordinator(provider llm.Provider, observer agent.Observer) *session.Coordinator {
	c := a.cfg.Agent
	loop := agent.NewLoop(provider, a.registry, a.store, a.builder,
		agent.WithMaxIterations(c.MaxIterations),
		agent.WithRetry(c.MaxAttempts, c.BackoffBase, c.BackoffMax),
		agent.WithToolParallelism(c.ToolParallelism),
		agent.WithInstructions(c.Instructions),
		agent.WithMaxTokens(a.cfg.LLM.MaxTokens),
		agent.WithCounter(a.counter),
		agent.WithReindexer(a.reindexer),
		agent.WithObserver(observer))
	return session.NewCoordinator(loop, session.WithMaxQueueDepth(a.cfg.Session.MaxQueueDepth))
}

// Close flushes pending reindexing and releases the index.
func (a *app) Close(ctx context.Context) {
	if err := a.reindexer.Flush(ctx); err != nil {
		appLog.Warnf("pending reindex not flushed: %v", err)
	}
	a.reindexer.Close()
	if err := a.index.Close(); err != nil {
		appLog.Warnf("close index: %v", err)
	}
	if c, ok := a.embedder.(interface{ Close() }); ok {
		c.Close()
	}
}
