// Package bootstrap turns a loaded configuration into the running object
// graph: model client, prompt invoker, retrieval backends, memory hooks, the
// analysis/ranking/post-processing stages and the orchestrator over them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"nlweb-orchestrator/internal/common/config"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/core/analyzer"
	"nlweb-orchestrator/internal/core/orchestrator"
	"nlweb-orchestrator/internal/core/postprocess"
	"nlweb-orchestrator/internal/core/prompt"
	"nlweb-orchestrator/internal/core/ranking"
	"nlweb-orchestrator/internal/core/retrieval"
	"nlweb-orchestrator/internal/core/stream"
	"nlweb-orchestrator/internal/providers/llm"
	"nlweb-orchestrator/pkg/registry"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// App is everything the binaries need from the object graph.
type App struct {
	Config       *config.Config
	LLM          *llm.Client
	Invoker      *prompt.Invoker
	FanOut       *retrieval.FanOut
	Orchestrator *orchestrator.Orchestrator
	Checks       map[string]Check

	logger  logger.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) addCheck(name string, c Check) {
	if a.Checks == nil {
		a.Checks = make(map[string]Check)
	}
	a.Checks[name] = c
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", map[string]interface{}{"resource": c.name, "error": err})
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Build wires the full query engine. rec may be nil.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger, rec orchestrator.Recorder) (*App, error) {
	app, err := BuildRetrieval(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := app.buildEngine(ctx, rec); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// BuildRetrieval wires only the model client and the retrieval backends, which
// is all the operator commands that load or delete documents need.
func BuildRetrieval(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{Config: cfg, logger: logger.ForComponent(log, "bootstrap")}

	client, err := llm.New(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	app.LLM = client

	regs, err := app.buildBackends(ctx, log)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.FanOut = retrieval.NewFanOut(regs, log)
	return app, nil
}

func (a *App) buildEngine(ctx context.Context, rec orchestrator.Recorder) error {
	cfg := a.Config
	log := a.logger

	file, err := LoadPrompts(cfg.NLWeb.PromptRegistryPath)
	if err != nil {
		return err
	}
	a.Invoker = prompt.NewInvoker(a.LLM, prompt.NewRegistry(file), log)

	hook, err := a.buildMemory(ctx, log)
	if err != nil {
		return err
	}
	an := analyzer.New(a.Invoker, hook, analyzer.Config{
		Decontextualize: cfg.NLWeb.DecontextualizeEnabled,
		Memory:          cfg.NLWeb.MemoryEnabled,
		SiteRelevance:   cfg.NLWeb.SiteRelevanceEnabled,
		RequiredInfo:    cfg.NLWeb.RequiredInfoEnabled,
		AnalyzeQuery:    cfg.NLWeb.AnalyzeQueryEnabled,
		CallTimeout:     config.GetDuration(cfg.LLM.Timeout),
		MemoryTimeout:   config.GetDuration(cfg.Memory.Timeout),
	}, log)
	a.onClose("analyzer", func() error { an.Close(); return nil })

	cache, err := a.buildRankingCache(log)
	if err != nil {
		return err
	}
	engine := ranking.NewEngine(a.Invoker, cache, ranking.Config{
		MaxConcurrent: cfg.Ranking.MaxConcurrent,
		CallTimeout:   config.GetDuration(cfg.Ranking.CallTimeout),
	}, log)

	post := postprocess.NewStage(a.Invoker, postprocess.Config{
		TopK:        cfg.PostProcess.TopK,
		MaxAttempts: cfg.PostProcess.MaxSynthesisAttempts,
		CallTimeout: config.GetDuration(cfg.PostProcess.Timeout),
	}, log)

	a.Orchestrator = orchestrator.New(orchestrator.Deps{
		Analyzer:  an,
		Retriever: a.FanOut,
		Ranker:    engine,
		Post:      post,
		Hub:       stream.NewHub(),
		Recorder:  rec,
	}, orchestrator.Config{
		AllowedSites:       cfg.NLWeb.Sites,
		SiteItemTypes:      cfg.NLWeb.SiteItemTypes,
		DefaultItemType:    cfg.NLWeb.DefaultItemType,
		Threshold:          cfg.Ranking.Threshold,
		SiteThresholds:     cfg.Ranking.SiteThresholds,
		ItemTypeThresholds: cfg.Ranking.ItemTypeThresholds,
		MaxResults:         cfg.Ranking.MaxResults,
		BatchSize:          cfg.Ranking.BatchSize,
		FastTrack:          cfg.NLWeb.FastTrackEnabled,
	}, log)
	return nil
}

func (a *App) buildRankingCache(log logger.Logger) (ranking.Cache, error) {
	ttl := config.GetDuration(a.Config.Ranking.CacheTTL)
	if ttl <= 0 {
		return nil, nil
	}
	lru, err := ranking.NewLRUCache(a.Config.Ranking.CacheSize, ttl)
	if err != nil {
		return nil, fmt.Errorf("ranking cache: %w", err)
	}
	rdb, err := a.connectRedis()
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		return lru, nil
	}
	return ranking.NewTieredCache(lru, ranking.NewRedisCache(rdb.GetClient(), ttl, log)), nil
}

// LoadPrompts starts from the built-in prompts and lets entries from the
// registry file replace or extend them. A missing file leaves the defaults.
func LoadPrompts(path string) (*registry.PromptRegistry, error) {
	file := &registry.PromptRegistry{Version: "builtin", Prompts: prompt.DefaultPrompts()}
	if path == "" {
		return file, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return file, nil
	}

	loaded, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("prompt registry %s: %w", path, err)
	}
	for _, p := range loaded.Prompts {
		file.Upsert(p)
	}
	file.Version = loaded.Version
	file.LastUpdated = loaded.LastUpdated
	file.Hierarchy = loaded.Hierarchy
	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("prompt registry %s: %w", path, err)
	}
	return file, nil
}

// retryWithBackoff retries op with doubling delays until it succeeds, the
// attempts run out or ctx ends.
func retryWithBackoff(ctx context.Context, log logger.Logger, name string, attempts int, delay time.Duration, op func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		log.Warn(name+" failed, retrying", map[string]interface{}{
			"attempt":     i + 1,
			"maxAttempts": attempts,
			"nextRetryIn": delay.String(),
			"error":       err,
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
