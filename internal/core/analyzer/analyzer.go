package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/core/prompt"
	"nlweb-orchestrator/internal/models"
)

// Runner resolves and invokes a prompt for an item type.
type Runner interface {
	Run(ctx context.Context, name, itemType string, vars map[string]string) (prompt.Result, error)
}

// Emitter receives the protocol events produced during analysis.
type Emitter interface {
	Emit(ctx context.Context, ev models.ProtocolEvent) bool
}

// MemoryHook persists detected facts. Calls are fire-and-forget.
type MemoryHook interface {
	Persist(ctx context.Context, fact models.MemoryFact) error
}

type Config struct {
	Decontextualize bool
	Memory          bool
	SiteRelevance   bool
	RequiredInfo    bool
	AnalyzeQuery    bool
	CallTimeout     time.Duration
	MemoryTimeout   time.Duration
}

type Analyzer struct {
	runner Runner
	hook   MemoryHook
	config Config
	logger logger.Logger

	hooks sync.WaitGroup
}

// New builds an Analyzer. hook may be nil.
func New(runner Runner, hook MemoryHook, cfg Config, log logger.Logger) *Analyzer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 8 * time.Second
	}
	if cfg.MemoryTimeout <= 0 {
		cfg.MemoryTimeout = 5 * time.Second
	}
	return &Analyzer{
		runner: runner,
		hook:   hook,
		config: cfg,
		logger: logger.ForComponent(log, "analyzer"),
	}
}

// outcome collects what each concurrent check produced. Nothing is written to
// the QueryContext or emitted until every check has returned.
type outcome struct {
	decontextualized string
	memoryFact       string
	irrelevant       bool
	irrelevantReason string
	missingInfo      bool
	question         string
	analysis         map[string]interface{}
}

// Analyze runs the enabled checks concurrently and applies their results in a
// fixed order: decontextualization, memory, site relevance, required info.
// Individual check failures are logged and treated as "no finding"; only
// cancellation of ctx fails the analysis.
func (a *Analyzer) Analyze(ctx context.Context, qc *models.QueryContext, emitter Emitter) (models.Verdict, error) {
	log := a.logger.With(map[string]interface{}{"queryId": qc.Request.QueryID})
	vars := a.variables(qc)

	var (
		out outcome
		mu  sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)

	if a.config.Decontextualize && qc.Request.DecontextualizedQuery == "" && qc.Request.HasContext() {
		g.Go(func() error {
			res, ok := a.run(gctx, log, prompt.PromptDecontextualize, qc.ItemType, vars)
			if !ok {
				return nil
			}
			q := res.String("decontextualized_query")
			if res.Bool("requires_decontextualization") && q != "" {
				mu.Lock()
				out.decontextualized = q
				mu.Unlock()
			}
			return nil
		})
	}

	if a.config.Memory {
		g.Go(func() error {
			res, ok := a.run(gctx, log, prompt.PromptMemory, qc.ItemType, vars)
			if !ok {
				return nil
			}
			if fact := res.String("memory_request"); res.Bool("is_memory_request") && fact != "" {
				mu.Lock()
				out.memoryFact = fact
				mu.Unlock()
			}
			return nil
		})
	}

	if a.config.SiteRelevance && !allSites(qc) {
		g.Go(func() error {
			res, ok := a.run(gctx, log, prompt.PromptSiteRelevance, qc.ItemType, vars)
			if !ok {
				return nil
			}
			if res.Bool("site_is_irrelevant_to_query") {
				mu.Lock()
				out.irrelevant = true
				out.irrelevantReason = res.String("explanation_for_irrelevance")
				mu.Unlock()
			}
			return nil
		})
	}

	if a.config.RequiredInfo {
		g.Go(func() error {
			res, ok := a.run(gctx, log, prompt.PromptRequiredInfo, qc.ItemType, vars)
			if !ok {
				return nil
			}
			if !res.Bool("required_info_found") {
				mu.Lock()
				out.missingInfo = true
				out.question = res.String("user_question")
				mu.Unlock()
			}
			return nil
		})
	}

	if a.config.AnalyzeQuery {
		g.Go(func() error {
			res, ok := a.run(gctx, log, prompt.PromptAnalyzeQuery, qc.ItemType, vars)
			if ok {
				mu.Lock()
				out.analysis = res
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return "", apperrors.NewQueryCancelledError(qc.Request.QueryID)
	}

	return a.apply(ctx, qc, out, emitter, log), nil
}

func (a *Analyzer) apply(ctx context.Context, qc *models.QueryContext, out outcome, emitter Emitter, log logger.Logger) models.Verdict {
	id := qc.Request.QueryID

	if out.decontextualized != "" && out.decontextualized != qc.Request.Query {
		qc.SetDecontextualizedQuery(out.decontextualized)
		emitter.Emit(ctx, models.NewDecontextualizedQueryEvent(id, out.decontextualized))
	}

	if out.analysis != nil {
		qc.SetAnalysis(out.analysis)
		emitter.Emit(ctx, models.NewQueryAnalysisEvent(id, out.analysis))
	}

	if out.memoryFact != "" {
		qc.AddMemoryItem(out.memoryFact)
		emitter.Emit(ctx, models.NewRememberEvent(id, out.memoryFact))
		a.persist(ctx, models.MemoryFact{
			QueryID:   id,
			Site:      strings.Join(qc.Sites, ","),
			Fact:      out.memoryFact,
			CreatedAt: time.Now().UTC(),
		}, log)
	}

	if out.irrelevant {
		reason := out.irrelevantReason
		if reason == "" {
			reason = "This site does not have information that can answer the question."
		}
		qc.SetSiteRelevance(false, reason)
		emitter.Emit(ctx, models.NewSiteIrrelevantEvent(id, reason))
		log.Info("site judged irrelevant", map[string]interface{}{"sites": qc.Sites})
		return models.VerdictSiteIrrelevant
	}

	if out.missingInfo {
		question := out.question
		if question == "" {
			question = "Could you add more detail about what you are looking for?"
		}
		qc.SetRequiredInfo(false, question)
		emitter.Emit(ctx, models.NewAskUserEvent(id, question))
		log.Info("required information missing", nil)
		return models.VerdictAskUser
	}

	return models.VerdictProceed
}

// run treats a failed or panicking call as "no finding".
func (a *Analyzer) run(ctx context.Context, log logger.Logger, name, itemType string, vars map[string]string) (res prompt.Result, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("analysis call panicked", map[string]interface{}{
				"prompt": name,
				"panic":  fmt.Sprint(p),
			})
			res, ok = nil, false
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	res, err := a.runner.Run(callCtx, name, itemType, vars)
	if err == nil {
		return res, true
	}
	if errors.Is(err, apperrors.ErrTemplateNotFound) {
		log.Debug("no template for item type, check skipped", map[string]interface{}{
			"prompt":   name,
			"itemType": itemType,
		})
		return nil, false
	}
	if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("analysis call failed", map[string]interface{}{
			"prompt": name,
			"error":  err,
		})
	}
	return nil, false
}

// persist hands the fact to the memory hook without blocking the query. The
// hook gets its own deadline so a finished query does not cut it short.
func (a *Analyzer) persist(ctx context.Context, fact models.MemoryFact, log logger.Logger) {
	if a.hook == nil {
		return
	}
	a.hooks.Add(1)
	go func() {
		defer a.hooks.Done()
		defer func() {
			if p := recover(); p != nil {
				log.Error("memory hook panicked", map[string]interface{}{"panic": fmt.Sprint(p)})
			}
		}()
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.MemoryTimeout)
		defer cancel()
		if err := a.hook.Persist(hctx, fact); err != nil {
			log.Warn("memory hook failed", map[string]interface{}{"error": err})
		}
	}()
}

// Close waits for outstanding memory hook calls.
func (a *Analyzer) Close() {
	a.hooks.Wait()
}

func (a *Analyzer) variables(qc *models.QueryContext) map[string]string {
	req := qc.Request
	site := strings.Join(qc.Sites, ", ")
	if site == "" {
		site = "all sites"
	}
	contextDescription := req.ContextDescription
	if contextDescription == "" {
		contextDescription = "none"
	}
	return map[string]string{
		"site.name":                  site,
		"site.itemType":              qc.ItemType,
		"request.rawQuery":           req.Query,
		"request.query":              qc.EffectiveQuery(),
		"request.previousQueries":    prompt.JoinList(req.PrevQueries),
		"request.contextDescription": contextDescription,
		"request.memory":             prompt.JoinList(qc.MemoryItems()),
	}
}

func allSites(qc *models.QueryContext) bool {
	return len(qc.Sites) == 0
}
