package ranking

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/metrics"
	"nlweb-orchestrator/internal/core/prompt"
	"nlweb-orchestrator/internal/models"
)

type Runner interface {
	Run(ctx context.Context, name, itemType string, vars map[string]string) (prompt.Result, error)
}

type Config struct {
	MaxConcurrent int
	CallTimeout   time.Duration
}

// Request carries what every ranking call for one query shares.
type Request struct {
	QueryID  string
	Query    string
	ItemType string
	Memory   []string
}

// Engine scores candidates with one model call each, never more than
// MaxConcurrent at a time.
type Engine struct {
	runner Runner
	cache  Cache
	config Config
	logger logger.Logger
}

// NewEngine builds an Engine. cache may be nil.
func NewEngine(runner Runner, cache Cache, cfg Config, log logger.Logger) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 8 * time.Second
	}
	return &Engine{
		runner: runner,
		cache:  cache,
		config: cfg,
		logger: logger.ForComponent(log, "ranking"),
	}
}

// Rank emits each RankedItem as soon as its call succeeds, in completion
// order. Failed calls drop their candidate. The channel closes once every
// admitted call has finished; the caller must drain it or cancel ctx. After
// ctx is cancelled no new calls are admitted and nothing more is sent.
func (e *Engine) Rank(ctx context.Context, req Request, candidates []models.CandidateItem) <-chan models.RankedItem {
	out := make(chan models.RankedItem)
	log := e.logger.With(map[string]interface{}{"queryId": req.QueryID})
	memory := prompt.JoinList(req.Memory)

	go func() {
		defer close(out)
		start := time.Now()

		var g errgroup.Group
		g.SetLimit(e.config.MaxConcurrent)

		dispatched := 0
		for _, c := range candidates {
			if ctx.Err() != nil {
				break
			}
			// Go blocks until a slot is free.
			g.Go(func() error {
				defer func() {
					if p := recover(); p != nil {
						log.Error("ranking call panicked, candidate dropped", map[string]interface{}{
							"url":   c.URL,
							"panic": fmt.Sprint(p),
						})
					}
				}()
				if ctx.Err() != nil {
					return nil
				}
				item, ok := e.rankOne(ctx, log, req, memory, c)
				if !ok || ctx.Err() != nil {
					return nil
				}
				select {
				case out <- item:
				case <-ctx.Done():
				}
				return nil
			})
			dispatched++
		}
		_ = g.Wait()

		log.Debug("ranking finished", map[string]interface{}{
			"candidates": len(candidates),
			"dispatched": dispatched,
			"duration":   time.Since(start).String(),
		})
	}()

	return out
}

func (e *Engine) rankOne(ctx context.Context, log logger.Logger, req Request, memory string, c models.CandidateItem) (models.RankedItem, bool) {
	description := c.Description()
	key := CacheKey(prompt.PromptRanking+"@"+req.ItemType, req.Query, memory, description)

	if e.cache != nil {
		if hit, ok := e.cache.Get(ctx, key); ok {
			return models.RankedItem{CandidateItem: c, Score: hit.Score, Description: hit.Description}, true
		}
	}

	metrics.RankingInFlight.Inc()
	defer metrics.RankingInFlight.Dec()

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	res, err := e.runner.Run(callCtx, prompt.PromptRanking, req.ItemType, map[string]string{
		"site.itemType":    req.ItemType,
		"request.query":    req.Query,
		"request.memory":   memory,
		"item.description": description,
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("ranking call failed, candidate dropped", map[string]interface{}{
				"url":   c.URL,
				"error": err,
			})
		}
		return models.RankedItem{}, false
	}

	score, ok := res.Int("score")
	if !ok {
		log.Warn("ranking call returned no usable score", map[string]interface{}{"url": c.URL})
		return models.RankedItem{}, false
	}
	score = clamp(score)
	desc := cleanDescription(res.String("description"), req.Query)

	if e.cache != nil {
		e.cache.Set(ctx, key, Entry{Score: score, Description: desc})
	}
	return models.RankedItem{CandidateItem: c, Score: score, Description: desc}, true
}

var scoreMention = regexp.MustCompile(`(?i)\bscored?\s*(of|is|:|=)?\s*\d+|\b\d{1,3}\s*(/|out of)\s*100\b`)

// cleanDescription blanks a description that repeats the query or reports the
// score; the user already sees both. Single-word queries are exempt from the
// echo check since the word naturally names the item.
func cleanDescription(desc, query string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if strings.Contains(q, " ") && strings.Contains(strings.ToLower(desc), q) {
		return ""
	}
	if scoreMention.MatchString(desc) {
		return ""
	}
	return desc
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
