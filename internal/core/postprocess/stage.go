package postprocess

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/core/prompt"
	"nlweb-orchestrator/internal/models"
)

type Runner interface {
	Run(ctx context.Context, name, itemType string, vars map[string]string) (prompt.Result, error)
}

type Config struct {
	TopK int
	// MaxAttempts bounds the answer/verify loop of Generate.
	MaxAttempts int
	CallTimeout time.Duration
}

type Request struct {
	QueryID  string
	Query    string
	ItemType string
}

// Output is what a post-processing call produced and which items back it.
type Output struct {
	Text  string
	Items []models.RankedItem
}

type Stage struct {
	runner Runner
	config Config
	logger logger.Logger
}

func NewStage(runner Runner, cfg Config, log logger.Logger) *Stage {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Stage{runner: runner, config: cfg, logger: logger.ForComponent(log, "postprocess")}
}

func (s *Stage) TopK() int {
	return s.config.TopK
}

// Summarize issues one summarization call over the top-K items.
func (s *Stage) Summarize(ctx context.Context, req Request, ranked []models.RankedItem) (*Output, error) {
	items := topK(ranked, s.config.TopK)
	res, err := s.call(ctx, prompt.PromptSummarize, req, map[string]string{
		"site.itemType": req.ItemType,
		"request.query": req.Query,
		"items":         renderItems(items),
	})
	if err != nil {
		return nil, err
	}
	return &Output{Text: res.String("summary"), Items: items}, nil
}

// Generate asks for an answer grounded in the top-K items, has it checked for
// unsupported claims, and re-asks with the reviewer's feedback up to
// MaxAttempts times. The last answer is returned even if never verified.
func (s *Stage) Generate(ctx context.Context, req Request, ranked []models.RankedItem) (*Output, error) {
	items := topK(ranked, s.config.TopK)
	rendered := renderItems(items)
	log := s.logger.With(map[string]interface{}{"queryId": req.QueryID})

	feedback := "none"
	var best *Output
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		res, err := s.call(ctx, prompt.PromptSynthesize, req, map[string]string{
			"request.query": req.Query,
			"items":         rendered,
			"feedback":      feedback,
		})
		if err != nil {
			if best != nil {
				return best, nil
			}
			return nil, err
		}

		answer := res.String("answer")
		best = &Output{Text: answer, Items: supporting(items, res.Strings("urls"))}

		if attempt == s.config.MaxAttempts {
			break
		}
		verdict, err := s.call(ctx, prompt.PromptVerifyAnswer, req, map[string]string{
			"request.query": req.Query,
			"items":         rendered,
			"answer":        answer,
		})
		if err != nil {
			log.Warn("answer verification failed, keeping draft", map[string]interface{}{"error": err})
			break
		}
		if verdict.Bool("supported") {
			break
		}
		feedback = verdict.String("unsupported_claims")
		if feedback == "" {
			feedback = "The draft made claims the items do not support."
		}
		log.Debug("draft answer rejected", map[string]interface{}{
			"attempt":  attempt,
			"feedback": feedback,
		})
	}
	return best, nil
}

func (s *Stage) call(ctx context.Context, name string, req Request, vars map[string]string) (prompt.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
	defer cancel()
	return s.runner.Run(callCtx, name, req.ItemType, vars)
}

func topK(items []models.RankedItem, k int) []models.RankedItem {
	if len(items) > k {
		return items[:k]
	}
	return items
}

func renderItems(items []models.RankedItem) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s (%s): %s\n", i+1, it.Name, it.URL, it.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// supporting keeps the cited items, or all of them when nothing usable was cited.
func supporting(items []models.RankedItem, urls []string) []models.RankedItem {
	if len(urls) == 0 {
		return items
	}
	cited := map[string]bool{}
	for _, u := range urls {
		cited[u] = true
	}
	var out []models.RankedItem
	for _, it := range items {
		if cited[it.URL] {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return items
	}
	return out
}
