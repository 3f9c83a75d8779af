package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nlweb-orchestrator/internal/common/config"
	"nlweb-orchestrator/internal/common/database"
	commonhttp "nlweb-orchestrator/internal/common/http"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/core/retrieval"
	"nlweb-orchestrator/internal/providers/retrieval/chromem"
	"nlweb-orchestrator/internal/providers/retrieval/elasticsearch"
	"nlweb-orchestrator/internal/providers/retrieval/qdrant"
)

func (a *App) buildBackends(ctx context.Context, log logger.Logger) ([]retrieval.Registration, error) {
	cfg := a.Config
	var regs []retrieval.Registration
	for _, bc := range cfg.Retrieval.Backends {
		if !bc.Enabled {
			continue
		}
		backend, err := a.buildBackend(ctx, bc, log)
		if err != nil {
			return nil, fmt.Errorf("retrieval backend %s: %w", bc.Name, err)
		}

		reg := retrieval.Registration{
			Backend: backend,
			TopK:    bc.TopK,
			Timeout: config.GetDuration(bc.Timeout),
		}
		if reg.TopK <= 0 {
			reg.TopK = cfg.Retrieval.DefaultTopK
		}
		if reg.Timeout <= 0 {
			reg.Timeout = config.GetDuration(cfg.Retrieval.Timeout)
		}
		if !bc.ServesAll() {
			reg.Sites = bc.Sites
		}
		regs = append(regs, reg)

		a.logger.Info("retrieval backend registered", map[string]interface{}{
			"backend": bc.Name,
			"type":    bc.Type,
			"sites":   strings.Join(bc.Sites, ","),
		})
	}
	return regs, nil
}

func (a *App) buildBackend(ctx context.Context, bc config.BackendConfig, log logger.Logger) (retrieval.Backend, error) {
	switch bc.Type {
	case "elasticsearch":
		es, err := database.NewElasticsearch(a.Config.Database.Elasticsearch, bc.URL)
		if err != nil {
			return nil, err
		}
		err = retryWithBackoff(ctx, a.logger, "elasticsearch connection", 5, time.Second, func() error {
			return es.Ping(ctx)
		})
		if err != nil {
			return nil, err
		}
		b := elasticsearch.New(bc.Name, bc.Index, es.Client, log)
		if err := b.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		a.addCheck("retrieval:"+bc.Name, es.Ping)
		return b, nil

	case "chromem":
		collection := bc.Collection
		if collection == "" {
			collection = "nlweb"
		}
		return chromem.New(chromem.Config{
			Name:        bc.Name,
			Collection:  collection,
			PersistPath: bc.PersistPath,
		}, a.LLM.Embed, log)

	case "qdrant":
		client := commonhttp.NewClient(config.GetDuration(a.Config.Retrieval.Timeout))
		b := qdrant.New(qdrant.Config{
			Name:       bc.Name,
			URL:        bc.URL,
			APIKey:     bc.APIKey,
			Collection: bc.Collection,
		}, client, a.LLM, log)
		// the collection is sized from a probe embedding; without the model
		// it must already exist
		if probe, err := a.LLM.Embed(ctx, "dimension probe"); err == nil {
			if err := b.EnsureCollection(ctx, len(probe)); err != nil {
				return nil, err
			}
		} else {
			a.logger.Warn("could not size qdrant collection", map[string]interface{}{"backend": bc.Name, "error": err})
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend type %q", bc.Type)
}
