package bootstrap

import (
	"context"
	"time"

	awsclient "nlweb-orchestrator/internal/common/aws"
	"nlweb-orchestrator/internal/common/database"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/core/analyzer"
	"nlweb-orchestrator/internal/providers/memory"
	memnats "nlweb-orchestrator/internal/providers/memory/nats"
	mempg "nlweb-orchestrator/internal/providers/memory/postgres"
	memsns "nlweb-orchestrator/internal/providers/memory/sns"
)

// connectRedis returns the shared Redis client, or nil when none is
// configured or it cannot be reached. Redis only backs a cache tier, so an
// outage degrades to the in-process tier instead of failing startup.
func (a *App) connectRedis() (*database.RedisClient, error) {
	rc := a.Config.Database.Redis
	if rc.Address == "" {
		return nil, nil
	}
	rdb, err := database.NewRedis(rc)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := retryWithBackoff(ctx, a.logger, "redis connection", 3, 500*time.Millisecond, func() error {
		return rdb.Ping(ctx)
	}); err != nil {
		a.logger.Warn("redis unavailable, ranking cache stays in-process", map[string]interface{}{"error": err})
		_ = rdb.Close()
		return nil, nil
	}
	a.onClose("redis", rdb.Close)
	a.addCheck("redis", rdb.Ping)
	return rdb, nil
}

// buildMemory returns the hook every remembered fact goes to, or nil when no
// sink is enabled.
func (a *App) buildMemory(ctx context.Context, log logger.Logger) (analyzer.MemoryHook, error) {
	mc := a.Config.Memory
	hooks := memory.NewMulti()

	if mc.Postgres.Enabled {
		pg, err := database.NewPostgres(a.Config.Database.Postgres)
		if err != nil {
			return nil, err
		}
		if err := retryWithBackoff(ctx, a.logger, "postgres connection", 5, time.Second, func() error {
			return pg.Ping(ctx)
		}); err != nil {
			_ = pg.Close()
			return nil, err
		}
		a.onClose("postgres", pg.Close)
		a.addCheck("postgres", pg.Ping)

		table := mc.Postgres.Table
		if table == "" {
			table = "query_memory"
		}
		store, err := mempg.New(pg.GetDB(), table)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		hooks.Add("postgres", store)
	}

	if mc.NATS.Enabled {
		pub, err := memnats.Connect(ctx, memnats.Config{
			URL:     mc.NATS.URL,
			Stream:  mc.NATS.Stream,
			Subject: mc.NATS.Subject,
		}, log)
		if err != nil {
			return nil, err
		}
		a.onClose("nats", func() error { pub.Close(); return nil })
		hooks.Add("nats", pub)
	}

	if mc.SNS.Enabled {
		client, err := awsclient.NewSNSClient(ctx, mc.SNS.Region)
		if err != nil {
			return nil, err
		}
		notifier, err := memsns.New(client, mc.SNS.TopicARN, log)
		if err != nil {
			return nil, err
		}
		hooks.Add("sns", notifier)
	}

	if hooks.Len() == 0 {
		return nil, nil
	}
	a.logger.Info("memory hooks enabled", map[string]interface{}{"count": hooks.Len()})
	return hooks, nil
}

