// cmd/nlweb-server/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nlweb-orchestrator/internal/bootstrap"
	"nlweb-orchestrator/internal/common/camunda"
	"nlweb-orchestrator/internal/common/config"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/observability"
	"nlweb-orchestrator/internal/server"
	ask "nlweb-orchestrator/internal/workers/nlweb/ask-nlweb"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: configs/config.yaml plus environment overlay)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting nlweb server...", zap.String("version", cfg.App.Version), zap.String("environment", cfg.App.Environment))

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.Build(ctx, cfg, log, obs)
	if err != nil {
		zapLog.Fatal("failed to build query engine", zap.Error(err))
	}

	checks := make(map[string]server.Check, len(app.Checks)+1)
	for name, c := range app.Checks {
		checks[name] = server.Check(c)
	}

	// --- Zeebe job worker ---
	var (
		zeebe  *camunda.Client
		worker *camunda.CamundaWorker
	)
	if config.IsWorkerEnabled(cfg, ask.TaskType) {
		zeebe, err = camunda.Connect(ctx, cfg.Camunda)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		checks["zeebe"] = zeebe.HealthCheck
		zapLog.Info("Zeebe client connected successfully")

		wcfg := config.GetWorkerConfig(cfg, ask.TaskType)
		handler := ask.NewHandler(&ask.Config{
			Timeout:    config.GetDuration(wcfg.Timeout),
			MaxResults: cfg.Ranking.MaxResults,
		}, app.Orchestrator, &askLoggerAdapter{log}).WithRecorder(obs)

		worker = camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      ask.TaskType,
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, handler, zapLog)
		worker.Start()
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", ask.TaskType))
	}

	// --- HTTP, SSE, MCP, health and metrics ---
	srv := server.New(app.Orchestrator, app.FanOut, server.Options{
		Address:         cfg.Server.Address,
		EnableCORS:      cfg.Server.EnableCORS,
		Heartbeat:       config.GetDuration(cfg.Server.HeartbeatInterval),
		ShutdownTimeout: config.GetDuration(cfg.Server.ShutdownTimeout),
		Version:         cfg.App.Version,
		Checks:          checks,
	}, log)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, stopping...")
	case err := <-serveErr:
		if err != nil {
			zapLog.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout)+5*time.Second)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping http server", zap.Error(err))
	}
	if worker != nil {
		worker.Stop(shutdownCtx)
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	cancel()
	if err := app.Close(); err != nil {
		zapLog.Error("Error releasing resources", zap.Error(err))
	}

	zapLog.Info("nlweb server stopped gracefully")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// askLoggerAdapter satisfies the job worker's own Logger interface.
type askLoggerAdapter struct {
	logger.Logger
}

func (a *askLoggerAdapter) With(fields map[string]interface{}) ask.Logger {
	return &askLoggerAdapter{a.Logger.With(fields)}
}
