// cmd/nlweb-admin/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nlweb-orchestrator/internal/bootstrap"
	"nlweb-orchestrator/internal/common/config"
	"nlweb-orchestrator/internal/common/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "nlweb-admin",
	Short:         "Operate an NLWeb query engine from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: configs/config.yaml plus environment overlay)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	rootCmd.AddCommand(askCmd, loadCmd, deleteCmd, sitesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openApp builds the retrieval layer, plus the query engine when engine is set.
func openApp(ctx context.Context, engine bool) (*bootstrap.App, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	log := logger.NewZapAdapter(logger.NewWithOptions(logger.Options{
		Level:  logLevel,
		Format: "console",
		Output: "stderr",
	}))
	if engine {
		return bootstrap.Build(ctx, cfg, log, nil)
	}
	return bootstrap.BuildRetrieval(ctx, cfg, log)
}
