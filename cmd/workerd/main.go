// Command workerd runs a worker process: it dials the registry's named
// pipe, registers under an id, and serves the examples/arith handler. A
// real deployment links its own handler struct in place of arith.Handler;
// this binary is the reference wiring for that pattern.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DKorablin/NamedPipesProxy/examples/arith"
	"github.com/DKorablin/NamedPipesProxy/middleware"
	"github.com/DKorablin/NamedPipesProxy/namedpipe"
	"github.com/DKorablin/NamedPipesProxy/rpcconst"
	"github.com/DKorablin/NamedPipesProxy/workerserver"
)

type config struct {
	workerID     string
	registryPipe string
	socketDir    string
	logLevel     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "workerd",
		Short: "workerd — worker process for the named-pipe RPC fabric",
		Long: `workerd dials a registry's named pipe, registers under an id, and
serves its handler's exported methods via reflective dispatch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfg.workerID, "worker-id", envOrDefault("WORKERD_WORKER_ID", ""), "Id this worker registers under (required)")
	root.PersistentFlags().StringVar(&cfg.registryPipe, "registry-pipe", envOrDefault("WORKERD_REGISTRY_PIPE", rpcconst.DefaultRegistryPipeName), "Name of the registry's listening pipe")
	root.PersistentFlags().StringVar(&cfg.socketDir, "socket-dir", envOrDefault("WORKERD_SOCKET_DIR", ""), "Directory backing the Unix-socket factory (unused on Windows, default <os.TempDir()>/namedpipesproxy)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("WORKERD_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func run(ctx context.Context, cfg *config) error {
	if cfg.workerID == "" {
		return fmt.Errorf("worker id is required — set --worker-id or WORKERD_WORKER_ID")
	}

	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	factory := namedpipe.NewOSFactory(cfg.socketDir)
	w, err := workerserver.New(cfg.workerID, cfg.registryPipe, factory, &arith.Handler{},
		workerserver.WithLogger(logger),
		workerserver.WithMiddleware(
			middleware.LoggingMiddleware(logger),
			middleware.TimeoutMiddleware(rpcconst.DefaultCallTimeout),
			middleware.RateLimitMiddleware(200, 50),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to build worker: %w", err)
	}

	logger.Info("starting workerd", zap.String("worker_id", cfg.workerID), zap.String("registry_pipe", cfg.registryPipe))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down workerd")

	stopDone := make(chan error, 1)
	go func() { stopDone <- w.Stop() }()

	select {
	case err := <-stopDone:
		if err != nil {
			logger.Warn("worker stop error", zap.Error(err))
		}
	case <-time.After(rpcconst.WorkerStopGrace + time.Second):
		logger.Warn("worker stop timed out")
	}

	logger.Info("workerd stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
