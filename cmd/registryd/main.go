// Command registryd runs the registry process: it listens on the fabric's
// named pipe, accepts worker connections, and demultiplexes calls issued
// against them. It exposes no application interface itself — embedding
// applications drive registryserver.Server directly; this binary exists
// to prove the registry side starts, serves, and shuts down cleanly on
// its own.
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

	"github.com/DKorablin/NamedPipesProxy/namedpipe"
	"github.com/DKorablin/NamedPipesProxy/registryserver"
	"github.com/DKorablin/NamedPipesProxy/rpcconst"
	"github.com/DKorablin/NamedPipesProxy/workerregistry"
)

type config struct {
	pipeName      string
	socketDir     string
	logLevel      string
	callTimeout   time.Duration
	etcdEndpoints string
	etcdTTL       int64
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
		Use:   "registryd",
		Short: "registryd — registry process for the named-pipe RPC fabric",
		Long: `registryd listens on a named pipe (or Unix domain socket on
platforms without native named pipes), accepts worker connections, and
demultiplexes outbound calls issued against them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfg.pipeName, "pipe-name", envOrDefault("REGISTRYD_PIPE_NAME", rpcconst.DefaultRegistryPipeName), "Name the registry listens under")
	root.PersistentFlags().StringVar(&cfg.socketDir, "socket-dir", envOrDefault("REGISTRYD_SOCKET_DIR", ""), "Directory backing the Unix-socket factory (unused on Windows, default <os.TempDir()>/namedpipesproxy)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("REGISTRYD_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().DurationVar(&cfg.callTimeout, "call-timeout", envDurationOrDefault("REGISTRYD_CALL_TIMEOUT", rpcconst.DefaultCallTimeout), "Per-call timeout for outbound requests to workers")
	root.PersistentFlags().StringVar(&cfg.etcdEndpoints, "etcd-endpoints", envOrDefault("REGISTRYD_ETCD_ENDPOINTS", ""), "Comma-separated etcd endpoints for the observational worker-set mirror (empty = disabled)")
	root.PersistentFlags().Int64Var(&cfg.etcdTTL, "etcd-ttl-seconds", 30, "Lease TTL in seconds for the etcd worker-set mirror")

	return root
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []workerregistry.Option
	var mirror *workerregistry.EtcdMirror
	if cfg.etcdEndpoints != "" {
		mirror, err = workerregistry.NewEtcdMirror(splitCSV(cfg.etcdEndpoints), cfg.etcdTTL, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to etcd: %w", err)
		}
		defer mirror.Close()
		opts = append(opts, workerregistry.WithHooks(mirror.Hooks()))
	}

	registry := workerregistry.New(logger, opts...)
	factory := namedpipe.NewOSFactory(cfg.socketDir)
	srv := registryserver.New(cfg.pipeName, factory, registry,
		registryserver.WithLogger(logger),
		registryserver.WithCallTimeout(cfg.callTimeout),
	)

	logger.Info("starting registryd",
		zap.String("pipe_name", cfg.pipeName),
		zap.Duration("call_timeout", cfg.callTimeout),
		zap.Bool("etcd_mirror", mirror != nil),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down registryd")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("registry serve error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), rpcconst.RegistryStopGrace+time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("registry shutdown error", zap.Error(err))
	}

	logger.Info("registryd stopped")
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

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
