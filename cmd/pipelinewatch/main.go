package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"pipelinewatch/internal/api"
	"pipelinewatch/internal/archive"
	"pipelinewatch/internal/config"
	"pipelinewatch/internal/failure"
	"pipelinewatch/internal/resolver"
	"pipelinewatch/internal/watcher"
)

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "pipelinewatch",
		Short: "Reap finished pipeline jobs and report failed ones to the task service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "namespace whose jobs are watched")
	flags.StringVar(&cfg.Kubeconfig, "kubeconfig", cfg.Kubeconfig, "kubeconfig used outside the cluster")
	flags.StringVar(&cfg.ResolverMode, "resolver", cfg.ResolverMode, "resource resolver: item or graph")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for /healthz, /readyz and /metrics")
	flags.BoolVar(&cfg.Diagnostic, "diagnostic", cfg.Diagnostic, "stop on the first per-event error")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	restCfg, err := kubeConfig(cfg.Kubeconfig)
	if err != nil {
		logger.Error("load cluster credentials", "error", err)
		return err
	}
	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		logger.Error("create cluster client", "error", err)
		return err
	}

	resolvers, err := resolver.NewFactory(cfg)
	if err != nil {
		logger.Error("select resolver", "error", err)
		return err
	}
	arch, err := archive.New(ctx, cfg)
	if err != nil {
		logger.Error("init failure archive", "error", err)
		return err
	}
	var archiver failure.Archiver
	if arch != nil {
		archiver = arch
	}

	failures := failure.NewFactory(cfg, resolvers, archiver, logger)
	w := watcher.New(cfg, client, failures, logger)

	srv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: api.New(cfg, w).Router(),
	}
	go func() {
		logger.Info("ops server listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("pipeline watcher started",
		"namespace", cfg.Namespace,
		"resolver", cfg.ResolverMode,
		"archive", cfg.ArchiveDestination,
		"env", cfg.Env,
	)
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("pipeline watcher stopped")
		return nil
	}
	logger.Error("pipeline watcher stopped", "error", err)
	return err
}

// kubeConfig prefers in-cluster credentials and falls back to a kubeconfig file.
func kubeConfig(path string) (*rest.Config, error) {
	if c, err := rest.InClusterConfig(); err == nil {
		return c, nil
	}
	if path == "" {
		path = clientcmd.RecommendedHomeFile
	}
	c, err := clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, fmt.Errorf("build kubeconfig from %s: %w", path, err)
	}
	return c, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
