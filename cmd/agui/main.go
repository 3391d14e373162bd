// Package main provides the CLI entry point for the AGUI agent execution
// engine.
//
// # Basic Usage
//
// Start the server:
//
//	agui serve --config agui.yaml
//
// # Environment Variables
//
//   - AGUI_CONFIG: Path to configuration file
//   - AGUI_ADDR: HTTP listen address override
//   - AGUI_DATABASE_DSN: Postgres DSN; empty keeps all state in memory
//   - OPENAI_API_KEY: API key for the OpenAI provider
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/agui/internal/backoff"
	"github.com/haasonsaas/agui/internal/config"
	"github.com/haasonsaas/agui/internal/engine"
	"github.com/haasonsaas/agui/internal/llm"
	"github.com/haasonsaas/agui/internal/observability"
	"github.com/haasonsaas/agui/internal/ratelimit"
	"github.com/haasonsaas/agui/internal/server"
	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/internal/tools"
	"github.com/haasonsaas/agui/pkg/models"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "agui",
		Short: "AGUI agent execution engine",
		Long:  "AGUI runs agent jobs through a policy-enforced, cached, audited execution pipeline.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("AGUI_CONFIG"), "path to configuration file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agui %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the execution engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Log)

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return fmt.Errorf("register builtin tools: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, shutdownTracer, err := observability.NewTracer(ctx, cfg.Trace)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	eng := engine.New(stores, client, registry, engine.Config{
		CacheTTLHours: cfg.Cache.TTLHours,
		Retention: map[models.Tier]int{
			models.TierFree:       cfg.Retention.FreeDays,
			models.TierPro:        cfg.Retention.ProDays,
			models.TierEnterprise: cfg.Retention.EnterpriseDays,
		},
		RetentionInterval: cfg.Retention.SweepInterval,
		RateLimiter: ratelimit.Config{
			MemoryTTL:       cfg.RateLimit.MemoryTTL,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		},
		LLM: resilientConfig(cfg.LLM),
	}, metrics, tracer, logger)
	eng.Start()
	defer eng.Close()

	srv := server.New(eng, promRegistry, server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// resilientConfig maps the LLM retry knobs onto the client's retry policy.
func resilientConfig(cfg config.LLMConfig) llm.ResilientConfig {
	return llm.ResilientConfig{
		MaxRetries: cfg.MaxRetries,
		Policy: backoff.Policy{
			Initial: cfg.BaseDelay,
			Max:     30 * time.Second,
			Factor:  2,
		},
	}
}

func openStores(cfg *config.Config) (storage.StoreSet, error) {
	if cfg.Database.DSN == "" {
		return storage.NewMemoryStores(), nil
	}
	pg := storage.DefaultPostgresConfig()
	if cfg.Database.MaxOpenConns > 0 {
		pg.MaxOpenConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns > 0 {
		pg.MaxIdleConns = cfg.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return storage.NewPostgresStoresFromDSN(cfg.Database.DSN, pg)
}

func newClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model), nil
	case "mock":
		return llm.NewScripted(llm.DecisionStep(models.AgentDecision{
			ActionType:  models.ActionFinalAnswer,
			Status:      models.StatusComplete,
			FinalAnswer: "mock provider response",
		}, 10)), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
