// Command comptrack runs the completions tracking HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"comptrack/internal/adapters/export"
	"comptrack/internal/adapters/httpapi"
	"comptrack/internal/adapters/importer"
	"comptrack/internal/blob"
	"comptrack/internal/config"
	"comptrack/internal/core"
	"comptrack/internal/infra/persistence/memory"
	"comptrack/internal/infra/persistence/postgres"
	"comptrack/internal/infra/persistence/sqlite"
	"comptrack/internal/insight"
	"comptrack/internal/session"
	"comptrack/pkg/domain"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "comptrack:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := core.NewPrometheusMetrics(registry)

	svc := core.NewService(store, log, metrics)

	strategy := insight.SelectStrategy(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel)
	responder := insight.NewResponder(store, svc, strategy, metrics, log)
	imp := importer.New(store, archive, metrics, log)
	exp := export.New(store, metrics, log)

	tokens, err := session.ParseTokenTable(cfg.APITokens)
	if err != nil {
		return fmt.Errorf("parse api tokens: %w", err)
	}
	auth := session.NewStaticAuthenticator(tokens)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", httpapi.New(svc, responder, imp, exp, auth, log).Routes())
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreDriver),
			zap.String("blob", string(archive.Driver())),
			zap.String("insight_mode", responder.Mode()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func openStore(ctx context.Context, cfg config.Config) (domain.PersistentStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.NewStore(), func() {}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case config.StorePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %s", cfg.StoreDriver)
	}
}
