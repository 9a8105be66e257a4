package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/audit"
	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/connector"
	"github.com/David-Botos/parquet-editor/pkg/editor"
	"github.com/David-Botos/parquet-editor/pkg/engine"
	"github.com/David-Botos/parquet-editor/pkg/locator"
	"github.com/David-Botos/parquet-editor/pkg/logging"
)

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	duckdb   *connector.DuckDBConnector
	postgres *connector.PostgresConnector
	store    *locator.ObjectStore
	recorder *audit.Recorder
	svc      *editor.Service

	restoreLogger func()
}

// newApp loads configuration and connects every component
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, restore, err := logging.Install(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:           cfg,
		logger:        logger,
		registry:      prometheus.NewRegistry(),
		restoreLogger: restore,
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := connector.NewConnectorFactory(cfg, logger)
	a.duckdb, a.postgres, err = factory.CreateAllConnectors(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []editor.Option{editor.WithMetrics(editor.NewMetrics(a.registry))}
	if a.postgres != nil {
		a.recorder, err = audit.NewRecorder(ctx, a.postgres.DB(), cfg.AuditTable, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, editor.WithAuditor(a.recorder))
	}

	a.store = locator.NewObjectStore(cfg.Storage, logger)
	eng := engine.NewDuckDB(a.duckdb, cfg.QueryTimeout, logger)
	a.svc = editor.NewService(cfg, eng, a.store, logger, opts...)

	logger.Info("Editor ready",
		zap.String("outputDir", cfg.OutputDir),
		zap.Bool("audit", cfg.AuditEnabled),
		zap.Bool("verifyOutput", cfg.VerifyOutput))
	return a, nil
}

// pruneSessions closes idle sessions until ctx is done
func (a *app) pruneSessions(ctx context.Context) {
	if a.cfg.SessionIdleTimeout <= 0 {
		return
	}
	interval := a.cfg.SessionIdleTimeout / 4
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.svc.PruneSessions(a.cfg.SessionIdleTimeout)
		}
	}
}

// Close releases every connection
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close object store", zap.Error(err))
		}
	}
	if a.postgres != nil {
		if err := a.postgres.Close(); err != nil {
			a.logger.Warn("Failed to close PostgreSQL connection", zap.Error(err))
		}
	}
	if a.duckdb != nil {
		if err := a.duckdb.Close(); err != nil {
			a.logger.Warn("Failed to close DuckDB connection", zap.Error(err))
		}
	}
	if a.restoreLogger != nil {
		a.restoreLogger()
	}
}
