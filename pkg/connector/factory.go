// pkg/connector/factory.go
package connector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/config"
)

// ConnectorFactory creates database connectors
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateDuckDBConnector creates the query engine connector
func (f *ConnectorFactory) CreateDuckDBConnector(ctx context.Context) (*DuckDBConnector, error) {
	f.logger.Info("Creating DuckDB connector")

	connector, err := NewDuckDBConnector(ctx, f.cfg.DuckDB, f.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	return connector, nil
}

// CreatePostgresConnector creates the audit trail connector
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	f.logger.Info("Creating PostgreSQL connector")

	connector, err := NewPostgresConnector(ctx, f.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}

	return connector, nil
}

// CreateAllConnectors creates the DuckDB connector and, when the audit trail
// is enabled, the PostgreSQL connector. The second result is nil otherwise.
func (f *ConnectorFactory) CreateAllConnectors(ctx context.Context) (*DuckDBConnector, *PostgresConnector, error) {
	duckConn, err := f.CreateDuckDBConnector(ctx)
	if err != nil {
		return nil, nil, err
	}

	if !f.cfg.AuditEnabled {
		return duckConn, nil, nil
	}

	pgConn, err := f.CreatePostgresConnector(ctx)
	if err != nil {
		duckConn.Close() // Clean up the DuckDB connection if PostgreSQL fails
		return nil, nil, err
	}

	return duckConn, pgConn, nil
}
