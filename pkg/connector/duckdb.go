// pkg/connector/duckdb.go
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/David-Botos/parquet-editor/pkg/config"
	"github.com/David-Botos/parquet-editor/pkg/quote"
)

// DuckDBConnector implements the DatabaseConnector interface for the embedded DuckDB engine
type DuckDBConnector struct {
	db      *sql.DB
	logger  *zap.Logger
	cfg     *config.DuckDBConfig
	storage *config.StorageConfig
}

// NewDuckDBConnector opens the engine and registers object storage secrets
func NewDuckDBConnector(ctx context.Context, cfg *config.DuckDBConfig, storage *config.StorageConfig) (*DuckDBConnector, error) {
	logger := zap.L().Named("duckdb-connector")

	name := cfg.Path
	if name == "" {
		name = ":memory:"
	}
	logger.Info("Opening DuckDB",
		zap.String("database", name),
		zap.Int("threads", cfg.Threads),
		zap.String("memoryLimit", cfg.MemoryLimit))

	db, err := sql.Open("duckdb", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}

	// Configure connection pool
	ApplyConnectionSettings(
		db,
		cfg.MaxOpenConns,
		cfg.MaxIdleConns,
		cfg.ConnMaxLifetime,
		cfg.ConnMaxIdleTime,
	)

	// Verify connection
	if err := PingWithTimeout(ctx, db, 10*time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	connector := &DuckDBConnector{
		db:      db,
		logger:  logger,
		cfg:     cfg,
		storage: storage,
	}

	if err := connector.applySettings(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if storage != nil {
		if err := connector.registerSecrets(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	LogConnectionStats(logger, name, db)
	return connector, nil
}

// DB returns the underlying database connection
func (c *DuckDBConnector) DB() *sql.DB {
	return c.db
}

// Validate verifies the engine responds and reports its version
func (c *DuckDBConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query DuckDB version: %w", err)
	}
	c.logger.Info("Connected to DuckDB", zap.String("version", version))
	return nil
}

// Close closes the database connection
func (c *DuckDBConnector) Close() error {
	c.logger.Info("Closing DuckDB")
	LogConnectionStats(c.logger, "duckdb", c.db)
	return c.db.Close()
}

// ExecWithTimeout executes a statement with a timeout
func (c *DuckDBConnector) ExecWithTimeout(
	ctx context.Context,
	query string,
	timeout time.Duration,
	args ...interface{},
) (sql.Result, error) {
	return execWithTimeout(ctx, c.db, query, timeout, args...)
}

// applySettings sets engine-wide resource limits
func (c *DuckDBConnector) applySettings(ctx context.Context) error {
	if c.cfg.Threads > 0 {
		if _, err := c.ExecWithTimeout(ctx, fmt.Sprintf("SET threads = %d", c.cfg.Threads), 10*time.Second); err != nil {
			return fmt.Errorf("failed to set threads: %w", err)
		}
	}

	if c.cfg.MemoryLimit != "" {
		limit, err := quote.String(c.cfg.MemoryLimit)
		if err != nil {
			return fmt.Errorf("invalid memory limit: %w", err)
		}
		if _, err := c.ExecWithTimeout(ctx, "SET memory_limit = "+limit, 10*time.Second); err != nil {
			return fmt.Errorf("failed to set memory limit: %w", err)
		}
	}

	return nil
}

// registerSecrets loads httpfs and registers credentials for S3 and GCS
func (c *DuckDBConnector) registerSecrets(ctx context.Context) error {
	statements := make(map[string]string)

	if c.storage.HasS3Credentials() {
		stmt, err := buildSecret("s3_default", "s3", [][2]string{
			{"KEY_ID", c.storage.S3AccessKeyID},
			{"SECRET", c.storage.S3SecretAccessKey},
			{"SESSION_TOKEN", c.storage.S3SessionToken},
			{"REGION", c.storage.S3Region},
			{"ENDPOINT", c.storage.S3Endpoint},
			{"URL_STYLE", c.storage.S3URLStyle},
		}, !c.storage.S3UseSSL)
		if err != nil {
			return err
		}
		statements["s3"] = stmt
	}

	if c.storage.HasGCSCredentials() {
		stmt, err := buildSecret("gcs_default", "gcs", [][2]string{
			{"KEY_ID", c.storage.GCSHMACKeyID},
			{"SECRET", c.storage.GCSHMACSecret},
		}, false)
		if err != nil {
			return err
		}
		statements["gcs"] = stmt
	}

	if len(statements) == 0 {
		return nil
	}

	for _, stmt := range []string{"INSTALL httpfs", "LOAD httpfs"} {
		if _, err := c.ExecWithTimeout(ctx, stmt, time.Minute); err != nil {
			return fmt.Errorf("failed to %s: %w", strings.ToLower(stmt), err)
		}
	}

	for provider, stmt := range statements {
		if _, err := c.ExecWithTimeout(ctx, stmt, 10*time.Second); err != nil {
			return fmt.Errorf("failed to register %s secret: %w", provider, err)
		}
		c.logger.Info("Registered object storage secret", zap.String("provider", provider))
	}

	return nil
}

// buildSecret renders CREATE OR REPLACE SECRET with escaped parameter values
func buildSecret(name, secretType string, params [][2]string, disableSSL bool) (string, error) {
	parts := []string{"TYPE " + secretType}
	for _, param := range params {
		if param[1] == "" {
			continue
		}
		value, err := quote.String(param[1])
		if err != nil {
			return "", fmt.Errorf("invalid %s for %s secret: %w", strings.ToLower(param[0]), secretType, err)
		}
		parts = append(parts, param[0]+" "+value)
	}
	if disableSSL {
		parts = append(parts, "USE_SSL false")
	}
	return fmt.Sprintf("CREATE OR REPLACE SECRET %s (%s)", name, strings.Join(parts, ", ")), nil
}
