// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	// Engine and storage connections
	DuckDB   *DuckDBConfig
	Storage  *StorageConfig
	Postgres *PostgresConfig // nil unless the audit trail is enabled

	// Editor settings
	PageSize     int           // Default rows per page
	MaxPageSize  int           // Upper bound for a requested page
	OutputDir    string        // Directory for default output paths
	QueryTimeout time.Duration // Timeout applied to every engine query
	Compression  string        // Parquet codec used for rewrites
	VerifyOutput bool          // Verify row count of local outputs after commit
	AuditEnabled bool
	AuditTable   string

	// Sessions idle for longer than this are closed
	SessionIdleTimeout time.Duration

	// Server
	HTTPAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from an optional .env file and environment variables
func LoadConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := &Config{
		// Default values
		PageSize:     getEnvAsInt("PAGE_SIZE", 10000),
		MaxPageSize:  getEnvAsInt("MAX_PAGE_SIZE", 100000),
		OutputDir:    getEnv("OUTPUT_DIR", os.TempDir()),
		QueryTimeout: time.Duration(getEnvAsInt("QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
		Compression:  strings.ToLower(getEnv("PARQUET_COMPRESSION", "snappy")),
		VerifyOutput: getEnvAsBool("VERIFY_OUTPUT", true),
		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", false),
		AuditTable:   getEnv("AUDIT_TABLE", "edit_audit"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":5001"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
	}
	cfg.SessionIdleTimeout = time.Duration(getEnvAsInt("SESSION_IDLE_MINUTES", 720)) * time.Minute

	cfg.DuckDB = LoadDuckDBConfig()
	cfg.Storage = LoadStorageConfig()

	if cfg.AuditEnabled {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
		}
		cfg.Postgres = pgConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.DuckDB == nil {
		return errors.New("duckdb configuration is required")
	}

	if c.Storage == nil {
		return errors.New("storage configuration is required")
	}

	if c.AuditEnabled && c.Postgres == nil {
		return errors.New("postgreSQL configuration is required when the audit trail is enabled")
	}

	if c.PageSize <= 0 {
		return errors.New("page size must be positive")
	}

	if c.MaxPageSize < c.PageSize {
		return errors.New("max page size cannot be smaller than page size")
	}

	if c.QueryTimeout <= 0 {
		return errors.New("query timeout must be positive")
	}

	if c.OutputDir == "" {
		return errors.New("output directory is required")
	}

	if _, ok := ParquetCodec(c.Compression); !ok {
		return fmt.Errorf("unsupported parquet compression %q", c.Compression)
	}

	return c.Storage.Validate()
}

// ParquetCodecs lists the compression codecs rewrites can write with
var ParquetCodecs = []string{"snappy", "zstd", "gzip", "brotli", "lz4", "uncompressed"}

// ParquetCodec returns the canonical name of a supported codec, matched case-insensitively
func ParquetCodec(name string) (string, bool) {
	for _, codec := range ParquetCodecs {
		if strings.EqualFold(codec, name) {
			return codec, true
		}
	}
	return "", false
}

// Summary returns the effective settings without credentials
func (c *Config) Summary() map[string]interface{} {
	summary := map[string]interface{}{
		"page_size":            c.PageSize,
		"max_page_size":        c.MaxPageSize,
		"output_dir":           c.OutputDir,
		"query_timeout":        c.QueryTimeout.String(),
		"compression":          c.Compression,
		"verify_output":        c.VerifyOutput,
		"audit_enabled":        c.AuditEnabled,
		"session_idle_timeout": c.SessionIdleTimeout.String(),
	}
	if c.DuckDB != nil {
		summary["duckdb_path"] = c.DuckDB.Path
		summary["duckdb_threads"] = c.DuckDB.Threads
		summary["duckdb_memory_limit"] = c.DuckDB.MemoryLimit
	}
	if c.Storage != nil {
		summary["s3_region"] = c.Storage.S3Region
		summary["s3_endpoint"] = c.Storage.S3Endpoint
		summary["s3_credentials"] = c.Storage.HasS3Credentials()
		summary["gcs_credentials"] = c.Storage.HasGCSCredentials()
	}
	return summary
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
