// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// DuckDBConfig holds the embedded query engine settings
type DuckDBConfig struct {
	Path        string // Database file; empty means in-memory
	Threads     int    // 0 leaves the engine default
	MemoryLimit string // e.g. "4GB"; empty leaves the engine default

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// StorageConfig holds object storage credentials for remote files
type StorageConfig struct {
	// S3
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
	S3Endpoint        string // Custom endpoint (MinIO etc.), host[:port]
	S3URLStyle        string // "vhost" or "path"
	S3UseSSL          bool

	// GCS
	GCSHMACKeyID       string // HMAC key used by the engine
	GCSHMACSecret      string
	GCSCredentialsFile string // Service account used for existence checks
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Statement timeout
	StatementTimeout time.Duration
}

// LoadDuckDBConfig loads engine configuration from environment variables
func LoadDuckDBConfig() *DuckDBConfig {
	return &DuckDBConfig{
		Path:        getEnv("DUCKDB_PATH", ""),
		Threads:     getEnvAsInt("DUCKDB_THREADS", 0),
		MemoryLimit: getEnv("DUCKDB_MEMORY_LIMIT", ""),

		MaxOpenConns:    getEnvAsInt("DUCKDB_MAX_OPEN_CONNS", 8),
		MaxIdleConns:    getEnvAsInt("DUCKDB_MAX_IDLE_CONNS", 4),
		ConnMaxLifetime: time.Duration(getEnvAsInt("DUCKDB_CONN_MAX_LIFETIME_SECONDS", 0)) * time.Second,
		ConnMaxIdleTime: time.Duration(getEnvAsInt("DUCKDB_CONN_MAX_IDLE_TIME_SECONDS", 0)) * time.Second,
	}
}

// LoadStorageConfig loads object storage credentials from environment variables
func LoadStorageConfig() *StorageConfig {
	return &StorageConfig{
		S3Region:          getEnv("S3_REGION", getEnv("AWS_REGION", "us-east-1")),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", os.Getenv("AWS_ACCESS_KEY_ID")),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", os.Getenv("AWS_SECRET_ACCESS_KEY")),
		S3SessionToken:    getEnv("S3_SESSION_TOKEN", os.Getenv("AWS_SESSION_TOKEN")),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3URLStyle:        getEnv("S3_URL_STYLE", "vhost"),
		S3UseSSL:          getEnvAsBool("S3_USE_SSL", true),

		GCSHMACKeyID:       getEnv("GCS_HMAC_KEY_ID", ""),
		GCSHMACSecret:      getEnv("GCS_HMAC_SECRET", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
	}
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return nil, errors.New("POSTGRES_USER environment variable is required")
	}

	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		return nil, errors.New("POSTGRES_PASSWORD environment variable is required")
	}

	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	cfg := &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     user,
		Password: password,
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxOpenConns:     getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 5),
		MaxIdleConns:     getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800)) * time.Second,
		ConnMaxIdleTime:  time.Duration(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_TIME_SECONDS", 600)) * time.Second,
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	return cfg, nil
}

// Validate checks that credential pairs are complete
func (s *StorageConfig) Validate() error {
	if (s.S3AccessKeyID == "") != (s.S3SecretAccessKey == "") {
		return errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together")
	}
	if (s.GCSHMACKeyID == "") != (s.GCSHMACSecret == "") {
		return errors.New("GCS_HMAC_KEY_ID and GCS_HMAC_SECRET must be set together")
	}
	if s.S3URLStyle != "vhost" && s.S3URLStyle != "path" {
		return fmt.Errorf("unsupported S3 url style %q", s.S3URLStyle)
	}
	return nil
}

// HasS3Credentials reports whether static S3 credentials are configured
func (s *StorageConfig) HasS3Credentials() bool {
	return s.S3AccessKeyID != ""
}

// HasGCSCredentials reports whether GCS HMAC credentials are configured
func (s *StorageConfig) HasGCSCredentials() bool {
	return s.GCSHMACKeyID != ""
}

// ConnectionString returns the DuckDB DSN
func (c *DuckDBConfig) ConnectionString() string {
	return c.Path
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
