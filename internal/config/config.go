// Package config provides configuration for the query server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "CNOSDB_"

// Config holds the configuration of the query server.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir" validate:"required"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http" toml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc" toml:"grpc"`

	// Query dispatcher configuration
	Query QueryConfig `json:"query" yaml:"query" toml:"query"`

	// Meta store configuration
	Meta MetaConfig `json:"meta" yaml:"meta" toml:"meta"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage" toml:"storage"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log" toml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the listen address of the SQL endpoint
	Addr string `json:"addr" yaml:"addr" toml:"addr" validate:"required"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout" validate:"gte=0"`
}

// GRPCConfig holds gRPC server configuration. The gRPC server only serves
// the health service.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr" toml:"addr" validate:"required_if=Enabled true"`
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
}

// QueryConfig holds query dispatcher configuration.
type QueryConfig struct {
	// ConcurrentQueryLimit is the number of queries allowed to run at once
	ConcurrentQueryLimit int64 `json:"concurrent_query_limit" yaml:"concurrent_query_limit" toml:"concurrent_query_limit" validate:"gte=1"`

	DefaultCatalog  string `json:"default_catalog" yaml:"default_catalog" toml:"default_catalog" validate:"required"`
	DefaultDatabase string `json:"default_database" yaml:"default_database" toml:"default_database" validate:"required"`

	// TargetPartitions is recorded on created external tables
	TargetPartitions int `json:"target_partitions" yaml:"target_partitions" toml:"target_partitions" validate:"gte=1"`

	// ReadConcurrency bounds parallel object reads per external table scan
	ReadConcurrency int `json:"read_concurrency" yaml:"read_concurrency" toml:"read_concurrency" validate:"gte=1"`

	// BatchSize is the number of rows per decoded record batch
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size" validate:"gte=1"`

	// StatsWindow is how long table access statistics are kept
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window" toml:"stats_window" validate:"gt=0"`
}

// MetaConfig holds catalog store configuration.
type MetaConfig struct {
	// ShardCount is the number of SQLite shards; 1 uses a single store
	ShardCount int `json:"shard_count" yaml:"shard_count" toml:"shard_count" validate:"gte=1,lte=256"`
}

// StorageConfig holds object storage configuration for external tables.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type" toml:"type" validate:"oneof=local s3"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path" toml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket" toml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region" toml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `json:"format" yaml:"format" toml:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/cnosdb",
		HTTP: HTTPConfig{
			Addr:         ":8902",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":8903",
			Enabled: true,
		},
		Query: QueryConfig{
			ConcurrentQueryLimit: 32,
			DefaultCatalog:       "cnosdb",
			DefaultDatabase:      "public",
			TargetPartitions:     8,
			ReadConcurrency:      8,
			BatchSize:            8192,
			StatsWindow:          time.Hour,
		},
		Meta: MetaConfig{
			ShardCount: 1,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/cnosdb"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// MetaDir returns the directory holding the catalog databases.
func (c *Config) MetaDir() string {
	return filepath.Join(c.DataDir, "meta")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file on top
// of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from CNOSDB_* environment variables. Malformed
// numbers and durations are reported rather than ignored.
func LoadFromEnv(cfg *Config) error {
	strs := map[string]*string{
		"DATA_DIR":               &cfg.DataDir,
		"HTTP_ADDR":              &cfg.HTTP.Addr,
		"GRPC_ADDR":              &cfg.GRPC.Addr,
		"QUERY_DEFAULT_CATALOG":  &cfg.Query.DefaultCatalog,
		"QUERY_DEFAULT_DATABASE": &cfg.Query.DefaultDatabase,
		"STORAGE_TYPE":           &cfg.Storage.Type,
		"STORAGE_PATH":           &cfg.Storage.Path,
		"S3_BUCKET":              &cfg.Storage.S3.Bucket,
		"S3_REGION":              &cfg.Storage.S3.Region,
		"S3_ENDPOINT":            &cfg.Storage.S3.Endpoint,
		"LOG_LEVEL":              &cfg.Log.Level,
		"LOG_FORMAT":             &cfg.Log.Format,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv(EnvPrefix + "GRPC_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sGRPC_ENABLED: %w", EnvPrefix, err)
		}
		cfg.GRPC.Enabled = b
	}

	ints := map[string]*int{
		"QUERY_TARGET_PARTITIONS": &cfg.Query.TargetPartitions,
		"QUERY_READ_CONCURRENCY":  &cfg.Query.ReadConcurrency,
		"QUERY_BATCH_SIZE":        &cfg.Query.BatchSize,
		"META_SHARD_COUNT":        &cfg.Meta.ShardCount,
	}
	for name, dst := range ints {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv(EnvPrefix + "QUERY_CONCURRENT_QUERY_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sQUERY_CONCURRENT_QUERY_LIMIT: %w", EnvPrefix, err)
		}
		cfg.Query.ConcurrentQueryLimit = n
	}

	durations := map[string]*time.Duration{
		"HTTP_READ_TIMEOUT":  &cfg.HTTP.ReadTimeout,
		"HTTP_WRITE_TIMEOUT": &cfg.HTTP.WriteTimeout,
		"HTTP_IDLE_TIMEOUT":  &cfg.HTTP.IdleTimeout,
		"QUERY_STATS_WINDOW": &cfg.Query.StatsWindow,
	}
	for name, dst := range durations {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}
	return nil
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.MetaDir()}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
