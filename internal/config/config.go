package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Engine names accepted in QUERY_ENGINE.
const (
	EngineDuckDB = "duckdb"
	EngineAthena = "athena"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// DatasetLocation is a local directory or an s3://bucket/prefix holding
	// the partitioned Parquet dataset.
	DatasetLocation string
	QueryEngine     string
	QueryTimeout    time.Duration

	// CacheSize bounds the LRU response cache; 0 disables it.
	CacheSize int

	// StaticDir is served at / when the directory exists.
	StaticDir string

	DuckDBMemoryLimit string

	// Athena settings, required only when QueryEngine is "athena".
	AWSRegion          string
	AthenaDatabase     string
	AthenaTable        string
	AthenaWorkgroup    string
	AthenaOutput       string
	AthenaPollInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	queryTimeout, err := parsePositiveDuration("QUERY_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("ATHENA_POLL_INTERVAL", "2s")
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseNonNegativeInt("CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatasetLocation: envOrDefault("DATASET_LOCATION", "data/parquet/stormevents"),
		QueryEngine:     envOrDefault("QUERY_ENGINE", EngineDuckDB),
		QueryTimeout:    queryTimeout,
		CacheSize:       cacheSize,
		StaticDir:       envOrDefault("STATIC_DIR", "static"),

		DuckDBMemoryLimit: os.Getenv("DUCKDB_MEMORY_LIMIT"),

		AWSRegion:          envOrDefault("AWS_REGION", "us-east-2"),
		AthenaDatabase:     envOrDefault("ATHENA_DATABASE", "stormevents"),
		AthenaTable:        envOrDefault("ATHENA_TABLE", "events"),
		AthenaWorkgroup:    envOrDefault("ATHENA_WORKGROUP", "primary"),
		AthenaOutput:       os.Getenv("ATHENA_OUTPUT"),
		AthenaPollInterval: pollInterval,
	}

	if cfg.DatasetLocation == "" {
		return nil, errors.New("DATASET_LOCATION is required")
	}
	switch cfg.QueryEngine {
	case EngineDuckDB:
	case EngineAthena:
		if cfg.AthenaOutput == "" {
			return nil, errors.New("ATHENA_OUTPUT is required when QUERY_ENGINE is athena")
		}
	default:
		return nil, fmt.Errorf("invalid QUERY_ENGINE %q (want %q or %q)", cfg.QueryEngine, EngineDuckDB, EngineAthena)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
