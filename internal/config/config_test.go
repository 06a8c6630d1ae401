package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data/parquet/stormevents", cfg.DatasetLocation)
	assert.Equal(t, EngineDuckDB, cfg.QueryEngine)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 256, cfg.CacheSize)
	assert.Equal(t, "static", cfg.StaticDir)
	assert.Empty(t, cfg.DuckDBMemoryLimit)
	assert.Equal(t, 2*time.Second, cfg.AthenaPollInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DATASET_LOCATION", "s3://bucket/stormevents")
	t.Setenv("QUERY_ENGINE", "athena")
	t.Setenv("QUERY_TIMEOUT", "45s")
	t.Setenv("CACHE_SIZE", "0")
	t.Setenv("DUCKDB_MEMORY_LIMIT", "1GB")
	t.Setenv("ATHENA_DATABASE", "mydb")
	t.Setenv("ATHENA_TABLE", "myevents")
	t.Setenv("ATHENA_WORKGROUP", "analytics")
	t.Setenv("ATHENA_OUTPUT", "s3://bucket/athena-output/")
	t.Setenv("ATHENA_POLL_INTERVAL", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "s3://bucket/stormevents", cfg.DatasetLocation)
	assert.Equal(t, EngineAthena, cfg.QueryEngine)
	assert.Equal(t, 45*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 0, cfg.CacheSize)
	assert.Equal(t, "1GB", cfg.DuckDBMemoryLimit)
	assert.Equal(t, "mydb", cfg.AthenaDatabase)
	assert.Equal(t, "myevents", cfg.AthenaTable)
	assert.Equal(t, "analytics", cfg.AthenaWorkgroup)
	assert.Equal(t, "s3://bucket/athena-output/", cfg.AthenaOutput)
	assert.Equal(t, 500*time.Millisecond, cfg.AthenaPollInterval)
}

func TestLoad_InvalidQueryEngine(t *testing.T) {
	t.Setenv("QUERY_ENGINE", "bigquery")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_ENGINE")
}

func TestLoad_AthenaRequiresOutput(t *testing.T) {
	t.Setenv("QUERY_ENGINE", "athena")
	t.Setenv("ATHENA_OUTPUT", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ATHENA_OUTPUT")
}

func TestLoad_InvalidQueryTimeout(t *testing.T) {
	t.Setenv("QUERY_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_TIMEOUT")
}

func TestLoad_NegativeCacheSize(t *testing.T) {
	t.Setenv("CACHE_SIZE", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_SIZE")
}
