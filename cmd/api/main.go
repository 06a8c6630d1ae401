// Command api serves the StormEvents query API over the partitioned Parquet
// dataset, through either the embedded DuckDB engine or AWS Athena.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/storm-data-query/internal/adapter/http"
	"github.com/couchcryptid/storm-data-query/internal/config"
	"github.com/couchcryptid/storm-data-query/internal/engine"
	athenaengine "github.com/couchcryptid/storm-data-query/internal/engine/athena"
	duckdbengine "github.com/couchcryptid/storm-data-query/internal/engine/duckdb"
	"github.com/couchcryptid/storm-data-query/internal/observability"
	"github.com/couchcryptid/storm-data-query/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize query engine", "error", err)
		os.Exit(1)
	}

	svc := service.New(eng, cfg.CacheSize, metrics, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, metrics, httpadapter.Options{
		QueryTimeout: cfg.QueryTimeout,
		StaticDir:    cfg.StaticDir,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := eng.Close(); err != nil {
		logger.Error("engine close error", "error", err)
	}

	logger.Info("shutdown complete")
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.QueryEngine {
	case config.EngineAthena:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return athenaengine.New(
			awsathena.NewFromConfig(awsCfg),
			s3.NewFromConfig(awsCfg),
			clockwork.NewRealClock(),
			athenaengine.Options{
				Database:     cfg.AthenaDatabase,
				Table:        cfg.AthenaTable,
				Workgroup:    cfg.AthenaWorkgroup,
				Output:       cfg.AthenaOutput,
				Location:     cfg.DatasetLocation,
				PollInterval: cfg.AthenaPollInterval,
			},
			logger,
		), nil
	default:
		return duckdbengine.Open(ctx, duckdbengine.Options{
			Location:    cfg.DatasetLocation,
			MemoryLimit: cfg.DuckDBMemoryLimit,
		}, logger)
	}
}
