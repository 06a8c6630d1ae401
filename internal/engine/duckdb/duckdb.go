// Package duckdb runs translated statements on an embedded in-memory DuckDB
// instance reading the partitioned Parquet dataset directly, from local disk
// or from S3 via the httpfs extension.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/couchcryptid/storm-data-query/internal/engine"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

// Options configures the engine.
type Options struct {
	// Location is a directory (local or s3://bucket/prefix) containing the
	// year=*/event_type_part=*/ partition tree, or a direct *.parquet glob.
	Location string

	// MemoryLimit is passed to DuckDB's memory_limit setting when non-empty,
	// e.g. "1GB".
	MemoryLimit string
}

// Engine queries Parquet files through DuckDB.
type Engine struct {
	db       *sql.DB
	location string
	glob     string
	logger   *slog.Logger
}

// Open creates the in-memory database, loads httpfs for s3:// datasets, and
// defines the "events" view over the dataset. The view makes every statement
// engine-agnostic: translated SQL only ever names the events relation.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	e := &Engine{
		db:       db,
		location: opts.Location,
		glob:     datasetGlob(opts.Location),
		logger:   logger,
	}

	if opts.MemoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit = '%s'", opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	if strings.HasPrefix(opts.Location, "s3://") {
		for _, stmt := range []string{
			"INSTALL httpfs",
			"LOAD httpfs",
			"CREATE SECRET (TYPE S3, PROVIDER CREDENTIAL_CHAIN)",
		} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				db.Close()
				return nil, fmt.Errorf("configure s3 access: %w", err)
			}
		}
	}

	view := fmt.Sprintf(
		"CREATE VIEW events AS SELECT * FROM read_parquet('%s', hive_partitioning = true, union_by_name = true)",
		escapeSingleQuotes(e.glob),
	)
	if _, err := db.ExecContext(ctx, view); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events view over %s: %w", e.glob, err)
	}

	logger.Info("duckdb engine ready", "dataset", opts.Location)
	return e, nil
}

// QueryEvents runs an /events statement and scans typed rows.
func (e *Engine) QueryEvents(ctx context.Context, stmt query.Statement) ([]engine.Event, error) {
	rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, engine.Classify(err, "duckdb query")
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		var (
			ev       engine.Event
			mag      sql.NullFloat64
			lon, lat sql.NullFloat64
		)
		if err := rows.Scan(&ev.EventID, &ev.EventType, &mag, &lon, &lat, &ev.BeginDateTime); err != nil {
			return nil, engine.Classify(err, "scan event row")
		}
		if mag.Valid {
			ev.Magnitude = &mag.Float64
		}
		if lon.Valid {
			ev.Longitude = &lon.Float64
		}
		if lat.Valid {
			ev.Latitude = &lat.Float64
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, engine.Classify(err, "read event rows")
	}
	return events, nil
}

// QuerySummary runs a summary statement. The key column's type depends on
// the grouping (VARCHAR for event_type/state, integer for the year
// partition), so it is scanned loosely and normalized to a string.
func (e *Engine) QuerySummary(ctx context.Context, stmt query.Statement) ([]engine.SummaryRow, error) {
	rows, err := e.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, engine.Classify(err, "duckdb query")
	}
	defer rows.Close()

	var out []engine.SummaryRow
	for rows.Next() {
		var (
			key any
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, engine.Classify(err, "scan summary row")
		}
		out = append(out, engine.SummaryRow{Key: keyToString(key), N: n})
	}
	if err := rows.Err(); err != nil {
		return nil, engine.Classify(err, "read summary rows")
	}
	return out, nil
}

// DatasetInfo counts the Parquet files the events view can see.
func (e *Engine) DatasetInfo(ctx context.Context) (engine.DatasetInfo, error) {
	var count int
	q := fmt.Sprintf("SELECT count(*) FROM glob('%s')", escapeSingleQuotes(e.glob))
	if err := e.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return engine.DatasetInfo{Location: e.location}, engine.Classify(err, "count dataset files")
	}
	return engine.DatasetInfo{Location: e.location, FileCount: count}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// datasetGlob widens a dataset directory into a recursive Parquet glob.
// Explicit globs and direct .parquet paths pass through unchanged.
func datasetGlob(location string) string {
	if strings.ContainsAny(location, "*?") || strings.HasSuffix(location, ".parquet") {
		return location
	}
	return strings.TrimRight(location, "/") + "/**/*.parquet"
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func keyToString(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case []byte:
		return string(k)
	default:
		return fmt.Sprintf("%v", k)
	}
}
