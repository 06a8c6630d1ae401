// Package engine defines the query-execution seam between the result shaper
// and the storage backends. Both the embedded DuckDB engine and the Athena
// engine execute the same statements over a logical "events" relation.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

// Event is one scanned /events result row. Pointer fields are nil when the
// column is NULL.
type Event struct {
	EventID       string
	EventType     string
	Magnitude     *float64
	Longitude     *float64
	Latitude      *float64
	BeginDateTime time.Time
}

// SummaryRow is one scanned /events/summary result row.
type SummaryRow struct {
	Key string
	N   int64
}

// DatasetInfo describes the dataset backing the engine.
type DatasetInfo struct {
	Location  string
	FileCount int
}

// Engine executes translated statements. Implementations are safe for
// concurrent use and own no per-request state; one handle is created at
// startup and closed at shutdown.
type Engine interface {
	QueryEvents(ctx context.Context, stmt query.Statement) ([]Event, error)
	QuerySummary(ctx context.Context, stmt query.Statement) ([]SummaryRow, error)
	DatasetInfo(ctx context.Context) (DatasetInfo, error)
	Close() error
}

// Classify translates an engine failure into the API error taxonomy:
// context deadline and cancellation map to UpstreamTimeout, everything else
// to UpstreamUnavailable. Errors already carrying a kind pass through.
func Classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.KindOf(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.KindUpstreamTimeout, msg, err)
	}
	return domain.WrapError(domain.KindUpstreamUnavailable, msg, err)
}
