// Package athena runs translated statements on AWS Athena over an S3 + Glue
// dataset, for deployments where the service does not hold the Parquet files
// locally. Queries are started with execution parameters, polled until a
// terminal state, and cancelled upstream when the request context ends.
package athena

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/engine"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

// Client is the subset of the Athena API the engine uses. The SDK client
// satisfies it; tests substitute a fake.
type Client interface {
	StartQueryExecution(ctx context.Context, in *awsathena.StartQueryExecutionInput, opts ...func(*awsathena.Options)) (*awsathena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *awsathena.GetQueryExecutionInput, opts ...func(*awsathena.Options)) (*awsathena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *awsathena.GetQueryResultsInput, opts ...func(*awsathena.Options)) (*awsathena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, in *awsathena.StopQueryExecutionInput, opts ...func(*awsathena.Options)) (*awsathena.StopQueryExecutionOutput, error)
}

// ObjectLister is the subset of the S3 API used for dataset health.
type ObjectLister interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options configures the engine.
type Options struct {
	Database     string
	Table        string
	Workgroup    string
	Output       string // s3:// location for Athena result files
	Location     string // s3:// location of the Parquet dataset
	PollInterval time.Duration
}

// Engine executes statements on Athena.
type Engine struct {
	client Client
	lister ObjectLister
	clock  clockwork.Clock
	opts   Options
	logger *slog.Logger
}

// New creates an Athena engine. A nil clock means real time; tests pass a
// short-interval or fake clock.
func New(client Client, lister ObjectLister, clock clockwork.Clock, opts Options, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Table == "" {
		opts.Table = "events"
	}
	return &Engine{client: client, lister: lister, clock: clock, opts: opts, logger: logger}
}

// QueryEvents runs an /events statement.
func (e *Engine) QueryEvents(ctx context.Context, stmt query.Statement) ([]engine.Event, error) {
	rows, err := e.run(ctx, stmt)
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, domain.Errorf(domain.KindUpstreamUnavailable, "athena returned %d columns, want 6", len(row))
		}
		ev := engine.Event{
			EventID:   stringValue(row[0]),
			EventType: stringValue(row[1]),
			Magnitude: floatValue(row[2]),
			Longitude: floatValue(row[3]),
			Latitude:  floatValue(row[4]),
		}
		if ts, ok := parseAthenaTimestamp(stringValue(row[5])); ok {
			ev.BeginDateTime = ts
		}
		events = append(events, ev)
	}
	return events, nil
}

// QuerySummary runs a summary statement.
func (e *Engine) QuerySummary(ctx context.Context, stmt query.Statement) ([]engine.SummaryRow, error) {
	rows, err := e.run(ctx, stmt)
	if err != nil {
		return nil, err
	}

	out := make([]engine.SummaryRow, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, domain.Errorf(domain.KindUpstreamUnavailable, "athena returned %d columns, want 2", len(row))
		}
		n, err := strconv.ParseInt(stringValue(row[1]), 10, 64)
		if err != nil {
			return nil, domain.WrapError(domain.KindUpstreamUnavailable, "athena count column", err)
		}
		out = append(out, engine.SummaryRow{Key: stringValue(row[0]), N: n})
	}
	return out, nil
}

// DatasetInfo counts Parquet objects under the dataset prefix.
func (e *Engine) DatasetInfo(ctx context.Context) (engine.DatasetInfo, error) {
	bucket, prefix, err := splitS3URI(e.opts.Location)
	if err != nil {
		return engine.DatasetInfo{Location: e.opts.Location}, domain.WrapError(domain.KindUpstreamUnavailable, "dataset location", err)
	}

	count := 0
	var token *string
	for {
		out, err := e.lister.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return engine.DatasetInfo{Location: e.opts.Location}, engine.Classify(err, "list dataset objects")
		}
		for _, obj := range out.Contents {
			if obj.Key != nil && strings.HasSuffix(*obj.Key, ".parquet") {
				count++
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return engine.DatasetInfo{Location: e.opts.Location, FileCount: count}, nil
}

// Close is a no-op; the engine holds no connection state.
func (e *Engine) Close() error { return nil }

// run starts the query, waits for a terminal state, and returns the data
// rows (header row stripped).
func (e *Engine) run(ctx context.Context, stmt query.Statement) ([][]athenatypes.Datum, error) {
	params, err := executionParameters(stmt.Args)
	if err != nil {
		return nil, err
	}

	in := &awsathena.StartQueryExecutionInput{
		QueryString:        aws.String(e.rewriteTable(stmt.SQL)),
		ClientRequestToken: aws.String(uuid.NewString()),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(e.opts.Database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(e.opts.Output),
		},
	}
	if e.opts.Workgroup != "" {
		in.WorkGroup = aws.String(e.opts.Workgroup)
	}
	if len(params) > 0 {
		in.ExecutionParameters = params
	}

	started, err := e.client.StartQueryExecution(ctx, in)
	if err != nil {
		return nil, engine.Classify(err, "start athena query")
	}
	queryID := aws.ToString(started.QueryExecutionId)

	if err := e.waitForCompletion(ctx, queryID); err != nil {
		return nil, err
	}
	return e.fetchResults(ctx, queryID)
}

func (e *Engine) waitForCompletion(ctx context.Context, queryID string) error {
	for {
		out, err := e.client.GetQueryExecution(ctx, &awsathena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(queryID),
		})
		if err != nil {
			return engine.Classify(err, "poll athena query")
		}

		state := out.QueryExecution.Status.State
		switch state {
		case athenatypes.QueryExecutionStateSucceeded:
			return nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			reason := ""
			if out.QueryExecution.Status.StateChangeReason != nil {
				reason = *out.QueryExecution.Status.StateChangeReason
			}
			return domain.Errorf(domain.KindUpstreamUnavailable, "athena query %s: %s", strings.ToLower(string(state)), reason)
		}

		select {
		case <-ctx.Done():
			e.cancelQuery(queryID)
			return engine.Classify(ctx.Err(), "athena query abandoned")
		case <-e.clock.After(e.opts.PollInterval):
		}
	}
}

// cancelQuery stops an abandoned execution so it cannot keep scanning after
// the client has gone away. Uses a fresh context: the request's is done.
func (e *Engine) cancelQuery(queryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.client.StopQueryExecution(ctx, &awsathena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(queryID),
	}); err != nil {
		e.logger.Warn("stop athena query failed", "query_id", queryID, "error", err)
	}
}

func (e *Engine) fetchResults(ctx context.Context, queryID string) ([][]athenatypes.Datum, error) {
	var rows [][]athenatypes.Datum
	var token *string
	first := true

	for {
		out, err := e.client.GetQueryResults(ctx, &awsathena.GetQueryResultsInput{
			QueryExecutionId: aws.String(queryID),
			NextToken:        token,
		})
		if err != nil {
			return nil, engine.Classify(err, "fetch athena results")
		}

		if out.ResultSet != nil {
			for i, row := range out.ResultSet.Rows {
				// The first row of the first page is the column header.
				if first && i == 0 {
					continue
				}
				rows = append(rows, row.Data)
			}
		}
		first = false

		if out.NextToken == nil {
			return rows, nil
		}
		token = out.NextToken
	}
}

// rewriteTable points the logical events relation at the configured table.
func (e *Engine) rewriteTable(sql string) string {
	if e.opts.Table == "events" {
		return sql
	}
	return strings.Replace(sql, " FROM events", ` FROM "`+e.opts.Table+`"`, 1)
}

// executionParameters renders bound args as Athena execution parameters.
// Athena substitutes them for `?` placeholders as literal SQL tokens, so
// strings are quoted and escaped here; this is the only place values are
// ever rendered into text, and it never sees an identifier.
func executionParameters(args []any) ([]string, error) {
	params := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case string:
			params = append(params, "'"+strings.ReplaceAll(v, "'", "''")+"'")
		case int:
			params = append(params, strconv.Itoa(v))
		case int64:
			params = append(params, strconv.FormatInt(v, 10))
		case float64:
			params = append(params, strconv.FormatFloat(v, 'g', -1, 64))
		case time.Time:
			params = append(params, "TIMESTAMP '"+v.Format("2006-01-02 15:04:05.000")+"'")
		default:
			return nil, domain.Errorf(domain.KindUpstreamUnavailable, "unsupported parameter type %T", a)
		}
	}
	return params, nil
}

var athenaTimestampLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseAthenaTimestamp(s string) (time.Time, bool) {
	for _, layout := range athenaTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringValue(d athenatypes.Datum) string {
	if d.VarCharValue == nil {
		return ""
	}
	return *d.VarCharValue
}

func floatValue(d athenatypes.Datum) *float64 {
	if d.VarCharValue == nil || *d.VarCharValue == "" {
		return nil
	}
	v, err := strconv.ParseFloat(*d.VarCharValue, 64)
	if err != nil {
		return nil
	}
	return &v
}

func splitS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, prefix, nil
}
