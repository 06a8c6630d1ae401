package athena

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsathena "github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

type fakeClient struct {
	mu sync.Mutex

	startInput *awsathena.StartQueryExecutionInput
	startErr   error

	// states are returned by successive GetQueryExecution calls; the last one
	// repeats.
	states        []athenatypes.QueryExecutionState
	stateIdx      int
	failureReason string

	// pages are returned by successive GetQueryResults calls.
	pages   []*awsathena.GetQueryResultsOutput
	pageIdx int

	stopped []string
}

func (f *fakeClient) StartQueryExecution(ctx context.Context, in *awsathena.StartQueryExecutionInput, _ ...func(*awsathena.Options)) (*awsathena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.startInput = in
	return &awsathena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qid-1")}, nil
}

func (f *fakeClient) GetQueryExecution(ctx context.Context, in *awsathena.GetQueryExecutionInput, _ ...func(*awsathena.Options)) (*awsathena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.states[f.stateIdx]
	if f.stateIdx < len(f.states)-1 {
		f.stateIdx++
	}
	status := &athenatypes.QueryExecutionStatus{State: state}
	if f.failureReason != "" {
		status.StateChangeReason = aws.String(f.failureReason)
	}
	return &awsathena.GetQueryExecutionOutput{
		QueryExecution: &athenatypes.QueryExecution{Status: status},
	}, nil
}

func (f *fakeClient) GetQueryResults(ctx context.Context, in *awsathena.GetQueryResultsInput, _ ...func(*awsathena.Options)) (*awsathena.GetQueryResultsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pages[f.pageIdx]
	if f.pageIdx < len(f.pages)-1 {
		f.pageIdx++
	}
	return out, nil
}

func (f *fakeClient) StopQueryExecution(ctx context.Context, in *awsathena.StopQueryExecutionInput, _ ...func(*awsathena.Options)) (*awsathena.StopQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, aws.ToString(in.QueryExecutionId))
	return &awsathena.StopQueryExecutionOutput{}, nil
}

func datum(s string) athenatypes.Datum {
	return athenatypes.Datum{VarCharValue: aws.String(s)}
}

func resultRow(values ...string) athenatypes.Row {
	data := make([]athenatypes.Datum, len(values))
	for i, v := range values {
		data[i] = datum(v)
	}
	return athenatypes.Row{Data: data}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(client Client, lister ObjectLister, opts Options) *Engine {
	if opts.Database == "" {
		opts.Database = "stormevents"
	}
	if opts.Output == "" {
		opts.Output = "s3://results/athena/"
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	return New(client, lister, nil, opts, testLogger())
}

func TestQueryEvents_HeaderRowSkipped(t *testing.T) {
	client := &fakeClient{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded},
		pages: []*awsathena.GetQueryResultsOutput{{
			ResultSet: &athenatypes.ResultSet{Rows: []athenatypes.Row{
				resultRow("event_id", "event_type", "magnitude", "longitude", "latitude", "begin_date_time"),
				resultRow("101", "Tornado", "2.0", "-96.8", "32.78", "2023-04-28 14:30:00.000"),
			}},
		}},
	}

	eng := newTestEngine(client, nil, Options{})
	events, err := eng.QueryEvents(context.Background(), query.Statement{SQL: "SELECT 1 FROM events"})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "101", events[0].EventID)
	assert.Equal(t, "Tornado", events[0].EventType)
	require.NotNil(t, events[0].Magnitude)
	assert.Equal(t, 2.0, *events[0].Magnitude)
	assert.Equal(t, time.Date(2023, 4, 28, 14, 30, 0, 0, time.UTC), events[0].BeginDateTime)
}

func TestQueryEvents_NullColumns(t *testing.T) {
	client := &fakeClient{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded},
		pages: []*awsathena.GetQueryResultsOutput{{
			ResultSet: &athenatypes.ResultSet{Rows: []athenatypes.Row{
				resultRow("header", "h", "h", "h", "h", "h"),
				{Data: []athenatypes.Datum{
					datum("102"), datum("Hail"), {}, {}, {}, datum("2023-04-28 15:00:00.000"),
				}},
			}},
		}},
	}

	eng := newTestEngine(client, nil, Options{})
	events, err := eng.QueryEvents(context.Background(), query.Statement{SQL: "SELECT 1 FROM events"})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Nil(t, events[0].Magnitude)
	assert.Nil(t, events[0].Longitude)
	assert.Nil(t, events[0].Latitude)
}

func TestQueryEvents_PagedResults(t *testing.T) {
	client := &fakeClient{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded},
		pages: []*awsathena.GetQueryResultsOutput{
			{
				ResultSet: &athenatypes.ResultSet{Rows: []athenatypes.Row{
					resultRow("h", "h", "h", "h", "h", "h"),
					resultRow("1", "Tornado", "", "", "", "2023-01-01 00:00:00.000"),
				}},
				NextToken: aws.String("page2"),
			},
			{
				ResultSet: &athenatypes.ResultSet{Rows: []athenatypes.Row{
					resultRow("2", "Hail", "", "", "", "2023-01-02 00:00:00.000"),
				}},
			},
		},
	}

	eng := newTestEngine(client, nil, Options{})
	events, err := eng.QueryEvents(context.Background(), query.Statement{SQL: "SELECT 1 FROM events"})
	require.NoError(t, err)

	// Only the first page has a header row.
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].EventID)
	assert.Equal(t, "2", events[1].EventID)
}

func TestRun_PollsUntilTerminalState(t *testing.T) {
	client := &fakeClient{
		states: []athenatypes.QueryExecutionState{
			athenatypes.QueryExecutionStateQueued,
			athenatypes.QueryExecutionStateRunning,
			athenatypes.QueryExecutionStateSucceeded,
		},
		pages: []*awsathena.GetQueryResultsOutput{{
			ResultSet: &athenatypes.ResultSet{Rows: []athenatypes.Row{resultRow("key", "n")}},
		}},
	}

	eng := newTestEngine(client, nil, Options{})
	rows, err := eng.QuerySummary(context.Background(), query.Statement{SQL: "SELECT 1 FROM events"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 2, client.stateIdx)
}

func TestRun_FailedStateIsUpstreamUnavailable(t *testing.T) {
	client := &fakeClient{
		states:        []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateFailed},
		failureReason: "SYNTAX_ERROR: line 1",
	}

	eng := newTestEngine(client, nil, Options{})
	_, err := eng.QueryEvents(context.Background(), query.Statement{SQL: "SELECT 1 FROM events"})
	require.Error(t, err)

	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUpstreamUnavailable, kind)
	assert.Contains(t, err.Error(), "SYNTAX_ERROR")
}

func TestRun_ContextCancelStopsQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &fakeClient{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateRunning},
	}

	eng := newTestEngine(client, nil, Options{PollInterval: time.Hour})

	done := make(chan error, 1)
	go func() {
		_, err := eng.QueryEvents(ctx, query.Statement{SQL: "SELECT 1 FROM events"})
		done <- err
	}()

	// Let the first poll land, then abandon the request.
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-done
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUpstreamTimeout, kind)

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, []string{"qid-1"}, client.stopped)
}

func TestRun_StartErrorClassified(t *testing.T) {
	client := &fakeClient{startErr: errors.New("throttled")}

	eng := newTestEngine(client, nil, Options{})
	_, err := eng.QueryEvents(context.Background(), query.Statement{SQL: "SELECT 1 FROM events"})
	require.Error(t, err)

	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUpstreamUnavailable, kind)
}

func TestRun_PassesParametersAndRewritesTable(t *testing.T) {
	client := &fakeClient{
		states: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded},
		pages: []*awsathena.GetQueryResultsOutput{{
			ResultSet: &athenatypes.ResultSet{Rows: []athenatypes.Row{resultRow("key", "n")}},
		}},
	}

	eng := newTestEngine(client, nil, Options{Table: "storm_events", Workgroup: "primary"})
	stmt := query.Statement{
		SQL:  "SELECT event_type AS key, COUNT(*) AS n FROM events WHERE begin_date_time >= ? GROUP BY key",
		Args: []any{time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	_, err := eng.QuerySummary(context.Background(), stmt)
	require.NoError(t, err)

	in := client.startInput
	require.NotNil(t, in)
	assert.Contains(t, aws.ToString(in.QueryString), `FROM "storm_events"`)
	assert.NotContains(t, aws.ToString(in.QueryString), "FROM events")
	assert.Equal(t, []string{"TIMESTAMP '2023-01-01 00:00:00.000'"}, in.ExecutionParameters)
	assert.Equal(t, "primary", aws.ToString(in.WorkGroup))
	assert.Equal(t, "stormevents", aws.ToString(in.QueryExecutionContext.Database))
	assert.NotEmpty(t, aws.ToString(in.ClientRequestToken))
}

func TestExecutionParameters(t *testing.T) {
	params, err := executionParameters([]any{
		"Tornado",
		"O'Brien's Hail",
		42,
		int64(7),
		-96.8,
		time.Date(2023, 4, 28, 14, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"'Tornado'",
		"'O''Brien''s Hail'",
		"42",
		"7",
		"-96.8",
		"TIMESTAMP '2023-04-28 14:30:00.000'",
	}, params)
}

func TestExecutionParameters_UnsupportedType(t *testing.T) {
	_, err := executionParameters([]any{struct{}{}})
	require.Error(t, err)
}

type fakeLister struct {
	pages []*s3.ListObjectsV2Output
	idx   int
	input *s3.ListObjectsV2Input
}

func (f *fakeLister) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.input = in
	out := f.pages[f.idx]
	if f.idx < len(f.pages)-1 {
		f.idx++
	}
	return out, nil
}

func TestDatasetInfo_CountsParquetAcrossPages(t *testing.T) {
	lister := &fakeLister{pages: []*s3.ListObjectsV2Output{
		{
			Contents: []s3types.Object{
				{Key: aws.String("stormevents/year=2023/event_type_part=tornado/part-00000.parquet")},
				{Key: aws.String("stormevents/year=2023/_manifest.json")},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents: []s3types.Object{
				{Key: aws.String("stormevents/year=2022/event_type_part=hail/part-00000.parquet")},
			},
			IsTruncated: aws.Bool(false),
		},
	}}

	eng := newTestEngine(&fakeClient{}, lister, Options{Location: "s3://data-bucket/stormevents"})
	info, err := eng.DatasetInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "s3://data-bucket/stormevents", info.Location)
	assert.Equal(t, 2, info.FileCount)
	assert.Equal(t, "data-bucket", aws.ToString(lister.input.Bucket))
	assert.Equal(t, "stormevents", aws.ToString(lister.input.Prefix))
}

func TestDatasetInfo_BadLocation(t *testing.T) {
	eng := newTestEngine(&fakeClient{}, &fakeLister{}, Options{Location: "/local/path"})
	info, err := eng.DatasetInfo(context.Background())
	require.Error(t, err)
	assert.Equal(t, "/local/path", info.Location)
}

func TestSplitS3URI(t *testing.T) {
	bucket, prefix, err := splitS3URI("s3://bucket/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "a/b/c", prefix)

	bucket, prefix, err = splitS3URI("s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Empty(t, prefix)

	_, _, err = splitS3URI("http://bucket")
	require.Error(t, err)
}
