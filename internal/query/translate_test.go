package query_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/query"
)

func TestEventsQuery_NoFilters(t *testing.T) {
	f := query.Filter{Limit: 1000}
	stmt := f.EventsQuery()

	assert.Equal(t,
		"SELECT event_id, event_type, magnitude, longitude, latitude, begin_date_time FROM events"+
			" ORDER BY begin_date_time, event_id LIMIT ?",
		stmt.SQL)
	assert.Equal(t, []any{1000}, stmt.Args)
}

func TestEventsQuery_AllFiltersConjoined(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC)
	f := query.Filter{
		Start: &start,
		End:   &end,
		BBox:  &query.BBox{MinLon: -125, MinLat: 32, MaxLon: -114, MaxLat: 42},
		Types: []string{"Tornado", "Hail"},
		Limit: 5,
	}

	stmt := f.EventsQuery()

	assert.Contains(t, stmt.SQL, "WHERE begin_date_time >= ? AND begin_date_time <= ?")
	assert.Contains(t, stmt.SQL, "longitude >= ? AND longitude <= ? AND latitude >= ? AND latitude <= ?")
	assert.Contains(t, stmt.SQL, "event_type IN (?, ?)")
	assert.True(t, strings.HasSuffix(stmt.SQL, "ORDER BY begin_date_time, event_id LIMIT ?"))

	want := []any{start, end, -125.0, -114.0, 32.0, 42.0, "Tornado", "Hail", 5}
	if diff := cmp.Diff(want, stmt.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestEventsQuery_AbsentFiltersAddNoPredicates(t *testing.T) {
	f := query.Filter{Limit: 10}
	stmt := f.EventsQuery()

	assert.NotContains(t, stmt.SQL, "WHERE")
	assert.Len(t, stmt.Args, 1) // just the limit
}

func TestEventsQuery_ZeroLimitNeverUnbounded(t *testing.T) {
	f := query.Filter{}
	stmt := f.EventsQuery()

	assert.Contains(t, stmt.SQL, "LIMIT ?")
	assert.Equal(t, []any{query.DefaultLimit}, stmt.Args)
}

func TestSummaryQuery_ShapeAndOrdering(t *testing.T) {
	f := query.Filter{GroupBy: "state"}
	stmt, err := f.SummaryQuery()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT state AS key, COUNT(*) AS n FROM events GROUP BY 1 ORDER BY n DESC, key ASC",
		stmt.SQL)
	assert.Empty(t, stmt.Args)
}

func TestSummaryQuery_WithPredicates(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := query.Filter{GroupBy: "year", Start: &start}

	stmt, err := f.SummaryQuery()
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, "SELECT year AS key")
	assert.Contains(t, stmt.SQL, "WHERE begin_date_time >= ?")
	assert.Equal(t, []any{start}, stmt.Args)
}

// The injection-safety property: a groupby value outside the allow-list
// never reaches generated SQL, even if a caller bypasses parsing and builds
// the Filter directly.
func TestSummaryQuery_RejectsUnlistedColumn(t *testing.T) {
	for _, groupBy := range []string{"", "magnitude", "state; DROP TABLE events--"} {
		f := query.Filter{GroupBy: groupBy}
		_, err := f.SummaryQuery()
		require.Error(t, err)

		kind, ok := domain.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, domain.KindInvalidGroupBy, kind)
	}
}

// All filter values travel as bound parameters; the SQL text must never
// contain a caller-supplied value.
func TestStatements_NeverInlineValues(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := query.Filter{
		Start: &start,
		BBox:  &query.BBox{MinLon: -125, MinLat: 32, MaxLon: -114, MaxLat: 42},
		Types: []string{"Tornado'; DROP TABLE events--"},
		Limit: 7,
	}

	stmt := f.EventsQuery()
	assert.NotContains(t, stmt.SQL, "2020")
	assert.NotContains(t, stmt.SQL, "-125")
	assert.NotContains(t, stmt.SQL, "Tornado")
	assert.NotContains(t, stmt.SQL, "7")
}
