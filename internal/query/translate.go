package query

import (
	"strings"

	"github.com/couchcryptid/storm-data-query/internal/domain"
)

// Statement is an engine-agnostic SQL statement with positional `?`
// parameters. Engines bind Args natively (DuckDB) or as stringified
// execution parameters (Athena).
type Statement struct {
	SQL  string
	Args []any
}

// EventsQuery builds the /events statement. The projection, ordering, and
// limit are fixed here so both engines return identical, reproducible rows:
// begin_date_time ascending with event_id as the final tie-break.
func (f Filter) EventsQuery() Statement {
	var sb strings.Builder
	sb.WriteString("SELECT event_id, event_type, magnitude, longitude, latitude, begin_date_time FROM events")

	where, args := f.predicates()
	sb.WriteString(where)
	sb.WriteString(" ORDER BY begin_date_time, event_id LIMIT ?")

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)

	return Statement{SQL: sb.String(), Args: args}
}

// SummaryQuery builds the /events/summary statement. The groupby column is
// re-checked against the allow-list even though parsing already validated
// it: no caller-supplied identifier reaches the SQL text any other way.
func (f Filter) SummaryQuery() (Statement, error) {
	col, ok := groupByColumns[f.GroupBy]
	if !ok {
		return Statement{}, domain.Errorf(domain.KindInvalidGroupBy, "groupby %q is not allowed", f.GroupBy)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(col)
	sb.WriteString(" AS key, COUNT(*) AS n FROM events")

	where, args := f.predicates()
	sb.WriteString(where)
	// Group by ordinal: Athena's Presto dialect does not resolve SELECT
	// aliases inside GROUP BY, DuckDB accepts either.
	sb.WriteString(" GROUP BY 1 ORDER BY n DESC, key ASC")

	return Statement{SQL: sb.String(), Args: args}, nil
}

// predicates composes every supplied filter as a conjunction. Absent filters
// add nothing: there is no default date range. Bounding-box comparisons
// against NULL coordinates evaluate to NULL and drop the row, which gives
// the contract "bbox excludes events without coordinates" for free.
func (f Filter) predicates() (string, []any) {
	var conds []string
	var args []any

	if f.Start != nil {
		conds = append(conds, "begin_date_time >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		conds = append(conds, "begin_date_time <= ?")
		args = append(args, *f.End)
	}
	if f.BBox != nil {
		conds = append(conds, "longitude >= ? AND longitude <= ? AND latitude >= ? AND latitude <= ?")
		args = append(args, f.BBox.MinLon, f.BBox.MaxLon, f.BBox.MinLat, f.BBox.MaxLat)
	}
	if len(f.Types) > 0 {
		placeholders := strings.Repeat("?, ", len(f.Types)-1) + "?"
		conds = append(conds, "event_type IN ("+placeholders+")")
		for _, t := range f.Types {
			args = append(args, t)
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
