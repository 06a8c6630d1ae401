// Package query translates validated filter requests into SQL statements
// over the logical "events" relation. All filter values travel as bound
// parameters; the only identifier ever interpolated into query text is the
// groupby column, and only after it has passed the allow-list.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-query/internal/domain"
)

const (
	// DefaultLimit applies when limit is absent, zero, negative, or
	// unparseable. MaxLimit is a hard ceiling; larger values are clamped,
	// not rejected, so callers probing for "everything" still get a
	// bounded scan.
	DefaultLimit = 1000
	MaxLimit     = 10000

	// DefaultGroupBy applies when the summary endpoint gets no groupby.
	DefaultGroupBy = "event_type"
)

// groupByColumns is the closed allow-list of grouping keys. Anything else is
// InvalidGroupBy before a single character of SQL is composed.
var groupByColumns = map[string]string{
	"event_type": "event_type",
	"state":      "state",
	"year":       "year",
}

// BBox is a WGS84 bounding box, lon/lat order as in the query string.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Filter is a validated request against the dataset. Nil/empty fields impose
// no constraint; supplied fields compose as a conjunction.
type Filter struct {
	Start   *time.Time
	End     *time.Time
	BBox    *BBox
	Types   []string
	Limit   int
	GroupBy string
}

// ParseEventsFilter validates the /events query string.
func ParseEventsFilter(values url.Values) (Filter, error) {
	f, err := parseCommon(values)
	if err != nil {
		return Filter{}, err
	}
	f.Limit = parseLimit(values.Get("limit"))
	return f, nil
}

// ParseSummaryFilter validates the /events/summary query string. An absent
// groupby defaults to event_type; anything outside the allow-list is
// InvalidGroupBy.
func ParseSummaryFilter(values url.Values) (Filter, error) {
	f, err := parseCommon(values)
	if err != nil {
		return Filter{}, err
	}

	groupBy := values.Get("groupby")
	if groupBy == "" {
		groupBy = DefaultGroupBy
	}
	if _, ok := groupByColumns[groupBy]; !ok {
		return Filter{}, domain.Errorf(domain.KindInvalidGroupBy,
			"groupby must be one of event_type, state, year; got %q", groupBy)
	}
	f.GroupBy = groupBy
	return f, nil
}

func parseCommon(values url.Values) (Filter, error) {
	var f Filter

	if s := values.Get("start"); s != "" {
		t, ok := parseTime(s, false)
		if !ok {
			return Filter{}, domain.Errorf(domain.KindInvalidRange, "start is not an ISO-8601 date or datetime: %q", s)
		}
		f.Start = &t
	}
	if s := values.Get("end"); s != "" {
		t, ok := parseTime(s, true)
		if !ok {
			return Filter{}, domain.Errorf(domain.KindInvalidRange, "end is not an ISO-8601 date or datetime: %q", s)
		}
		f.End = &t
	}
	if f.Start != nil && f.End != nil && f.End.Before(*f.Start) {
		return Filter{}, domain.NewError(domain.KindInvalidRange, "end must not be before start")
	}

	if s := values.Get("bbox"); s != "" {
		box, err := ParseBBox(s)
		if err != nil {
			return Filter{}, err
		}
		f.BBox = box
	}

	f.Types = parseTypes(values["types"])

	return f, nil
}

// ParseBBox parses "min_lon,min_lat,max_lon,max_lat". Wrong arity,
// non-numeric values, min > max, or coordinates outside WGS84 ranges are
// InvalidBBox. min == max is allowed: a degenerate box is a point query.
func ParseBBox(s string) (*BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, domain.Errorf(domain.KindInvalidBBox, "bbox must be min_lon,min_lat,max_lon,max_lat; got %d values", len(parts))
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, domain.Errorf(domain.KindInvalidBBox, "bbox value %q is not a number", p)
		}
		vals[i] = v
	}

	box := &BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if box.MinLon > box.MaxLon || box.MinLat > box.MaxLat {
		return nil, domain.NewError(domain.KindInvalidBBox, "bbox must satisfy min <= max on both axes")
	}
	if box.MinLon < -180 || box.MaxLon > 180 || box.MinLat < -90 || box.MaxLat > 90 {
		return nil, domain.NewError(domain.KindInvalidBBox, "bbox must be within [-180,180] longitude and [-90,90] latitude")
	}
	return box, nil
}

// parseLimit normalizes the limit parameter: absent, unparseable, zero, or
// negative values become DefaultLimit; values above MaxLimit are clamped.
// An unbounded response is never possible.
func parseLimit(s string) int {
	if s == "" {
		return DefaultLimit
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// parseTypes flattens repeated and comma-separated types parameters into a
// deduplicated list.
func parseTypes(raw []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range raw {
		for _, t := range strings.Split(v, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime accepts ISO-8601 dates and datetimes. A date-only upper bound is
// expanded to the end of that day so "end=2020-12-31" includes events on
// December 31st, keeping the bound inclusive.
func parseTime(s string, upperBound bool) (time.Time, bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if upperBound {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t, true
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Canonical returns a deterministic identity for the filter, independent of
// query-string ordering. It is the response-cache key: two requests with the
// same canonical id are guaranteed the same result against an unchanged
// dataset.
func (f Filter) Canonical() string {
	var parts []string
	if f.Start != nil {
		parts = append(parts, "start="+f.Start.UTC().Format(time.RFC3339))
	}
	if f.End != nil {
		parts = append(parts, "end="+f.End.UTC().Format(time.RFC3339))
	}
	if f.BBox != nil {
		parts = append(parts, fmt.Sprintf("bbox=%g,%g,%g,%g", f.BBox.MinLon, f.BBox.MinLat, f.BBox.MaxLon, f.BBox.MaxLat))
	}
	if len(f.Types) > 0 {
		types := append([]string(nil), f.Types...)
		sort.Strings(types)
		parts = append(parts, "types="+strings.Join(types, ","))
	}
	if f.Limit > 0 {
		parts = append(parts, "limit="+strconv.Itoa(f.Limit))
	}
	if f.GroupBy != "" {
		parts = append(parts, "groupby="+f.GroupBy)
	}
	return strings.Join(parts, "|")
}
