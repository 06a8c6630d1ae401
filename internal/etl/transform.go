package etl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-query/internal/domain"
)

// columns maps our schema to candidate NOAA header names, newest first.
// NOAA has renamed columns across compilation vintages; the first candidate
// present in the header wins (the original ETL did the same).
var columns = map[string][]string{
	"event_id":        {"EVENT_ID"},
	"state":           {"STATE"},
	"event_type":      {"EVENT_TYPE"},
	"episode_id":      {"EPISODE_ID"},
	"cz_name":         {"CZ_NAME"},
	"begin_date_time": {"BEGIN_DATE_TIME", "BEGIN_DATE"},
	"end_date_time":   {"END_DATE_TIME", "END_DATE"},
	"injuries_direct": {"INJURIES_DIRECT"},
	"deaths_direct":   {"DEATHS_DIRECT"},
	"damage_property": {"DAMAGE_PROPERTY"},
	"magnitude":       {"MAGNITUDE"},
	"latitude":        {"BEGIN_LAT", "BEGIN_LATITUDE", "LATITUDE"},
	"longitude":       {"BEGIN_LON", "BEGIN_LONGITUDE", "LONGITUDE"},
}

var requiredColumns = []string{"event_id", "event_type", "begin_date_time"}

// columnIndex resolves the schema against a CSV header row.
type columnIndex map[string]int

// resolveColumns maps schema fields to header positions. Missing required
// columns fail the whole file; missing optional ones null out per-row.
func resolveColumns(header []string) (columnIndex, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToUpper(strings.TrimSpace(h))] = i
	}

	idx := make(columnIndex)
	for field, candidates := range columns {
		for _, c := range candidates {
			if i, ok := byName[c]; ok {
				idx[field] = i
				break
			}
		}
	}

	for _, field := range requiredColumns {
		if _, ok := idx[field]; !ok {
			return nil, fmt.Errorf("missing required column %s (candidates %v)", field, columns[field])
		}
	}
	return idx, nil
}

func (idx columnIndex) value(row []string, field string) string {
	i, ok := idx[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeRow converts one CSV row into a StormEvent. Rows without an id or
// a parseable begin time are unusable and reported as errors so the caller
// can skip and count them, the way bad records are skipped rather than
// aborting the batch.
func normalizeRow(idx columnIndex, row []string) (domain.StormEvent, error) {
	id := idx.value(row, "event_id")
	if id == "" {
		return domain.StormEvent{}, fmt.Errorf("missing event_id")
	}

	begin, ok := parseNOAATimestamp(idx.value(row, "begin_date_time"))
	if !ok {
		return domain.StormEvent{}, fmt.Errorf("event %s: unparseable begin_date_time %q", id, idx.value(row, "begin_date_time"))
	}
	end, ok := parseNOAATimestamp(idx.value(row, "end_date_time"))
	if !ok {
		end = begin
	}

	eventType := idx.value(row, "event_type")

	ev := domain.StormEvent{
		EventID:        id,
		State:          idx.value(row, "state"),
		EventType:      eventType,
		EpisodeID:      idx.value(row, "episode_id"),
		CZName:         idx.value(row, "cz_name"),
		BeginDateTime:  begin,
		EndDateTime:    end,
		InjuriesDirect: parseIntOrZero(idx.value(row, "injuries_direct")),
		DeathsDirect:   parseIntOrZero(idx.value(row, "deaths_direct")),
		DamageProperty: idx.value(row, "damage_property"),
		Magnitude:      parseFloatOrNull(idx.value(row, "magnitude")),
		Latitude:       parseCoordinate(idx.value(row, "latitude"), 90),
		Longitude:      parseCoordinate(idx.value(row, "longitude"), 180),
		Year:           begin.Year(),
		EventTypePart:  domain.PartitionKey(eventType),
	}
	return ev, nil
}

// parseFloatOrNull parses a float, treating empty, "UNK", and garbage as
// NULL. Never zero: zero is a measured value.
func parseFloatOrNull(s string) *float64 {
	if s == "" || strings.EqualFold(s, "UNK") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseCoordinate parses a latitude or longitude, nulling values outside
// [-bound, bound]. NOAA files contain the occasional fat-fingered
// coordinate; an impossible position is worse than an absent one.
func parseCoordinate(s string, bound float64) *float64 {
	v := parseFloatOrNull(s)
	if v == nil {
		return nil
	}
	if *v < -bound || *v > bound {
		return nil
	}
	return v
}

func parseIntOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var noaaTimestampLayouts = []string{
	"02-Jan-06 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseNOAATimestamp handles the "28-APR-23 14:30:00" style NOAA uses, plus
// ISO fallbacks seen in older vintages. Month abbreviations arrive
// uppercase and must be title-cased for time.Parse.
func parseNOAATimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	s = normalizeMonthCase(s)
	for _, layout := range noaaTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeMonthCase rewrites "28-APR-23" to "28-Apr-23" so the dd-Mon-yy
// layout matches. Strings without a month token pass through untouched.
func normalizeMonthCase(s string) string {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 || len(parts[1]) != 3 {
		return s
	}
	month := strings.ToUpper(parts[1][:1]) + strings.ToLower(parts[1][1:])
	return parts[0] + "-" + month + "-" + parts[2]
}
