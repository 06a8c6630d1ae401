package etl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/storm-data-query/internal/domain"
)

// eventRow is the Parquet representation of a StormEvent. The partition
// keys (year, event_type_part) are encoded in the directory layout, not in
// the file, so hive partitioning can project them without column collisions.
type eventRow struct {
	EventID        string    `parquet:"event_id,zstd"`
	State          string    `parquet:"state,zstd"`
	EventType      string    `parquet:"event_type,zstd"`
	EpisodeID      string    `parquet:"episode_id,zstd"`
	CZName         string    `parquet:"cz_name,zstd"`
	BeginDateTime  time.Time `parquet:"begin_date_time,timestamp"`
	EndDateTime    time.Time `parquet:"end_date_time,timestamp"`
	InjuriesDirect int32     `parquet:"injuries_direct"`
	DeathsDirect   int32     `parquet:"deaths_direct"`
	DamageProperty string    `parquet:"damage_property,optional,zstd"`
	Magnitude      *float64  `parquet:"magnitude,optional"`
	Latitude       *float64  `parquet:"latitude,optional"`
	Longitude      *float64  `parquet:"longitude,optional"`
}

func toRow(ev domain.StormEvent) eventRow {
	return eventRow{
		EventID:        ev.EventID,
		State:          ev.State,
		EventType:      ev.EventType,
		EpisodeID:      ev.EpisodeID,
		CZName:         ev.CZName,
		BeginDateTime:  ev.BeginDateTime,
		EndDateTime:    ev.EndDateTime,
		InjuriesDirect: int32(ev.InjuriesDirect),
		DeathsDirect:   int32(ev.DeathsDirect),
		DamageProperty: ev.DamageProperty,
		Magnitude:      ev.Magnitude,
		Latitude:       ev.Latitude,
		Longitude:      ev.Longitude,
	}
}

type partitionKey struct {
	year int
	part string
}

// PartitionWriter routes events into one Parquet file per
// (year, event_type_part) partition under the dataset root:
//
//	<root>/year=2023/event_type_part=tornado/part-00000.parquet
type PartitionWriter struct {
	root    string
	writers map[partitionKey]*partitionFile
	rows    int64
}

type partitionFile struct {
	file   *os.File
	writer *parquet.GenericWriter[eventRow]
}

// NewPartitionWriter creates a writer rooted at the dataset directory.
func NewPartitionWriter(root string) *PartitionWriter {
	return &PartitionWriter{
		root:    root,
		writers: make(map[partitionKey]*partitionFile),
	}
}

// Write appends one event to its partition file, creating it on first use.
func (w *PartitionWriter) Write(ev domain.StormEvent) error {
	key := partitionKey{year: ev.Year, part: ev.EventTypePart}

	pf, ok := w.writers[key]
	if !ok {
		dir := filepath.Join(w.root,
			fmt.Sprintf("year=%d", key.year),
			fmt.Sprintf("event_type_part=%s", key.part),
		)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create partition dir: %w", err)
		}

		f, err := os.Create(filepath.Join(dir, "part-00000.parquet"))
		if err != nil {
			return fmt.Errorf("create partition file: %w", err)
		}

		pf = &partitionFile{
			file:   f,
			writer: parquet.NewGenericWriter[eventRow](f, parquet.Compression(&parquet.Zstd)),
		}
		w.writers[key] = pf
	}

	if _, err := pf.writer.Write([]eventRow{toRow(ev)}); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns the number of rows written so far.
func (w *PartitionWriter) Rows() int64 { return w.rows }

// Partitions returns the partition directories written, sorted, relative to
// the root.
func (w *PartitionWriter) Partitions() []string {
	parts := make([]string, 0, len(w.writers))
	for key := range w.writers {
		parts = append(parts, filepath.Join(
			fmt.Sprintf("year=%d", key.year),
			fmt.Sprintf("event_type_part=%s", key.part),
		))
	}
	sort.Strings(parts)
	return parts
}

// Close flushes and closes every partition file. The first error wins but
// every file is still closed.
func (w *PartitionWriter) Close() error {
	var firstErr error
	for _, pf := range w.writers {
		if err := pf.writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close parquet writer: %w", err)
		}
		if err := pf.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close partition file: %w", err)
		}
	}
	return firstErr
}
