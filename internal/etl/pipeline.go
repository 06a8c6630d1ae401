// Package etl converts NOAA StormEvents details CSV files into the
// partitioned Parquet dataset the API queries. It is a batch job: rows are
// write-once and the API never mutates them.
package etl

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Result summarizes one ETL run.
type Result struct {
	Rows    int64
	Skipped int64
}

// Pipeline orchestrates fetch -> normalize -> write for a set of years.
type Pipeline struct {
	fetcher *Fetcher
	outDir  string
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline writing into outDir.
func NewPipeline(fetcher *Fetcher, outDir string, logger *slog.Logger) *Pipeline {
	return &Pipeline{fetcher: fetcher, outDir: outDir, logger: logger}
}

// Run processes each year in order. A failed year aborts the run; partially
// written partitions from earlier years remain valid because each year owns
// its own partition directories.
func (p *Pipeline) Run(ctx context.Context, years []int) (Result, error) {
	var total Result
	for _, year := range years {
		res, err := p.processYear(ctx, year)
		total.Rows += res.Rows
		total.Skipped += res.Skipped
		if err != nil {
			return total, fmt.Errorf("year %d: %w", year, err)
		}
	}
	return total, nil
}

func (p *Pipeline) processYear(ctx context.Context, year int) (Result, error) {
	filename, err := p.fetcher.LatestFilename(ctx, year)
	if err != nil {
		return Result{}, err
	}

	path, err := p.fetcher.Download(ctx, filename, p.outDir+"/.downloads")
	if err != nil {
		return Result{}, err
	}

	writer := NewPartitionWriter(p.outDir)
	res, err := p.transformFile(ctx, path, writer)
	if closeErr := writer.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return res, err
	}

	p.logger.Info("year complete",
		"year", year,
		"rows", res.Rows,
		"skipped", res.Skipped,
		"partitions", len(writer.Partitions()),
	)
	return res, nil
}

// transformFile streams a (possibly gzipped) CSV through normalization into
// the writer. Bad rows are skipped and counted, never fatal: one mangled
// record must not sink a 60k-row year.
func (p *Pipeline) transformFile(ctx context.Context, path string, writer *PartitionWriter) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Result{}, fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	return p.transform(ctx, csv.NewReader(reader), writer)
}

func (p *Pipeline) transform(ctx context.Context, r *csv.Reader, writer *PartitionWriter) (Result, error) {
	r.FieldsPerRecord = -1 // NOAA rows occasionally have trailing fields

	header, err := r.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read header: %w", err)
	}
	idx, err := resolveColumns(header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		row, err := r.Read()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			res.Skipped++
			p.logger.Warn("unreadable csv row, skipping", "error", err)
			continue
		}

		ev, err := normalizeRow(idx, row)
		if err != nil {
			res.Skipped++
			p.logger.Warn("bad row, skipping", "error", err)
			continue
		}

		if err := writer.Write(ev); err != nil {
			return res, err
		}
		res.Rows++
	}
}
