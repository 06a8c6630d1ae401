// Command etl downloads NOAA StormEvents details files and converts them to
// the partitioned Parquet dataset, optionally syncing the result to S3 for
// the Athena deployment.
//
// Usage:
//
//	go run ./cmd/etl -years 2022,2023 -out data/parquet/stormevents
//	go run ./cmd/etl -years 2023 -out data/parquet/stormevents \
//	  -upload s3://my-bucket/stormevents
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/couchcryptid/storm-data-query/internal/etl"
)

func main() {
	if err := run(); err != nil {
		slog.Error("etl failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	yearsFlag := flag.String("years", "", "comma-separated years to process, e.g. 2022,2023")
	out := flag.String("out", "data/parquet/stormevents", "dataset output directory")
	baseURL := flag.String("base-url", etl.DefaultBaseURL, "NOAA csvfiles directory URL")
	upload := flag.String("upload", "", "optional s3://bucket/prefix to sync the dataset to")
	flag.Parse()

	years, err := parseYears(*yearsFlag)
	if err != nil {
		flag.Usage()
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := etl.NewPipeline(etl.NewFetcher(*baseURL, logger), *out, logger)
	res, err := pipeline.Run(ctx, years)
	if err != nil {
		return err
	}
	logger.Info("etl complete", "rows", res.Rows, "skipped", res.Skipped)

	if *upload == "" {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}
	uploader := manager.NewUploader(s3.NewFromConfig(awsCfg))

	n, err := etl.SyncToS3(ctx, uploader, *out, *upload, logger)
	if err != nil {
		return err
	}
	logger.Info("sync complete", "files", n, "dest", *upload)
	return nil
}

func parseYears(s string) ([]int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing required flag: -years")
	}
	var years []int
	for _, part := range strings.Split(s, ",") {
		year, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || year < 1950 || year > 2100 {
			return nil, fmt.Errorf("invalid year %q", part)
		}
		years = append(years, year)
	}
	return years, nil
}
