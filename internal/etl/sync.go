package etl

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SyncToS3 uploads every Parquet file under localDir to the s3://bucket/prefix
// destination, preserving the partition layout so Athena's partition
// projection sees the same tree DuckDB would.
func SyncToS3(ctx context.Context, uploader *manager.Uploader, localDir, dest string, logger *slog.Logger) (int, error) {
	rest, ok := strings.CutPrefix(dest, "s3://")
	if !ok {
		return 0, fmt.Errorf("destination is not an s3 uri: %q", dest)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return 0, fmt.Errorf("missing bucket in %q", dest)
	}
	prefix = strings.TrimSuffix(prefix, "/")

	uploaded := 0
	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".parquet") {
			return nil
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" {
			key = prefix + "/" + key
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}

		logger.Info("uploaded", "key", key)
		uploaded++
		return nil
	})
	return uploaded, err
}
