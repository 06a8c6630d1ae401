package etl

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const listingPage = `<html><body>
<a href="StormEvents_details-ftp_v1.0_d2023_c20240117.csv.gz">old</a>
<a href="StormEvents_details-ftp_v1.0_d2023_c20240716.csv.gz">new</a>
<a href="StormEvents_details-ftp_v1.0_d2022_c20240301.csv.gz">other year</a>
<a href="StormEvents_locations-ftp_v1.0_d2023_c20240716.csv.gz">wrong kind</a>
</body></html>`

func TestLatestFilename_PicksNewestCompilation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, discardLogger())
	name, err := f.LatestFilename(context.Background(), 2023)
	require.NoError(t, err)
	assert.Equal(t, "StormEvents_details-ftp_v1.0_d2023_c20240716.csv.gz", name)
}

func TestLatestFilename_NoMatchForYear(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, discardLogger())
	_, err := f.LatestFilename(context.Background(), 1999)
	require.Error(t, err)
}

func TestDownload_WritesAndCaches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.URL, discardLogger())

	path, err := f.Download(context.Background(), "file.csv.gz", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "file.csv.gz"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Second call reuses the file on disk.
	_, err = f.Download(context.Background(), "file.csv.gz", dir)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestDownload_ErrorStatusLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(srv.URL, discardLogger())

	_, err := f.Download(context.Background(), "missing.csv.gz", dir)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "missing.csv.gz"))
	assert.True(t, os.IsNotExist(statErr))
}
