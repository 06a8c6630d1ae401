package etl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// DefaultBaseURL is the NCEI StormEvents CSV directory.
const DefaultBaseURL = "https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles"

// Fetcher locates and downloads NOAA StormEvents details files.
type Fetcher struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. An empty baseURL selects the NCEI directory.
func NewFetcher(baseURL string, logger *slog.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

// LatestFilename scans the directory listing for the newest details
// compilation for a year. NOAA republishes the same year under increasing
// c<YYYYMMDD> suffixes; the lexicographically greatest one is the newest.
func (f *Fetcher) LatestFilename(ctx context.Context, year int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/", nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch listing: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read listing: %w", err)
	}

	pattern := regexp.MustCompile(fmt.Sprintf(`StormEvents_details-ftp_v1\.0_d%d_c\d{8}\.csv\.gz`, year))
	matches := pattern.FindAllString(string(body), -1)
	if len(matches) == 0 {
		return "", fmt.Errorf("no details file for %d at %s", year, f.baseURL)
	}

	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// Download fetches a file into destDir, returning the local path. An
// existing file is reused so reruns do not re-download multi-hundred-MB
// archives.
func (f *Fetcher) Download(ctx context.Context, filename, destDir string) (string, error) {
	dest := filepath.Join(destDir, filename)
	if _, err := os.Stat(dest); err == nil {
		f.logger.Info("using cached download", "file", dest)
		return dest, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	url := f.baseURL + "/" + filename
	f.logger.Info("downloading", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", filename, resp.StatusCode)
	}

	// Write via a temp file so an interrupted download never poses as a
	// cached archive.
	tmp, err := os.CreateTemp(destDir, filename+".tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	return dest, nil
}
