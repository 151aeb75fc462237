package geoip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// EnsureDB makes sure a usable GeoIP database sits at path: a file younger
// than maxAge is kept, anything missing or stale is re-downloaded from url.
// The download honors ctx, so daemon shutdown aborts it.
func EnsureDB(ctx context.Context, path, url string, maxAge time.Duration) error {
	if fresh, err := isFresh(path, maxAge); err != nil {
		return err
	} else if fresh {
		log.Info().Str("path", path).Msg("GeoIP database is up to date")
		return nil
	}

	log.Info().Str("path", path).Str("url", url).Msg("Downloading GeoIP database...")

	return downloadFile(ctx, path, url)
}

// isFresh reports whether the database file exists and is younger than
// maxAge.
func isFresh(path string, maxAge time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return time.Since(info.ModTime()) < maxAge, nil
}

// downloadFile fetches url into path, staging through a temporary file so a
// partial download never replaces a working database.
func downloadFile(ctx context.Context, path, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download GeoIP database: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download GeoIP database: unexpected status %s", resp.Status)
	}

	tmpPath := path + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write GeoIP database: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}
