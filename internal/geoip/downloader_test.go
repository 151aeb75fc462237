package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnsureDBDownloadsMissingFile(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("mmdb-bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "test.mmdb")

	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err != nil {
		t.Fatalf("EnsureDB err=%v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(content) != "mmdb-bytes" {
		t.Errorf("content=%q, want %q", content, "mmdb-bytes")
	}

	// fresh file: second call must not download again
	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err != nil {
		t.Fatalf("EnsureDB on fresh file err=%v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hit %d times, want 1", got)
	}
}

func TestEnsureDBRefreshesStaleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "test.mmdb")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, stale, stale); err != nil {
		t.Fatalf("age file: %v", err)
	}

	if err := EnsureDB(context.Background(), path, srv.URL, 24*time.Hour); err != nil {
		t.Fatalf("EnsureDB err=%v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "new" {
		t.Errorf("content=%q, want refreshed copy", content)
	}
}

func TestEnsureDBBadStatusKeepsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "test.mmdb")

	if err := EnsureDB(context.Background(), path, srv.URL, time.Hour); err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("database file should not exist after failed download")
	}
}

func TestEnsureDBHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("too late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "test.mmdb")
	if err := EnsureDB(ctx, path, srv.URL, time.Hour); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
