package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func newFileServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pack.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestFile tests a plain download
func TestFile(t *testing.T) {
	srv := newFileServer(t, "modpack-bytes")
	target := filepath.Join(t.TempDir(), "pack.zip")

	if err := File(context.Background(), srv.URL+"/pack.zip", target); err != nil {
		t.Fatalf("File() error = %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read target: %v", err)
	}
	if string(data) != "modpack-bytes" {
		t.Errorf("content = %q", data)
	}
}

// TestFile_Overwrites tests that an existing file is replaced, not resumed
func TestFile_Overwrites(t *testing.T) {
	srv := newFileServer(t, "new")
	target := filepath.Join(t.TempDir(), "pack.zip")
	if err := os.WriteFile(target, []byte("old-and-longer"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := File(context.Background(), srv.URL+"/pack.zip", target); err != nil {
		t.Fatalf("File() error = %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "new" {
		t.Errorf("content = %q, want overwritten", data)
	}
}

// TestFileWithProgress tests that the final callback reports completion
func TestFileWithProgress(t *testing.T) {
	body := strings.Repeat("x", 64*1024)
	srv := newFileServer(t, body)
	target := filepath.Join(t.TempDir(), "pack.zip")

	var mu sync.Mutex
	var last float64
	var calls int
	err := FileWithProgress(context.Background(), srv.URL+"/pack.zip", target, func(done, total int64, fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = fraction
		if total != int64(len(body)) {
			t.Errorf("total = %d, want %d", total, len(body))
		}
	})
	if err != nil {
		t.Fatalf("FileWithProgress() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatal("callback never called")
	}
	if last != 1 {
		t.Errorf("last fraction = %v, want 1", last)
	}
}

// TestFile_HTTPError tests that a 404 is reported as an error
func TestFile_HTTPError(t *testing.T) {
	srv := newFileServer(t, "unused")
	target := filepath.Join(t.TempDir(), "missing.zip")

	err := File(context.Background(), srv.URL+"/missing.zip", target)
	if err == nil {
		t.Fatal("File() expected error for 404")
	}
	if !strings.Contains(err.Error(), "download failed") {
		t.Errorf("error = %v", err)
	}
}

// TestFile_Cancelled tests that a cancelled context aborts the download
func TestFile_Cancelled(t *testing.T) {
	srv := newFileServer(t, "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := File(ctx, srv.URL+"/pack.zip", filepath.Join(t.TempDir(), "pack.zip"))
	if err == nil {
		t.Fatal("File() expected error for cancelled context")
	}
}

// TestToTemp tests download to a temp file and its cleanup on error
func TestToTemp(t *testing.T) {
	srv := newFileServer(t, "jre")
	dir := t.TempDir()

	path, err := ToTemp(context.Background(), srv.URL+"/pack.zip", dir, "jre-*.tar.gz", nil)
	if err != nil {
		t.Fatalf("ToTemp() error = %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasSuffix(path, ".tar.gz") {
		t.Errorf("path = %q, want a .tar.gz file in %q", path, dir)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "jre" {
		t.Errorf("content = %q", data)
	}

	if _, err := ToTemp(context.Background(), srv.URL+"/nope", dir, "jre-*.tar.gz", nil); err == nil {
		t.Error("ToTemp() expected error for 404")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("failed download left files behind: %d entries", len(entries))
	}
}
