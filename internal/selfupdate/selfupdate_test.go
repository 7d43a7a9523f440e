package selfupdate

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/firemods/firecraft-launcher/internal/testutil"
)

func releaseServer(t *testing.T, tag string, binary []byte) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"tag_name": %q, "assets": [{"name": "firecraft-test", "browser_download_url": "%s/bin"}]}`, tag, server.URL)
		case "/bin":
			w.Write(binary)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAssetFor(t *testing.T) {
	tests := []struct {
		goos, goarch, want string
	}{
		{"windows", "amd64", "firecraft-windows-amd64.exe"},
		{"linux", "amd64", "firecraft-linux-amd64"},
		{"darwin", "arm64", "firecraft-darwin-arm64"},
	}
	for _, tt := range tests {
		if got := AssetFor(tt.goos, tt.goarch); got != tt.want {
			t.Errorf("AssetFor(%s, %s) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		current string
		want    bool
	}{
		{"same version", "v1.0.0", "1.0.0", false},
		{"newer", "v1.1.0", "1.0.0", true},
		{"older is still different", "v0.9.0", "1.0.0", true},
		{"empty tag", "", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := releaseServer(t, tt.tag, nil)
			u := New(Config{ReleasesAPIURL: server.URL + "/latest", CurrentVersion: tt.current, AssetName: "firecraft-test"}, nil)

			release, available, err := u.Check(context.Background())
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if available != tt.want {
				t.Errorf("Check() available = %v, want %v", available, tt.want)
			}
			if release.TagName != tt.tag {
				t.Errorf("release tag = %q", release.TagName)
			}
		})
	}
}

func TestCheckErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`not valid json`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	for _, url := range []string{server.URL + "/error", server.URL + "/broken", "http://127.0.0.1:1/nonexistent"} {
		u := New(Config{ReleasesAPIURL: url, CurrentVersion: "1.0.0"}, nil)
		if _, _, err := u.Check(context.Background()); err == nil {
			t.Errorf("Check(%s) should fail", url)
		}
	}
}

func TestApply(t *testing.T) {
	binary := bytes.Repeat([]byte("x"), minBinarySize+10)
	server := releaseServer(t, "v2.0.0", binary)

	dir := t.TempDir()
	exe := filepath.Join(dir, "firecraft")
	testutil.WriteFile(t, exe, "old binary")

	u := New(Config{ReleasesAPIURL: server.URL + "/latest", CurrentVersion: "1.0.0", AssetName: "firecraft-test"}, nil)
	u.exe = func() (string, error) { return exe, nil }

	release, available, err := u.Check(context.Background())
	if err != nil || !available {
		t.Fatalf("Check() = %v, %v", available, err)
	}
	got, err := u.Apply(context.Background(), release, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != exe {
		if resolved, _ := filepath.EvalSymlinks(exe); got != resolved {
			t.Errorf("Apply() path = %q, want %q", got, exe)
		}
	}

	data, err := os.ReadFile(exe)
	if err != nil || len(data) != len(binary) {
		t.Errorf("binary not replaced: %d bytes, %v", len(data), err)
	}
	testutil.AssertFileContent(t, exe+".old", "old binary")
	testutil.AssertFileNotExists(t, exe+".new")
}

func TestApplyRejects(t *testing.T) {
	server := releaseServer(t, "v2.0.0", []byte("<html>error</html>"))
	dir := t.TempDir()
	exe := filepath.Join(dir, "firecraft")
	testutil.WriteFile(t, exe, "old binary")

	u := New(Config{ReleasesAPIURL: server.URL + "/latest", AssetName: "firecraft-test"}, nil)
	u.exe = func() (string, error) { return exe, nil }
	release, err := u.Latest(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	_, err = u.Apply(context.Background(), release, nil)
	if err == nil || !strings.Contains(err.Error(), "too small") {
		t.Errorf("Apply() error = %v, want size rejection", err)
	}
	testutil.AssertFileContent(t, exe, "old binary")

	u.cfg.AssetName = "firecraft-other"
	if _, err := u.Apply(context.Background(), release, nil); err == nil {
		t.Error("Apply() without a matching asset should fail")
	}
}

func TestCleanupOld(t *testing.T) {
	t.Setenv(CleanupEnv, "0")
	// Should not panic or touch anything
	CleanupOld()
}
