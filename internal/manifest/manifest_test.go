package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/firemods/firecraft-launcher/internal/testutil"
)

func TestFetch(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.SetJSON(t, "/version.json", map[string]any{
		"firemods-neoforge": map[string]string{"version": "3", "downloadUrl": "https://cdn.example/fm-3.zip"},
		"firelite-forge":    map[string]string{"version": "1.0.2", "downloadUrl": "https://cdn.example/fl.zip"},
	})

	m, err := NewClient(server.Endpoint("/version.json"), 0).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	e, ok := m.Lookup("firemods-neoforge")
	if !ok {
		t.Fatal("Lookup(firemods-neoforge) not found")
	}
	if e.Version != "3" || e.DownloadURL != "https://cdn.example/fm-3.zip" {
		t.Errorf("Lookup() = %+v", e)
	}
	if _, ok := m.Lookup("vanilla"); ok {
		t.Error("Lookup(vanilla) should not be found")
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *testutil.MockServer)
	}{
		{
			name:  "server error",
			setup: func(s *testutil.MockServer) { s.SetError("/version.json", http.StatusInternalServerError) },
		},
		{
			name:  "not found",
			setup: func(s *testutil.MockServer) {},
		},
		{
			name: "invalid json",
			setup: func(s *testutil.MockServer) {
				s.SetRaw("/version.json", http.StatusOK, []byte("<html>"), nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockServer(t)
			tt.setup(server)

			if _, err := NewClient(server.Endpoint("/version.json"), 0).Fetch(context.Background()); err == nil {
				t.Error("Fetch() expected error")
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(server.URL, 100*time.Millisecond).Fetch(context.Background())
	if err == nil {
		t.Fatal("Fetch() expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() took %v, timeout not honoured", elapsed)
	}
}

func TestLookupIncompleteEntry(t *testing.T) {
	m := Manifest{"firemods-neoforge": {Version: "3"}}
	if _, ok := m.Lookup("firemods-neoforge"); ok {
		t.Error("Lookup() should reject entry without downloadUrl")
	}
}
