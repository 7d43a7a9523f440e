package javart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/paths"
	"github.com/firemods/firecraft-launcher/internal/testutil"
)

func TestRequiredMajor(t *testing.T) {
	tests := []struct {
		game string
		want int
	}{
		{"1.21.1", 21},
		{"1.20.5", 21},
		{"1.20.4", 17},
		{"1.20.1", 17},
		{"1.18", 17},
		{"1.17.1", 16},
		{"1.16.5", 8},
		{"1.8.9", 8},
		{"24w14a", 21},
	}
	for _, tt := range tests {
		if got := RequiredMajor(tt.game); got != tt.want {
			t.Errorf("RequiredMajor(%q) = %d, want %d", tt.game, got, tt.want)
		}
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		version string
		major   int
		wantErr bool
	}{
		{
			name:    "modern openjdk",
			output:  "openjdk version \"21.0.2\" 2024-01-16 LTS\nOpenJDK Runtime Environment Temurin-21.0.2+13",
			version: "21.0.2",
			major:   21,
		},
		{
			name:    "legacy",
			output:  "java version \"1.8.0_392\"\nJava(TM) SE Runtime Environment",
			version: "1.8.0_392",
			major:   8,
		},
		{
			name:    "bare major",
			output:  "openjdk version \"17\" 2021-09-14",
			version: "17",
			major:   17,
		},
		{
			name:    "early access",
			output:  "openjdk version \"22-ea\" 2024-03-19",
			version: "22-ea",
			major:   22,
		},
		{
			name:    "garbage",
			output:  "command not found",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ver, major, err := ParseVersion(tt.output)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVersion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ver != tt.version || major != tt.major {
				t.Errorf("ParseVersion() = %q, %d, want %q, %d", ver, major, tt.version, tt.major)
			}
		})
	}
}

// fakeJava writes placeholder executables and answers probes from a table
func fakeJava(t *testing.T, m *Manager, versions map[string]string) {
	t.Helper()
	for path := range versions {
		testutil.WriteFile(t, path, "#!/bin/sh\n")
	}
	m.probe = func(ctx context.Context, path string) (string, error) {
		v, ok := versions[path]
		if !ok {
			return "", errors.New("not a test runtime")
		}
		return fmt.Sprintf("openjdk version %q", v), nil
	}
}

func TestLocate(t *testing.T) {
	t.Setenv("JAVA_HOME", "")
	t.Setenv("PATH", "")

	dataDir := t.TempDir()
	configured := filepath.Join(t.TempDir(), "custom", paths.JavaBinary())
	bundled := filepath.Join(paths.RuntimeDir(dataDir), "java-21", "bin", paths.JavaBinary())

	m := New(Options{DataDir: dataDir, JavaPath: configured}, nil)
	fakeJava(t, m, map[string]string{
		configured: "1.8.0_392",
		bundled:    "21.0.2",
	})

	rt, err := m.Locate(context.Background(), "1.16.5")
	if err != nil {
		t.Fatalf("Locate(1.16.5) error = %v", err)
	}
	if rt.Path != configured || rt.Major != 8 {
		t.Errorf("Locate(1.16.5) = %+v, want configured java 8", rt)
	}

	rt, err = m.Locate(context.Background(), "1.21.1")
	if err != nil {
		t.Fatalf("Locate(1.21.1) error = %v", err)
	}
	if rt.Path != bundled || rt.Major != 21 {
		t.Errorf("Locate(1.21.1) = %+v, want bundled java 21", rt)
	}
}

func TestLocateNotFound(t *testing.T) {
	t.Setenv("JAVA_HOME", "")
	t.Setenv("PATH", "")

	dataDir := t.TempDir()
	old := filepath.Join(paths.RuntimeDir(dataDir), "java-17", "bin", paths.JavaBinary())
	m := New(Options{DataDir: dataDir}, nil)
	fakeJava(t, m, map[string]string{old: "17.0.10"})

	_, err := m.Locate(context.Background(), "1.21.1")
	if !errors.Is(err, ErrJavaNotFound) {
		t.Fatalf("Locate() error = %v, want ErrJavaNotFound", err)
	}
	if !strings.Contains(err.Error(), "java 21") {
		t.Errorf("error %q should name the required version", err)
	}
}

func TestDownloadURL(t *testing.T) {
	m := New(Options{APIURL: "https://api.example/v3/"}, nil)
	got := m.DownloadURL(21)
	want := fmt.Sprintf("https://api.example/v3/binary/latest/21/ga/%s/%s/jre/hotspot/normal/eclipse",
		adoptiumOS(runtime.GOOS), adoptiumArch(runtime.GOARCH))
	if got != want {
		t.Errorf("DownloadURL() = %q, want %q", got, want)
	}
}

func TestInstall(t *testing.T) {
	dataDir := t.TempDir()
	m := New(Options{DataDir: dataDir}, nil)

	top := "jdk-21.0.2+13-jre/"
	files := map[string]string{
		top + "bin/" + paths.JavaBinary(): "binary",
		top + "release":                   "JAVA_VERSION=21.0.2",
	}
	m.fetch = func(ctx context.Context, url, dir, pattern string, cb download.ProgressCallback) (string, error) {
		target := filepath.Join(dir, strings.Replace(pattern, "*", "test", 1))
		var data []byte
		if strings.HasSuffix(target, ".zip") {
			data = testutil.ZipBytes(t, files)
		} else {
			data = testutil.TarGzBytes(t, files)
		}
		if cb != nil {
			cb(int64(len(data)), int64(len(data)), 1)
		}
		return target, os.WriteFile(target, data, 0o644)
	}
	m.probe = func(ctx context.Context, path string) (string, error) {
		return `openjdk version "21.0.2" 2024-01-16`, nil
	}

	var reported bool
	rt, err := m.Install(context.Background(), 21, func(done, total int64, fraction float64) { reported = true })
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	want := filepath.Join(paths.RuntimeDir(dataDir), "java-21", "bin", paths.JavaBinary())
	if rt.Path != want || rt.Major != 21 {
		t.Errorf("Install() = %+v, want %s", rt, want)
	}
	if !reported {
		t.Error("Install() did not forward progress")
	}

	entries, _ := os.ReadDir(paths.RuntimeDir(dataDir))
	if len(entries) != 1 {
		t.Errorf("runtime dir has %d entries, want only the unpacked runtime", len(entries))
	}
}
