// Package javart finds a Java runtime able to run a given game version and
// installs Eclipse Temurin when none is found.
package javart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/extract"
	"github.com/firemods/firecraft-launcher/internal/logging"
	"github.com/firemods/firecraft-launcher/internal/paths"
)

// ErrJavaNotFound means no runtime new enough was found
var ErrJavaNotFound = errors.New("java runtime not found")

// DefaultAPIURL is the Adoptium binary API
const DefaultAPIURL = "https://api.adoptium.net/v3"

var versionPattern = regexp.MustCompile(`version "([^"]+)"`)

// Runtime is a probed java executable
type Runtime struct {
	Path    string
	Version string
	Major   int
}

// RequiredMajor returns the Java major version a game version needs.
// Unparseable versions (snapshots) get the newest requirement.
func RequiredMajor(gameVersion string) int {
	v := "v" + gameVersion
	if !semver.IsValid(v) {
		return 21
	}
	switch {
	case semver.Compare(v, "v1.20.5") >= 0:
		return 21
	case semver.Compare(v, "v1.18") >= 0:
		return 17
	case semver.Compare(v, "v1.17") >= 0:
		return 16
	default:
		return 8
	}
}

// ParseVersion extracts the version string and major version from
// `java -version` output. Legacy "1.x" versions report x as major.
func ParseVersion(output string) (string, int, error) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return "", 0, fmt.Errorf("unrecognized java version output: %q", firstLine(output))
	}
	raw := m[1]

	numeric := raw
	if i := strings.IndexFunc(numeric, func(r rune) bool { return r != '.' && (r < '0' || r > '9') }); i >= 0 {
		numeric = numeric[:i]
	}
	numeric = strings.TrimSuffix(numeric, ".")
	if strings.HasPrefix(numeric, "1.") {
		numeric = strings.TrimPrefix(numeric, "1.")
	}
	major := strings.TrimPrefix(semver.Major("v"+numeric), "v")
	n, err := strconv.Atoi(major)
	if err != nil {
		return "", 0, fmt.Errorf("unrecognized java version: %q", raw)
	}
	return raw, n, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

// Options configures a Manager
type Options struct {
	DataDir string
	// JavaPath is a user configured executable, tried first
	JavaPath string
	APIURL   string
}

// Manager locates and installs runtimes
type Manager struct {
	opts   Options
	logger *zap.Logger
	probe  func(ctx context.Context, path string) (string, error)
	fetch  func(ctx context.Context, url, dir, pattern string, cb download.ProgressCallback) (string, error)
}

// New creates a Manager
func New(opts Options, logger *zap.Logger) *Manager {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	return &Manager{
		opts:   opts,
		logger: logging.OrNop(logger),
		probe:  probeJava,
		fetch:  download.ToTemp,
	}
}

func probeJava(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "-version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", path, err)
	}
	return string(out), nil
}

// candidates lists java executables in search order
func (m *Manager) candidates() []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(m.opts.JavaPath)
	if m.opts.DataDir != "" {
		dir := paths.RuntimeDir(m.opts.DataDir)
		for _, pattern := range []string{
			filepath.Join(dir, "*", "bin", paths.JavaBinary()),
			filepath.Join(dir, "*", "Contents", "Home", "bin", paths.JavaBinary()),
		} {
			matches, _ := filepath.Glob(pattern)
			// Newest install first: names are java-<major>.
			for i := len(matches) - 1; i >= 0; i-- {
				add(matches[i])
			}
		}
	}
	if home := os.Getenv("JAVA_HOME"); home != "" {
		add(filepath.Join(home, "bin", paths.JavaBinary()))
	}
	if p, err := exec.LookPath("java"); err == nil {
		add(p)
	}
	return out
}

// Locate returns the first runtime whose major version is at least the one
// gameVersion requires.
func (m *Manager) Locate(ctx context.Context, gameVersion string) (Runtime, error) {
	required := RequiredMajor(gameVersion)
	for _, path := range m.candidates() {
		if !paths.Exists(path) {
			continue
		}
		out, err := m.probe(ctx, path)
		if err != nil {
			m.logger.Debug("java probe failed", zap.String("path", path), zap.Error(err))
			continue
		}
		ver, major, err := ParseVersion(out)
		if err != nil {
			m.logger.Debug("java version unreadable", zap.String("path", path), zap.Error(err))
			continue
		}
		if major < required {
			m.logger.Debug("java too old", zap.String("path", path), zap.Int("major", major), zap.Int("required", required))
			continue
		}
		return Runtime{Path: path, Version: ver, Major: major}, nil
	}
	return Runtime{}, fmt.Errorf("%w: java %d or newer is required", ErrJavaNotFound, required)
}

// DownloadURL is the Adoptium URL of the latest JRE for major on this platform
func (m *Manager) DownloadURL(major int) string {
	return fmt.Sprintf("%s/binary/latest/%d/ga/%s/%s/jre/hotspot/normal/eclipse",
		strings.TrimSuffix(m.opts.APIURL, "/"), major, adoptiumOS(runtime.GOOS), adoptiumArch(runtime.GOARCH))
}

func adoptiumOS(goos string) string {
	if goos == "darwin" {
		return "mac"
	}
	return goos
}

func adoptiumArch(goarch string) string {
	switch goarch {
	case "amd64":
		return "x64"
	case "arm64":
		return "aarch64"
	case "386":
		return "x32"
	}
	return goarch
}

// Install downloads the latest JRE for major into the data directory and
// returns it once probed.
func (m *Manager) Install(ctx context.Context, major int, progress download.ProgressCallback) (Runtime, error) {
	if m.opts.DataDir == "" {
		return Runtime{}, errors.New("no data directory to install java into")
	}
	dir := paths.RuntimeDir(m.opts.DataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Runtime{}, fmt.Errorf("failed to create runtime dir: %w", err)
	}

	ext := ".tar.gz"
	if runtime.GOOS == "windows" {
		ext = ".zip"
	}
	url := m.DownloadURL(major)
	m.logger.Info("downloading java runtime", zap.Int("major", major), zap.String("url", url))
	archive, err := m.fetch(ctx, url, dir, fmt.Sprintf("java-%d-*%s", major, ext), progress)
	if err != nil {
		return Runtime{}, fmt.Errorf("failed to download java: %w", err)
	}
	defer os.Remove(archive)

	target := filepath.Join(dir, fmt.Sprintf("java-%d", major))
	if err := os.RemoveAll(target); err != nil {
		return Runtime{}, fmt.Errorf("failed to clear old runtime: %w", err)
	}
	opts := extract.Options{StripPrefix: true}
	if ext == ".zip" {
		err = extract.Zip(archive, target, opts)
	} else {
		err = extract.TarGz(archive, target, opts)
	}
	if err != nil {
		_ = os.RemoveAll(target)
		return Runtime{}, fmt.Errorf("failed to unpack java: %w", err)
	}

	for _, rel := range []string{
		filepath.Join("bin", paths.JavaBinary()),
		filepath.Join("Contents", "Home", "bin", paths.JavaBinary()),
	} {
		path := filepath.Join(target, rel)
		if !paths.Exists(path) {
			continue
		}
		out, err := m.probe(ctx, path)
		if err != nil {
			return Runtime{}, err
		}
		ver, got, err := ParseVersion(out)
		if err != nil {
			return Runtime{}, err
		}
		return Runtime{Path: path, Version: ver, Major: got}, nil
	}
	return Runtime{}, fmt.Errorf("%w: archive has no java executable", ErrJavaNotFound)
}
