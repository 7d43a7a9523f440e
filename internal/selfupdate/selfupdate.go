// Package selfupdate replaces the launcher binary with the latest GitHub release.
package selfupdate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/logging"
)

// CleanupEnv is set on the restarted process so it removes the old binary
const CleanupEnv = "FIRECRAFT_CLEANUP_OLD"

// minBinarySize guards against replacing ourselves with an error page
const minBinarySize = 1024 * 1024

// Config holds the configuration for self-update
type Config struct {
	ReleasesAPIURL string
	CurrentVersion string
	// AssetName is the release asset to install; AssetFor(runtime.GOOS, runtime.GOARCH) if empty
	AssetName string
}

// Release is the part of the GitHub release response we use
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	Body    string `json:"body"`
	Assets  []struct {
		Name               string `json:"name"`
		Size               int64  `json:"size"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

// Version is the tag without its leading "v"
func (r Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

// Asset returns the download URL of the named asset
func (r Release) Asset(name string) (string, bool) {
	for _, a := range r.Assets {
		if a.Name == name {
			return a.BrowserDownloadURL, true
		}
	}
	return "", false
}

// AssetFor names the release asset for a platform
func AssetFor(goos, goarch string) string {
	name := fmt.Sprintf("firecraft-%s-%s", goos, goarch)
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// Updater checks for and installs launcher releases
type Updater struct {
	cfg    Config
	client *resty.Client
	logger *zap.Logger
	// exe returns the path of the running binary
	exe func() (string, error)
}

// New creates an Updater
func New(cfg Config, logger *zap.Logger) *Updater {
	if cfg.AssetName == "" {
		cfg.AssetName = AssetFor(runtime.GOOS, runtime.GOARCH)
	}
	client := resty.New().
		SetTimeout(5*time.Second).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetHeader("User-Agent", "firecraft-launcher")
	return &Updater{cfg: cfg, client: client, logger: logging.OrNop(logger), exe: os.Executable}
}

// Latest fetches the latest release
func (u *Updater) Latest(ctx context.Context) (Release, error) {
	var release Release
	resp, err := u.client.R().SetContext(ctx).SetResult(&release).Get(u.cfg.ReleasesAPIURL)
	if err != nil {
		return Release{}, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	if resp.IsError() {
		return Release{}, fmt.Errorf("failed to fetch latest release: HTTP %d", resp.StatusCode())
	}
	return release, nil
}

// Check reports the latest release and whether it differs from the running
// version. Versions are compared as opaque strings.
func (u *Updater) Check(ctx context.Context) (Release, bool, error) {
	release, err := u.Latest(ctx)
	if err != nil {
		return Release{}, false, err
	}
	remote := release.Version()
	return release, remote != "" && remote != u.cfg.CurrentVersion, nil
}

// Apply downloads the release asset and swaps it in for the running binary.
// The old binary is kept as <exe>.old until CleanupOld runs.
func (u *Updater) Apply(ctx context.Context, release Release, progress download.ProgressCallback) (string, error) {
	url, ok := release.Asset(u.cfg.AssetName)
	if !ok {
		return "", fmt.Errorf("release %s has no asset %s", release.TagName, u.cfg.AssetName)
	}
	exePath, err := u.exe()
	if err != nil {
		return "", fmt.Errorf("failed to locate launcher binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exePath); err == nil {
		exePath = resolved
	}

	newExe := exePath + ".new"
	defer os.Remove(newExe)
	u.logger.Info("downloading launcher update", zap.String("version", release.Version()), zap.String("url", url))
	if err := download.FileWithProgress(ctx, url, newExe, progress); err != nil {
		return "", fmt.Errorf("failed to download update: %w", err)
	}

	info, err := os.Stat(newExe)
	if err != nil {
		return "", fmt.Errorf("failed to check update: %w", err)
	}
	if info.Size() < minBinarySize {
		return "", fmt.Errorf("downloaded update is too small (%d bytes)", info.Size())
	}
	if err := os.Chmod(newExe, 0o755); err != nil {
		return "", fmt.Errorf("failed to mark update executable: %w", err)
	}

	oldExe := exePath + ".old"
	_ = os.Remove(oldExe)
	if err := os.Rename(exePath, oldExe); err != nil {
		return "", fmt.Errorf("failed to move current binary aside: %w", err)
	}
	if err := os.Rename(newExe, exePath); err != nil {
		_ = os.Rename(oldExe, exePath)
		return "", fmt.Errorf("failed to install update: %w", err)
	}
	u.logger.Info("launcher updated", zap.String("version", release.Version()))
	return exePath, nil
}

// Restart starts exePath with the current arguments; the caller should exit
func Restart(exePath string) error {
	cmd := exec.Command(exePath, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), CleanupEnv+"=1")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to restart launcher: %w", err)
	}
	return nil
}

// CleanupOld removes the .old backup left by Apply when CleanupEnv is set
func CleanupOld() {
	if os.Getenv(CleanupEnv) != "1" {
		return
	}
	exePath, err := os.Executable()
	if err != nil {
		return
	}
	_ = os.Remove(exePath + ".old")
}
