// Package installer caches mod-loader installer jars inside modality roots.
package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/logging"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/paths"
)

// Progress is a task counter in the launcher's progress format
type Progress struct {
	Type  string
	Task  int
	Total int
}

// Fetcher downloads installers on demand
type Fetcher struct {
	download func(ctx context.Context, url, target string) error
	logger   *zap.Logger
}

// New creates a Fetcher
func New(logger *zap.Logger) *Fetcher {
	return &Fetcher{download: download.File, logger: logging.OrNop(logger)}
}

// Ensure returns the path of the installer for r, downloading it when it is
// not already in the modality root. The file name carries the loader
// version, so a new pinned version is a cache miss. Modalities without an
// installer return "".
func (f *Fetcher) Ensure(ctx context.Context, r modality.Resolved, progress func(Progress)) (string, error) {
	if r.InstallerURL == "" || r.InstallerFilename == "" {
		return "", nil
	}

	target := filepath.Join(r.RootPath, r.InstallerFilename)
	if paths.Exists(target) {
		return target, nil
	}

	if progress != nil {
		progress(Progress{Type: "installer", Task: 1, Total: 1})
	}
	f.logger.Info("downloading loader installer", zap.String("url", r.InstallerURL), zap.String("path", target))

	if err := os.MkdirAll(r.RootPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create modality root: %w", err)
	}
	part := target + ".part"
	if err := f.download(ctx, r.InstallerURL, part); err != nil {
		_ = os.Remove(part)
		return "", fmt.Errorf("failed to download installer: %w", err)
	}
	if err := os.Rename(part, target); err != nil {
		_ = os.Remove(part)
		return "", fmt.Errorf("failed to store installer: %w", err)
	}
	return target, nil
}
