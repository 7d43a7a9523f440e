// Package modpack keeps a modality's mods and config in step with the
// modpack published in the remote manifest.
//
// An update is destructive: mods and config are removed before the new
// archive is in hand, and a failure part way leaves the root without them.
// The next successful sync restores a working install.
package modpack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/extract"
	"github.com/firemods/firecraft-launcher/internal/logging"
	"github.com/firemods/firecraft-launcher/internal/manifest"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/paths"
	"github.com/firemods/firecraft-launcher/internal/version"
)

// TempArchive is the name of the in-flight download inside the modality root
const TempArchive = "modpack_temp.zip"

var (
	// ErrInstallFailed wraps any failure after the install began
	ErrInstallFailed = errors.New("could not install modpack")
	// ErrNoModpack is returned for modalities without a modpack feed
	ErrNoModpack = errors.New("modality has no modpack")
)

// Skip reasons reported in Result.Reason
const (
	ReasonNoModpack   = "no modpack"
	ReasonUnreachable = "manifest unreachable"
	ReasonNotListed   = "not listed in manifest"
)

// Stage is one step of an install
type Stage int

const (
	StageCleaning Stage = iota + 1
	StageDownloading
	StageExtracting
	StageVerifying
	StageFinalizing
)

// StageCount is the number of install stages
const StageCount = int(StageFinalizing)

func (s Stage) String() string {
	switch s {
	case StageCleaning:
		return "Cleaning"
	case StageDownloading:
		return "Downloading"
	case StageExtracting:
		return "Extracting"
	case StageVerifying:
		return "Verifying"
	case StageFinalizing:
		return "Finalizing"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Progress reports where an install is. Fraction is the progress within the
// stage in [0,1], or -1 when unknown.
type Progress struct {
	Stage    Stage
	Total    int
	Fraction float64
}

// ProgressFunc receives install progress
type ProgressFunc func(Progress)

// Result describes what a Sync did
type Result struct {
	// Skipped is set when no check against the manifest could be made
	Skipped bool
	Reason  string
	// UpToDate is set when the installed version matched the manifest
	UpToDate bool
	// Updated is set when a new modpack was installed
	Updated  bool
	Previous string
	Version  string
}

// Downloader fetches url into target
type Downloader func(ctx context.Context, url, target string, cb download.ProgressCallback) error

// Updater synchronizes modpacks
type Updater struct {
	manifest manifest.Fetcher
	download Downloader
	logger   *zap.Logger
}

// Option configures an Updater
type Option func(*Updater)

// WithDownloader replaces the archive downloader
func WithDownloader(d Downloader) Option {
	return func(u *Updater) { u.download = d }
}

// New creates an Updater reading the manifest from fetcher
func New(fetcher manifest.Fetcher, logger *zap.Logger, opts ...Option) *Updater {
	u := &Updater{
		manifest: fetcher,
		download: download.FileWithProgress,
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Sync brings the modpack of modality id installed at root up to the
// manifest's version. An unreachable manifest is not an error: the install
// is left as it is.
func (u *Updater) Sync(ctx context.Context, id, root string, progress ProgressFunc) (Result, error) {
	m, ok := modality.Lookup(id)
	if !ok || !m.HasModpack() {
		return Result{Skipped: true, Reason: ReasonNoModpack}, nil
	}
	log := u.logger.With(zap.String("modality", id))

	fetchCtx, cancel := context.WithTimeout(ctx, manifest.DefaultTimeout)
	remote, err := u.manifest.Fetch(fetchCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		log.Warn("modpack update skipped, manifest unreachable", zap.Error(err))
		return Result{Skipped: true, Reason: ReasonUnreachable}, nil
	}

	entry, ok := remote.Lookup(m.FeedKey)
	if !ok {
		log.Warn("modpack update skipped, feed missing from manifest", zap.String("feed", m.FeedKey))
		return Result{Skipped: true, Reason: ReasonNotListed}, nil
	}

	installed, _, err := version.Installed(root, id)
	if err != nil {
		// A corrupt record means nothing is known to be installed.
		log.Warn("ignoring unreadable version record", zap.Error(err))
		installed = ""
	}
	if installed == entry.Version {
		log.Debug("modpack up to date", zap.String("version", installed))
		return Result{UpToDate: true, Previous: installed, Version: installed}, nil
	}

	log.Info("updating modpack", zap.String("from", installed), zap.String("to", entry.Version))
	if err := u.install(ctx, id, root, entry, progress); err != nil {
		log.Error("modpack install failed", zap.Error(err))
		return Result{Previous: installed}, fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	log.Info("modpack installed", zap.String("version", entry.Version))

	return Result{Updated: true, Previous: installed, Version: entry.Version}, nil
}

func (u *Updater) install(ctx context.Context, id, root string, entry manifest.Entry, progress ProgressFunc) error {
	report := func(s Stage, fraction float64) {
		if progress != nil {
			progress(Progress{Stage: s, Total: StageCount, Fraction: fraction})
		}
	}
	archive := filepath.Join(root, TempArchive)
	defer os.Remove(archive)

	report(StageCleaning, -1)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create root: %w", err)
	}
	for _, dir := range []string{"mods", "config", TempArchive} {
		if err := os.RemoveAll(filepath.Join(root, dir)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}

	report(StageDownloading, 0)
	err := u.download(ctx, entry.DownloadURL, archive, func(_, _ int64, fraction float64) {
		report(StageDownloading, fraction)
	})
	if err != nil {
		return err
	}

	report(StageExtracting, -1)
	if err := extract.Zip(archive, root, extract.Options{}); err != nil {
		return err
	}

	report(StageVerifying, -1)
	if !paths.IsDir(filepath.Join(root, "mods")) {
		return errors.New("archive does not contain a mods directory")
	}

	report(StageFinalizing, -1)
	if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove archive: %w", err)
	}
	if err := version.Commit(root, id, entry.Version); err != nil {
		return err
	}
	report(StageFinalizing, 1)
	return nil
}

// Repair removes a modality's mods, config and version record so that the
// next launch installs the modpack from scratch.
func Repair(root, id string) error {
	m, ok := modality.Lookup(id)
	if !ok || !m.HasModpack() {
		return ErrNoModpack
	}
	for _, dir := range []string{"mods", "config"} {
		if err := os.RemoveAll(filepath.Join(root, dir)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	if err := version.Forget(root, id); err != nil {
		return fmt.Errorf("failed to reset version record: %w", err)
	}
	return nil
}
