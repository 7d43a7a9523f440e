// Package extract unpacks modpack and runtime archives into a directory,
// refusing entries that would land outside of it.
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/firemods/firecraft-launcher/internal/paths"
)

// ProgressFunc is called during extraction with current entry index and total entries.
// total is -1 for streamed formats where the count is unknown.
type ProgressFunc func(current, total int, name string)

// Options tunes an extraction
type Options struct {
	// StripPrefix removes a single top-level directory shared by all
	// entries (e.g. "jdk-21.0.2+13-jre/").
	StripPrefix bool
	Progress    ProgressFunc
}

// Zip extracts a zip archive into targetDir
func Zip(archivePath, targetDir string, opts Options) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer reader.Close()

	var stripPrefix string
	if opts.StripPrefix {
		stripPrefix = detectStripPrefix(reader.File)
	}

	total := len(reader.File)
	for i, f := range reader.File {
		relPath := strings.TrimPrefix(f.Name, stripPrefix)
		if relPath == "" {
			continue
		}
		if opts.Progress != nil {
			opts.Progress(i+1, total, relPath)
		}

		absTarget, err := paths.Within(targetDir, filepath.Join(targetDir, paths.Denormalize(relPath)))
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(absTarget, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", relPath, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(absTarget), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", relPath, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", relPath, err)
		}
		err = writeFile(absTarget, rc, f.Mode().Perm())
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to extract %s: %w", relPath, err)
		}
	}

	return nil
}

// TarGz extracts a gzip-compressed tarball into targetDir
func TarGz(archivePath, targetDir string, opts Options) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var stripPrefix string
	for i := 1; ; i++ {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		name := strings.TrimPrefix(hdr.Name, "./")
		if opts.StripPrefix {
			// Streamed: take the first entry's top directory on trust.
			if i == 1 {
				if idx := strings.Index(name, "/"); idx > 0 {
					stripPrefix = name[:idx+1]
				}
			}
			if !strings.HasPrefix(name, stripPrefix) {
				return fmt.Errorf("unexpected entry outside %s: %s", stripPrefix, name)
			}
			name = strings.TrimPrefix(name, stripPrefix)
		}
		if name == "" {
			continue
		}
		if opts.Progress != nil {
			opts.Progress(i, -1, name)
		}

		absTarget, err := paths.Within(targetDir, filepath.Join(targetDir, paths.Denormalize(name)))
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(absTarget, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(absTarget), 0o755); err != nil {
				return fmt.Errorf("failed to create parent dir for %s: %w", name, err)
			}
			if err := writeFile(absTarget, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return fmt.Errorf("failed to extract %s: %w", name, err)
			}
		case tar.TypeSymlink:
			// JREs link legal notices; the link must stay inside the runtime.
			if _, err := paths.Within(targetDir, filepath.Join(filepath.Dir(absTarget), hdr.Linkname)); err != nil {
				return err
			}
			_ = os.Remove(absTarget)
			if err := os.Symlink(hdr.Linkname, absTarget); err != nil {
				return fmt.Errorf("failed to link %s: %w", name, err)
			}
		}
	}
}

// detectStripPrefix finds a single top-level directory shared by every entry
func detectStripPrefix(files []*zip.File) string {
	if len(files) == 0 {
		return ""
	}

	firstPath := files[0].Name
	idx := strings.Index(firstPath, "/")
	if idx == -1 {
		return ""
	}

	prefix := firstPath[:idx+1]
	for _, f := range files {
		if !strings.HasPrefix(f.Name, prefix) {
			return ""
		}
	}

	return prefix
}

func writeFile(targetPath string, r io.Reader, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
