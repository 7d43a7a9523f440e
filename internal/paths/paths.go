package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// AppDirName is the folder created under the user's config directory.
	AppDirName = "FireCraft"

	settingsFile = "settings.yaml"
	logsDir      = "logs"
	runtimeDir   = "runtime"
)

// DataDir returns the launcher's data directory. A non-empty override wins;
// otherwise the platform config directory is used (%AppData% on Windows,
// ~/.config on Linux, ~/Library/Application Support on macOS).
func DataDir(override string) (string, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("failed to resolve data dir: %w", err)
		}
		return abs, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, AppDirName), nil
}

// SettingsFile returns the path of settings.yaml inside the data dir
func SettingsFile(dataDir string) string {
	return filepath.Join(dataDir, settingsFile)
}

// LogsDir returns the log directory inside the data dir
func LogsDir(dataDir string) string {
	return filepath.Join(dataDir, logsDir)
}

// RuntimeDir returns where downloaded Java runtimes are unpacked
func RuntimeDir(dataDir string) string {
	return filepath.Join(dataDir, runtimeDir)
}

// JavaBinary returns the java executable name for the current platform
func JavaBinary() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// Normalize converts a path to use forward slashes (for archives and logs)
func Normalize(p string) string {
	return strings.ReplaceAll(filepath.Clean(p), string(filepath.Separator), "/")
}

// Denormalize converts a path from forward slashes to platform-specific separators
func Denormalize(p string) string {
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// Within ensures target doesn't escape base (path traversal protection) and
// returns the absolute target path.
func Within(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s", target)
	}
	return absTarget, nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
