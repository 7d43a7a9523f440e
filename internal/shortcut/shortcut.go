// Package shortcut puts a launcher shortcut on the user's desktop.
package shortcut

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrUnsupported is returned on platforms without desktop shortcuts
var ErrUnsupported = errors.New("desktop shortcuts are not supported on this platform")

// Shortcut describes the link to create
type Shortcut struct {
	Name        string
	Target      string
	Args        string
	WorkingDir  string
	Description string
}

// DesktopDir finds the desktop folder under home, following a OneDrive
// redirect when the plain folder is missing.
func DesktopDir(home string) (string, error) {
	if home == "" {
		return "", errors.New("failed to get user profile directory")
	}
	for _, dir := range []string{
		filepath.Join(home, "Desktop"),
		filepath.Join(home, "OneDrive", "Desktop"),
	} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", errors.New("desktop directory not found")
}

// Create writes s to the desktop and returns the path of the new link
func Create(s Shortcut) (string, error) {
	return create(s)
}
