package paths

import (
	"fmt"
	"os/exec"
	"runtime"
)

// opener returns the command that shows path in the desktop file manager
func opener(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "explorer", []string{path}
	case "darwin":
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}

// Open shows a folder in the desktop file manager
func Open(path string) error {
	name, args := opener(runtime.GOOS, path)
	if err := exec.Command(name, args...).Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	return nil
}
