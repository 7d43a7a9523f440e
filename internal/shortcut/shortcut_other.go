//go:build !windows

package shortcut

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// create writes a freedesktop .desktop entry; other systems are unsupported
func create(s Shortcut) (string, error) {
	if runtime.GOOS != "linux" {
		return "", ErrUnsupported
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	desktop, err := DesktopDir(home)
	if err != nil {
		return "", err
	}
	return writeDesktopEntry(desktop, s)
}

func writeDesktopEntry(dir string, s Shortcut) (string, error) {
	exec := quote(s.Target)
	if s.Args != "" {
		exec += " " + s.Args
	}
	entry := strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=" + s.Name,
		"Comment=" + s.Description,
		"Exec=" + exec,
		"Path=" + s.WorkingDir,
		"Terminal=true",
		"Categories=Game;",
		"",
	}, "\n")

	path := filepath.Join(dir, s.Name+".desktop")
	if err := os.WriteFile(path, []byte(entry), 0o755); err != nil {
		return "", fmt.Errorf("failed to write shortcut: %w", err)
	}
	return path, nil
}

func quote(s string) string {
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
