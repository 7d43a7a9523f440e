//go:build windows

package shortcut

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

func create(s Shortcut) (string, error) {
	desktop, err := DesktopDir(os.Getenv("USERPROFILE"))
	if err != nil {
		return "", err
	}
	linkPath := filepath.Join(desktop, s.Name+".lnk")

	if err := ole.CoInitialize(0); err != nil {
		return "", fmt.Errorf("failed to initialize COM: %w", err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return "", fmt.Errorf("failed to create WScript.Shell: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return "", fmt.Errorf("failed to query shell interface: %w", err)
	}
	defer shell.Release()

	link, err := oleutil.CallMethod(shell, "CreateShortcut", linkPath)
	if err != nil {
		return "", fmt.Errorf("failed to create shortcut: %w", err)
	}
	// link.Clear() crashes here; release the dispatch only
	linkDisp := link.ToIDispatch()
	defer linkDisp.Release()

	props := []struct {
		name  string
		value any
	}{
		{"TargetPath", s.Target},
		{"Arguments", s.Args},
		{"WorkingDirectory", s.WorkingDir},
		{"Description", s.Description},
		{"WindowStyle", 1},
	}
	for _, p := range props {
		if _, err := oleutil.PutProperty(linkDisp, p.name, p.value); err != nil {
			return "", fmt.Errorf("failed to set shortcut %s: %w", p.name, err)
		}
	}
	if _, err := oleutil.CallMethod(linkDisp, "Save"); err != nil {
		return "", fmt.Errorf("failed to save shortcut: %w", err)
	}
	return linkPath, nil
}
