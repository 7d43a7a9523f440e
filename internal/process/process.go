// Package process finds and stops game processes started from a modality
// root, whatever launched them.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Match is a running process whose command line references a root
type Match struct {
	PID     int32
	Cmdline string
}

// referencesPath reports whether cmdline mentions root as a path. Windows
// paths compare case-insensitively.
func referencesPath(cmdline, root string) bool {
	root = filepath.Clean(root)
	if root == "." || root == string(filepath.Separator) {
		return false
	}
	if runtime.GOOS == "windows" {
		cmdline = strings.ToLower(cmdline)
		root = strings.ToLower(root)
	}
	for rest := cmdline; ; {
		i := strings.Index(rest, root)
		if i < 0 {
			return false
		}
		end := i + len(root)
		// "/instances/fire" must not match "/instances/firelite"
		if end == len(rest) || strings.ContainsRune(`/\ "':;=`, rune(rest[end])) {
			return true
		}
		rest = rest[end:]
	}
}

// FindByPath lists processes whose command line references root, skipping
// the calling process.
func FindByPath(ctx context.Context, root string) ([]Match, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	self := int32(os.Getpid())
	var matches []Match
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			// Exited, or not ours to inspect.
			continue
		}
		if referencesPath(cmdline, root) {
			matches = append(matches, Match{PID: p.Pid, Cmdline: cmdline})
		}
	}
	return matches, nil
}

// ErrStillRunning is returned when killed processes outlive ExitWait
var ErrStillRunning = errors.New("game processes did not exit")

// ExitWait bounds how long KillByPath waits for killed processes to go away
const ExitWait = 5 * time.Second

// KillByPath kills every process referencing root, waits for them to exit
// and returns how many were killed. Processes that vanish on the way are
// not errors.
func KillByPath(ctx context.Context, root string) (int, error) {
	matches, err := FindByPath(ctx, root)
	if err != nil {
		return 0, err
	}

	var killed []int32
	var firstErr error
	for _, m := range matches {
		p, err := process.NewProcessWithContext(ctx, m.PID)
		if err != nil {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			if running, _ := p.IsRunningWithContext(ctx); running && firstErr == nil {
				firstErr = fmt.Errorf("failed to kill process %d: %w", m.PID, err)
			}
			continue
		}
		killed = append(killed, m.PID)
	}
	if len(killed) > 0 && !WaitForExit(ctx, killed, ExitWait) && firstErr == nil {
		firstErr = fmt.Errorf("%w after %s", ErrStillRunning, ExitWait)
	}
	return len(killed), firstErr
}

// WaitForExit polls until none of pids is running, checking at least once.
// Returns false if some are still alive at the timeout.
func WaitForExit(ctx context.Context, pids []int32, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		alive := false
		for _, pid := range pids {
			if ok, err := process.PidExistsWithContext(ctx, pid); err == nil && ok {
				alive = true
				break
			}
		}
		if !alive {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
		}
	}
}
