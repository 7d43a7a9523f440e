package gamerun

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/logging"
)

// AccessTokenEnv carries the access token to the backend; it is kept off
// the command line, which other users can read.
const AccessTokenEnv = "FIRECRAFT_ACCESS_TOKEN"

// MaxLineBytes caps one line of backend output. The rest of a longer line
// is read and dropped.
const MaxLineBytes = 64 * 1024

// ExecRunner runs the launcher backend executable
type ExecRunner struct {
	Backend string
	Logger  *zap.Logger
}

// Args composes the backend command line for opts
func (r *ExecRunner) Args(opts Options) []string {
	args := []string{
		"launch",
		"--root", opts.Root,
		"--version", opts.Version,
		"--username", opts.Auth.Username,
		"--uuid", opts.Auth.UUID,
		"--user-type", opts.Auth.Type,
	}
	if opts.JavaPath != "" {
		args = append(args, "--java", opts.JavaPath)
	}
	if opts.Loader != "" {
		args = append(args, "--loader", opts.Loader)
	}
	if opts.Installer != "" {
		args = append(args, "--installer", opts.Installer)
	}
	if opts.Memory.Min != "" {
		args = append(args, "--min-memory", opts.Memory.Min)
	}
	if opts.Memory.Max != "" {
		args = append(args, "--max-memory", opts.Memory.Max)
	}
	if opts.Detached {
		args = append(args, "--detached")
	}
	if len(opts.GameArgs) > 0 {
		args = append(args, "--")
		args = append(args, opts.GameArgs...)
	}
	return args
}

// Start spawns the backend. The game keeps running if ctx is cancelled;
// stopping it is a force close.
func (r *ExecRunner) Start(ctx context.Context, opts Options) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := logging.OrNop(r.Logger)

	cmd := exec.Command(r.Backend, r.Args(opts)...)
	cmd.Dir = opts.Root
	cmd.Env = append(os.Environ(), AccessTokenEnv+"="+opts.Auth.AccessToken)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.Backend, err)
	}
	logger.Info("game backend started", zap.Int("pid", cmd.Process.Pid), zap.String("root", opts.Root))

	proc, feed := NewProcess(cmd.Process.Pid)
	feed.OnStop(cmd.Process.Kill)

	var mu sync.Mutex
	var wg sync.WaitGroup
	pump := func(rd io.Reader) {
		defer wg.Done()
		readLines(rd, func(line string) {
			mu.Lock()
			feed.Line(line)
			mu.Unlock()
		})
	}
	wg.Add(2)
	go pump(stdout)
	go pump(stderr)

	go func() {
		wg.Wait()
		err := cmd.Wait()
		exit := Exit{Code: cmd.ProcessState.ExitCode()}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			exit.Err = err
		}
		logger.Info("game backend exited", zap.Int("code", exit.Code))
		feed.Exit(exit)
	}()

	return proc, nil
}

// readLines calls fn for each line of rd until the stream ends. The reader
// is always drained to the end so the backend never blocks on a full pipe.
func readLines(rd io.Reader, fn func(string)) {
	br := bufio.NewReaderSize(rd, 64*1024)
	var line []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if room := MaxLineBytes - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if err != nil {
			if len(line) > 0 {
				fn(string(line))
			}
			if err != io.EOF {
				_, _ = io.Copy(io.Discard, rd)
			}
			return
		}
		if !isPrefix {
			fn(string(line))
			line = line[:0]
		}
	}
}
