// Package gamerun starts the game through an external launcher backend and
// streams what it prints.
package gamerun

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"sync"

	"github.com/firemods/firecraft-launcher/internal/auth"
)

var progressPattern = regexp.MustCompile(`^\[progress\]\s+(\S+)\s+(\d+)/(\d+)\s*$`)

// Memory bounds the game heap, e.g. {"2G", "4G"}
type Memory struct {
	Min string
	Max string
}

// Options describes one game launch
type Options struct {
	Root      string
	JavaPath  string
	Auth      auth.Credentials
	Memory    Memory
	Version   string
	Loader    string
	Installer string
	GameArgs  []string
	Detached  bool
}

// Progress is a backend task counter
type Progress struct {
	Type  string
	Task  int
	Total int
}

// Exit is how the game process ended
type Exit struct {
	Code int
	Err  error
}

// ParseProgress recognizes "[progress] <type> <task>/<total>" lines
func ParseProgress(line string) (Progress, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	task, _ := strconv.Atoi(m[2])
	total, _ := strconv.Atoi(m[3])
	return Progress{Type: m[1], Task: task, Total: total}, true
}

// JoinArgs are the game arguments that connect straight to a server.
// Older game versions only read --server/--port.
func JoinArgs(address string) []string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, ""
	}
	args := []string{"--quickPlayMultiplayer", address, "--server", host}
	if port != "" {
		args = append(args, "--port", port)
	}
	return args
}

// Runner starts game processes
type Runner interface {
	Start(ctx context.Context, opts Options) (*Process, error)
}

// Process is a running game. Lines and Progress are closed when output
// ends; Done then delivers the exit exactly once.
type Process struct {
	pid      int
	lines    chan string
	progress chan Progress
	done     chan Exit
	once     sync.Once
	stop     func() error
}

// NewProcess creates a Process fed through the returned Feed
func NewProcess(pid int) (*Process, *Feed) {
	p := &Process{
		pid:      pid,
		lines:    make(chan string, 256),
		progress: make(chan Progress, 64),
		done:     make(chan Exit, 1),
	}
	return p, &Feed{p: p}
}

// PID of the backend process, 0 if unknown
func (p *Process) PID() int { return p.pid }

// ErrNoStop is returned by Stop for processes that cannot be stopped
var ErrNoStop = errors.New("process cannot be stopped")

// Stop kills the backend. Output still ends with Done as usual.
func (p *Process) Stop() error {
	if p.stop == nil {
		return ErrNoStop
	}
	return p.stop()
}

func (p *Process) Lines() <-chan string      { return p.lines }
func (p *Process) Progress() <-chan Progress { return p.progress }
func (p *Process) Done() <-chan Exit         { return p.done }

// Feed writes into a Process
type Feed struct {
	p *Process
}

// Line delivers one output line. Progress lines are also decoded; progress
// is dropped rather than blocking output when nobody reads it.
func (f *Feed) Line(line string) {
	if pr, ok := ParseProgress(line); ok {
		select {
		case f.p.progress <- pr:
		default:
		}
	}
	f.p.lines <- line
}

// OnStop sets what Process.Stop does
func (f *Feed) OnStop(fn func() error) {
	f.p.stop = fn
}

// Exit ends the stream. Later calls are ignored.
func (f *Feed) Exit(e Exit) {
	f.p.once.Do(func() {
		close(f.p.lines)
		close(f.p.progress)
		f.p.done <- e
		close(f.p.done)
	})
}
