// Package launch owns the launch session and runs the launch pipeline:
// Java check, modpack sync, auth, loader installer, then the game itself.
package launch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/auth"
	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/events"
	"github.com/firemods/firecraft-launcher/internal/gamerun"
	"github.com/firemods/firecraft-launcher/internal/installer"
	"github.com/firemods/firecraft-launcher/internal/javart"
	"github.com/firemods/firecraft-launcher/internal/logging"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/modpack"
	"github.com/firemods/firecraft-launcher/internal/process"
	"github.com/firemods/firecraft-launcher/internal/session"
)

// ErrBusy is returned when a launch is requested while one is underway
var ErrBusy = errors.New("a game session is already active")

// JavaRuntime finds and installs Java
type JavaRuntime interface {
	Locate(ctx context.Context, gameVersion string) (javart.Runtime, error)
	Install(ctx context.Context, major int, progress download.ProgressCallback) (javart.Runtime, error)
}

// ModpackSyncer brings a modality's modpack up to date
type ModpackSyncer interface {
	Sync(ctx context.Context, id, root string, progress modpack.ProgressFunc) (modpack.Result, error)
}

// Authenticator resolves launch credentials
type Authenticator interface {
	Resolve(ctx context.Context, req auth.Request) (auth.Credentials, error)
}

// InstallerFetcher provides loader installers
type InstallerFetcher interface {
	Ensure(ctx context.Context, r modality.Resolved, progress func(installer.Progress)) (string, error)
}

// Deps are the collaborators of a Controller
type Deps struct {
	Java      JavaRuntime
	Modpacks  ModpackSyncer
	Auth      Authenticator
	Installer InstallerFetcher
	Runner    gamerun.Runner
	// Kill stops every process referencing a root; process.KillByPath if nil
	Kill func(ctx context.Context, root string) (int, error)
	Bus  *events.Bus
}

// Options are launcher-wide settings
type Options struct {
	BaseDir string
}

// Request is one launch as asked for by the user
type Request struct {
	Modality       string
	Username       string
	Microsoft      bool
	Memory         gamerun.Memory
	VanillaVersion string
	// ServerAddress connects straight to a server once the game is up
	ServerAddress string
}

// Controller holds the single launch session
type Controller struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	s      session.Session
	cancel context.CancelFunc

	wg sync.WaitGroup
}

// New creates a Controller
func New(deps Deps, opts Options, logger *zap.Logger) *Controller {
	if deps.Kill == nil {
		deps.Kill = process.KillByPath
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	return &Controller{
		deps:   deps,
		opts:   opts,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Snapshot returns the current session
func (c *Controller) Snapshot() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}

// Wait blocks until every launch started so far has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// apply runs one transition and publishes its notices in order
func (c *Controller) apply(e session.Event) (session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(e)
}

func (c *Controller) applyLocked(e session.Event) (session.Session, bool) {
	next, notices, ok := session.Transition(c.s, e)
	c.s = next
	for _, n := range notices {
		switch n := n.(type) {
		case session.StateChanged:
			c.deps.Bus.Publish(events.SessionStateChanged, n.Session)
		case session.JavaNotFound:
			c.deps.Bus.Publish(events.JavaNotFound, JavaPayload{Required: n.Required})
		case session.LaunchError:
			c.deps.Bus.Log(events.LevelError, n.Err.Error())
		}
	}
	if ok && !next.Active() && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return next, ok
}

// JavaPayload accompanies java_not_found
type JavaPayload struct {
	Required int
}

// Launch starts a launch in the background. It fails with ErrBusy unless
// the session is idle; every later failure is reported on the bus.
func (c *Controller) Launch(ctx context.Context, req Request) error {
	r := modality.Resolve(req.Modality, modality.Options{BaseDir: c.opts.BaseDir, VanillaVersion: req.VanillaVersion})

	c.mu.Lock()
	s, ok := c.applyLocked(session.LaunchRequested{
		Modality:      r.Modality.ID,
		RootPath:      r.RootPath,
		ServerAddress: req.ServerAddress,
		At:            c.now(),
	})
	if !ok {
		c.mu.Unlock()
		return ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("launch requested",
		zap.String("modality", r.Modality.ID),
		zap.String("root", r.RootPath),
		zap.Uint64("attempt", s.Attempt))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx, s.Attempt, r, req)
	}()
	return nil
}

func (c *Controller) progress(p events.ProgressPayload) {
	c.deps.Bus.Publish(events.Progress, p)
}

func (c *Controller) fail(attempt uint64, err error) {
	c.logger.Error("launch failed", zap.Uint64("attempt", attempt), zap.Error(err))
	c.apply(session.LaunchFailed{Attempt: attempt, Err: err})
	c.progress(events.ProgressPayload{})
}

// live reports whether attempt is still the current session
func (c *Controller) live(attempt uint64) bool {
	s := c.Snapshot()
	return s.Active() && s.Attempt == attempt
}

func (c *Controller) run(ctx context.Context, attempt uint64, r modality.Resolved, req Request) {
	bus := c.deps.Bus

	rt, err := c.deps.Java.Locate(ctx, r.VersionSpec)
	if errors.Is(err, javart.ErrJavaNotFound) {
		c.logger.Warn("java not found", zap.String("game_version", r.VersionSpec))
		bus.Log(events.LevelError, err.Error())
		c.apply(session.JavaMissing{Attempt: attempt, Required: javart.RequiredMajor(r.VersionSpec)})
		c.progress(events.ProgressPayload{})
		return
	}
	if err != nil {
		c.fail(attempt, fmt.Errorf("failed to check java: %w", err))
		return
	}

	res, err := c.deps.Modpacks.Sync(ctx, r.Modality.ID, r.RootPath, func(p modpack.Progress) {
		if p.Stage == modpack.StageDownloading && p.Fraction >= 0 {
			c.progress(events.ProgressPayload{Type: p.Stage.String(), Task: int(p.Fraction * 100), Total: 100})
			return
		}
		c.progress(events.ProgressPayload{Type: p.Stage.String(), Task: int(p.Stage), Total: p.Total})
	})
	if err != nil {
		c.fail(attempt, err)
		return
	}
	switch {
	case res.Updated:
		bus.Log(events.LevelInfo, fmt.Sprintf("Modpack updated to version %s", res.Version))
	case res.Skipped && res.Reason != modpack.ReasonNoModpack:
		bus.Log(events.LevelInfo, "Could not check for modpack updates ("+res.Reason+"), playing the installed version")
	}

	creds, err := c.deps.Auth.Resolve(ctx, auth.Request{Username: req.Username, Microsoft: req.Microsoft})
	if err != nil {
		c.fail(attempt, fmt.Errorf("failed to authenticate: %w", err))
		return
	}

	installerPath, err := c.deps.Installer.Ensure(ctx, r, func(p installer.Progress) {
		c.progress(events.ProgressPayload{Type: "Downloading installer", Task: p.Task, Total: p.Total})
	})
	if err != nil {
		c.fail(attempt, err)
		return
	}

	var gameArgs []string
	if req.ServerAddress != "" {
		gameArgs = gamerun.JoinArgs(req.ServerAddress)
	}

	// A force close during setup ends the attempt before anything starts.
	if !c.live(attempt) {
		return
	}
	proc, err := c.deps.Runner.Start(ctx, gamerun.Options{
		Root:      r.RootPath,
		JavaPath:  rt.Path,
		Auth:      creds,
		Memory:    req.Memory,
		Version:   r.VersionSpec,
		Loader:    r.LoaderSpec,
		Installer: installerPath,
		GameArgs:  gameArgs,
	})
	if err != nil {
		c.fail(attempt, err)
		return
	}
	// A force close may have landed while the backend was starting.
	if !c.live(attempt) {
		c.logger.Info("attempt ended during start, stopping game", zap.Uint64("attempt", attempt), zap.Int("pid", proc.PID()))
		if err := proc.Stop(); err != nil {
			c.logger.Warn("failed to stop game", zap.Int("pid", proc.PID()), zap.Error(err))
			return
		}
		for range proc.Lines() {
		}
		<-proc.Done()
		return
	}
	bus.Log(events.LevelInfo, fmt.Sprintf("Starting %s %s", r.Modality.DisplayName, r.VersionSpec))

	c.pump(attempt, proc)
}

// pump streams the game's output into the session until it exits. It does
// not follow the launch context: the game outlives the request.
func (c *Controller) pump(attempt uint64, proc *gamerun.Process) {
	lines, progress := proc.Lines(), proc.Progress()
	for lines != nil || progress != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.observe(attempt, line)
			c.deps.Bus.Log(events.LevelData, line)
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			c.progress(events.ProgressPayload{Type: p.Type, Task: p.Task, Total: p.Total})
		}
	}

	exit := <-proc.Done()
	c.logger.Info("game exited", zap.Uint64("attempt", attempt), zap.Int("code", exit.Code), zap.Error(exit.Err))
	c.apply(session.ProcessClosed{Attempt: attempt, ExitCode: exit.Code})
	c.progress(events.ProgressPayload{})
}

// observe classifies one output line against the live session
func (c *Controller) observe(attempt uint64, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s.Attempt != attempt {
		return
	}
	for _, e := range session.Classify(line, c.s) {
		c.applyLocked(e)
	}
	c.logger.Debug("game output", zap.String("line", line))
}

// ForceClose kills every process started from the active root and returns
// the session to idle whether or not anything was found.
func (c *Controller) ForceClose(ctx context.Context) error {
	s := c.Snapshot()
	var err error
	if s.Active() && s.RootPath != "" {
		var n int
		n, err = c.deps.Kill(ctx, s.RootPath)
		c.logger.Info("force close", zap.String("root", s.RootPath), zap.Int("killed", n), zap.Error(err))
		c.deps.Bus.Log(events.LevelInfo, fmt.Sprintf("Closed %d game process(es)", n))
	}
	c.apply(session.ForceClosed{})
	c.progress(events.ProgressPayload{})
	return err
}
