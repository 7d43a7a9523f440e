package launch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/firemods/firecraft-launcher/internal/auth"
	"github.com/firemods/firecraft-launcher/internal/download"
	"github.com/firemods/firecraft-launcher/internal/events"
	"github.com/firemods/firecraft-launcher/internal/gamerun"
	"github.com/firemods/firecraft-launcher/internal/installer"
	"github.com/firemods/firecraft-launcher/internal/javart"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/modpack"
	"github.com/firemods/firecraft-launcher/internal/session"
)

type fakeJava struct {
	err       error
	installed int
}

func (f *fakeJava) Locate(ctx context.Context, gameVersion string) (javart.Runtime, error) {
	if f.err != nil {
		return javart.Runtime{}, f.err
	}
	return javart.Runtime{Path: "/jre/bin/java", Major: 21}, nil
}

func (f *fakeJava) Install(ctx context.Context, major int, progress download.ProgressCallback) (javart.Runtime, error) {
	f.installed = major
	progress(50, 100, 0.5)
	return javart.Runtime{Path: "/jre/bin/java", Version: "21.0.2", Major: major}, nil
}

type fakeSyncer struct {
	res   modpack.Result
	err   error
	block chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context, id, root string, progress modpack.ProgressFunc) (modpack.Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return modpack.Result{}, ctx.Err()
		}
	}
	progress(modpack.Progress{Stage: modpack.StageCleaning, Total: modpack.StageCount, Fraction: -1})
	return f.res, f.err
}

type fakeAuth struct{}

func (fakeAuth) Resolve(ctx context.Context, req auth.Request) (auth.Credentials, error) {
	return auth.Offline(req.Username)
}

type fakeInstaller struct{}

func (fakeInstaller) Ensure(ctx context.Context, r modality.Resolved, progress func(installer.Progress)) (string, error) {
	if r.InstallerFilename == "" {
		return "", nil
	}
	return filepath.Join(r.RootPath, r.InstallerFilename), nil
}

type fakeRunner struct {
	mu      sync.Mutex
	started []gamerun.Options
	feeds   []*gamerun.Feed
	err     error
	// gate, when set, holds Start until closed
	gate     chan struct{}
	starting int
	stopped  int
}

func (f *fakeRunner) Start(ctx context.Context, opts gamerun.Options) (*gamerun.Process, error) {
	if f.gate != nil {
		f.mu.Lock()
		f.starting++
		f.mu.Unlock()
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	proc, feed := gamerun.NewProcess(1000 + len(f.feeds))
	feed.OnStop(func() error {
		f.mu.Lock()
		f.stopped++
		f.mu.Unlock()
		go feed.Exit(gamerun.Exit{Code: 137})
		return nil
	})
	f.started = append(f.started, opts)
	f.feeds = append(f.feeds, feed)
	return proc, nil
}

func (f *fakeRunner) counts() (starting, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starting, f.stopped
}

func (f *fakeRunner) feed(t *testing.T, i int) *gamerun.Feed {
	t.Helper()
	var feed *gamerun.Feed
	waitFor(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.feeds) > i {
			feed = f.feeds[i]
			return true
		}
		return false
	})
	return feed
}

type harness struct {
	c      *Controller
	java   *fakeJava
	sync   *fakeSyncer
	runner *fakeRunner
	bus    *events.Bus
	events <-chan events.Event
	killed []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		java:   &fakeJava{},
		sync:   &fakeSyncer{res: modpack.Result{UpToDate: true}},
		runner: &fakeRunner{},
		bus:    events.NewBus(),
	}
	var cancel func()
	h.events, cancel = h.bus.Subscribe(256)
	t.Cleanup(cancel)

	h.c = New(Deps{
		Java:      h.java,
		Modpacks:  h.sync,
		Auth:      fakeAuth{},
		Installer: fakeInstaller{},
		Runner:    h.runner,
		Bus:       h.bus,
		Kill: func(ctx context.Context, root string) (int, error) {
			h.killed = append(h.killed, root)
			return 1, nil
		},
	}, Options{BaseDir: t.TempDir()}, nil)
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitState(t *testing.T, state session.State) session.Session {
	t.Helper()
	waitFor(t, func() bool { return h.c.Snapshot().State == state })
	return h.c.Snapshot()
}

// expect drains events until one named name arrives
func (h *harness) expect(t *testing.T, name events.Name) events.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			if e.Name == name {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", name)
		}
	}
}

func TestLaunchLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.c.Launch(ctx, Request{
		Modality:      modality.FireMods,
		Username:      "Steve",
		Memory:        gamerun.Memory{Min: "2G", Max: "6G"},
		ServerAddress: "play.firemods.net",
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if s := h.c.Snapshot(); s.State != session.Launching || s.Modality != modality.FireMods {
		t.Errorf("after Launch: %+v", s)
	}

	feed := h.runner.feed(t, 0)
	opts := h.runner.started[0]
	if opts.Loader != "neoforge:21.1.174" || opts.JavaPath != "/jre/bin/java" || opts.Memory.Max != "6G" {
		t.Errorf("runner options = %+v", opts)
	}
	if filepath.Base(opts.Installer) != "neoforge-21.1.174-installer.jar" {
		t.Errorf("installer = %q", opts.Installer)
	}
	if len(opts.GameArgs) < 2 || opts.GameArgs[0] != "--quickPlayMultiplayer" {
		t.Errorf("game args = %v", opts.GameArgs)
	}
	if opts.Auth.Username != "Steve" || opts.Auth.Type != auth.TypeOffline {
		t.Errorf("auth = %+v", opts.Auth)
	}

	feed.Line("[main/INFO]: ModLauncher running")
	h.waitState(t, session.Running)

	feed.Line("[12:00:00] [Render thread/INFO]: Joining multiplayer world")
	waitFor(t, func() bool { return h.c.Snapshot().OnServer })

	feed.Line("[12:30:00] [Render thread/INFO]: Disconnecting from server")
	waitFor(t, func() bool { return !h.c.Snapshot().OnServer })

	feed.Exit(gamerun.Exit{Code: 0})
	h.waitState(t, session.Idle)
	h.c.Wait()

	e := h.expect(t, events.LogLine)
	if e.Payload.(events.LogPayload).Level == "" {
		t.Errorf("log payload = %+v", e.Payload)
	}
}

func TestLaunchBusy(t *testing.T) {
	h := newHarness(t)
	h.sync.block = make(chan struct{})
	defer close(h.sync.block)

	if err := h.c.Launch(context.Background(), Request{Modality: modality.FireMods, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	before := h.c.Snapshot()

	err := h.c.Launch(context.Background(), Request{Modality: modality.Vanilla, Username: "Steve"})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second Launch() error = %v, want ErrBusy", err)
	}
	if after := h.c.Snapshot(); after != before {
		t.Errorf("session changed by rejected launch: %+v -> %+v", before, after)
	}
}

func TestLaunchJavaMissing(t *testing.T) {
	h := newHarness(t)
	h.java.err = javart.ErrJavaNotFound

	if err := h.c.Launch(context.Background(), Request{Modality: modality.Vanilla, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	e := h.expect(t, events.JavaNotFound)
	if p := e.Payload.(JavaPayload); p.Required != 21 {
		t.Errorf("required = %d, want 21", p.Required)
	}
	h.c.Wait()
	if s := h.c.Snapshot(); s.State != session.Idle {
		t.Errorf("session = %+v, want idle", s)
	}
	if len(h.runner.started) != 0 {
		t.Error("game started without java")
	}
}

func TestLaunchSetupFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"modpack", func(h *harness) { h.sync.err = modpack.ErrInstallFailed }},
		{"auth", func(h *harness) {}},
		{"spawn", func(h *harness) { h.runner.err = errors.New("exec: not found") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			username := "Steve"
			if tt.name == "auth" {
				username = "x"
			}
			if err := h.c.Launch(context.Background(), Request{Modality: modality.FireMods, Username: username}); err != nil {
				t.Fatal(err)
			}
			h.c.Wait()

			if s := h.c.Snapshot(); s.State != session.Idle {
				t.Errorf("session = %+v, want idle", s)
			}
			for {
				e := h.expect(t, events.LogLine)
				if e.Payload.(events.LogPayload).Level == events.LevelError {
					break
				}
			}
		})
	}
}

func TestForceClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.c.Launch(ctx, Request{Modality: modality.FireLite, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	oldFeed := h.runner.feed(t, 0)
	oldFeed.Line("booting")
	s := h.waitState(t, session.Running)

	if err := h.c.ForceClose(ctx); err != nil {
		t.Fatalf("ForceClose() error = %v", err)
	}
	if len(h.killed) != 1 || h.killed[0] != s.RootPath {
		t.Errorf("killed = %v, want %s", h.killed, s.RootPath)
	}
	if h.c.Snapshot().State != session.Idle {
		t.Fatal("ForceClose() did not reset the session")
	}

	// Idle force close is a no-op.
	if err := h.c.ForceClose(ctx); err != nil {
		t.Errorf("idle ForceClose() error = %v", err)
	}
	if len(h.killed) != 1 {
		t.Errorf("idle ForceClose() killed again")
	}

	// A new launch must not be disturbed by the old process finishing.
	if err := h.c.Launch(ctx, Request{Modality: modality.FireLite, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	h.runner.feed(t, 1)
	oldFeed.Line("Joining multiplayer world")
	oldFeed.Exit(gamerun.Exit{Code: 137})
	time.Sleep(20 * time.Millisecond)

	s = h.c.Snapshot()
	if s.State != session.Launching || s.OnServer || s.Attempt != 2 {
		t.Errorf("stale process affected new session: %+v", s)
	}
}

func TestForceCloseKillError(t *testing.T) {
	h := newHarness(t)
	h.c.deps.Kill = func(ctx context.Context, root string) (int, error) {
		return 0, errors.New("access denied")
	}
	h.sync.block = make(chan struct{})
	defer close(h.sync.block)

	if err := h.c.Launch(context.Background(), Request{Modality: modality.FireMods, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	if err := h.c.ForceClose(context.Background()); err == nil {
		t.Error("ForceClose() should report the kill error")
	}
	if h.c.Snapshot().State != session.Idle {
		t.Error("session not reset after failed kill")
	}
	h.c.Wait()
	if len(h.runner.started) != 0 {
		t.Error("game started after force close during setup")
	}
}

func TestSessionChangesSurviveOutputFlood(t *testing.T) {
	h := newHarness(t)
	follower, cancel := h.bus.Subscribe(64)
	defer cancel()

	if err := h.c.Launch(context.Background(), Request{Modality: modality.FireMods, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	feed := h.runner.feed(t, 0)
	for i := 0; i < 200; i++ {
		feed.Line("[Worker-Main/INFO]: Loading chunk")
	}
	feed.Line("[Render thread/INFO]: Joining multiplayer world")
	for i := 0; i < 200; i++ {
		feed.Line("[Render thread/INFO]: [CHAT] hello")
	}
	waitFor(t, func() bool { return h.c.Snapshot().OnServer })
	feed.Exit(gamerun.Exit{Code: 0})
	h.waitState(t, session.Idle)
	h.c.Wait()

	// The follower only starts reading now, far behind the output.
	var seen []session.Session
	timeout := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1].State != session.Idle {
		select {
		case e := <-follower:
			if s, ok := e.Payload.(session.Session); ok && e.Name == events.SessionStateChanged {
				seen = append(seen, s)
			}
		case <-timeout:
			t.Fatalf("never saw the return to idle, got %+v", seen)
		}
	}

	var running, onServer bool
	for _, s := range seen {
		running = running || s.State == session.Running
		onServer = onServer || (s.State == session.Running && s.OnServer)
	}
	if !running || !onServer {
		t.Errorf("state changes = %+v, want running and on server before idle", seen)
	}
}

func TestForceCloseDuringStart(t *testing.T) {
	h := newHarness(t)
	h.runner.gate = make(chan struct{})

	if err := h.c.Launch(context.Background(), Request{Modality: modality.FireMods, Username: "Steve"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { starting, _ := h.runner.counts(); return starting == 1 })

	if err := h.c.ForceClose(context.Background()); err != nil {
		t.Fatalf("ForceClose() error = %v", err)
	}
	close(h.runner.gate)
	h.c.Wait()

	if _, stopped := h.runner.counts(); stopped != 1 {
		t.Errorf("game started after the force close was stopped %d times, want 1", stopped)
	}
	if s := h.c.Snapshot(); s.State != session.Idle {
		t.Errorf("session = %+v, want idle", s)
	}
}
