package integration

import (
	"context"
	"fmt"
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
	"github.com/firemods/firecraft-launcher/internal/launch"
	"github.com/firemods/firecraft-launcher/internal/manifest"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/modpack"
	"github.com/firemods/firecraft-launcher/internal/session"
	"github.com/firemods/firecraft-launcher/internal/testutil"
)

const manifestPath = "/storage/Modpacks/version.json"

// TestEnvironment is a launcher wired against a mock modpack host
type TestEnvironment struct {
	T          *testing.T
	BaseDir    string
	Server     *testutil.MockServer
	Bus        *events.Bus
	Events     <-chan events.Event
	Runner     *GameRunner
	Controller *launch.Controller
	Updater    *modpack.Updater
}

// SetupTestEnvironment creates a complete test environment
func SetupTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	server := testutil.NewMockServer(t)
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(1024)
	t.Cleanup(cancel)

	env := &TestEnvironment{
		T:       t,
		BaseDir: t.TempDir(),
		Server:  server,
		Bus:     bus,
		Events:  ch,
		Runner:  &GameRunner{},
		Updater: modpack.New(manifest.NewClient(server.Endpoint(manifestPath), 2*time.Second), nil),
	}
	env.Controller = launch.New(launch.Deps{
		Java:      readyJava{},
		Modpacks:  env.Updater,
		Auth:      auth.NewResolver(nil),
		Installer: installer.New(nil),
		Runner:    env.Runner,
		Bus:       bus,
		Kill: func(ctx context.Context, root string) (int, error) {
			return env.Runner.KillAll(), nil
		},
	}, launch.Options{BaseDir: env.BaseDir}, nil)
	return env
}

// Root is the install root of a modality
func (e *TestEnvironment) Root(id string) string {
	return modality.RootPath(e.BaseDir, id)
}

// PublishModpack serves a modpack archive and lists it in the manifest
func (e *TestEnvironment) PublishModpack(feeds map[string]string, files map[string]string) {
	e.T.Helper()

	entries := map[string]manifest.Entry{}
	for feed, version := range feeds {
		path := fmt.Sprintf("/packs/%s-%s.zip", feed, version)
		e.Server.SetRaw(path, 200, testutil.ZipBytes(e.T, files), nil)
		entries[feed] = manifest.Entry{Version: version, DownloadURL: e.Server.Endpoint(path)}
	}
	e.Server.SetJSON(e.T, manifestPath, entries)
}

// SeedInstaller puts a cached loader installer in place so no maven
// download happens
func (e *TestEnvironment) SeedInstaller(id string) {
	e.T.Helper()
	r := modality.Resolve(id, modality.Options{BaseDir: e.BaseDir})
	if r.InstallerFilename == "" {
		return
	}
	testutil.WriteFile(e.T, filepath.Join(r.RootPath, r.InstallerFilename), "installer")
}

// WaitState waits until the session reaches state
func (e *TestEnvironment) WaitState(state session.State) session.Session {
	e.T.Helper()
	return e.WaitFor(state.String(), func(s session.Session) bool { return s.State == state })
}

// WaitFor polls the session until cond holds
func (e *TestEnvironment) WaitFor(what string, cond func(session.Session) bool) session.Session {
	e.T.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		s := e.Controller.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			e.T.Fatalf("session never became %s (state %s)", what, s.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Collect drains the events published so far, stopping once the bus has
// been quiet for a moment
func (e *TestEnvironment) Collect() []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-e.Events:
			out = append(out, ev)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

// Logs returns the texts of the log lines in evs at level
func Logs(evs []events.Event, level string) []string {
	var out []string
	for _, ev := range evs {
		if p, ok := ev.Payload.(events.LogPayload); ok && p.Level == level {
			out = append(out, p.Text)
		}
	}
	return out
}

// GameRunner stands in for the launcher backend. Each started game stays
// up until the test feeds it an exit.
type GameRunner struct {
	mu      sync.Mutex
	Started []gamerun.Options
	feeds   []*gamerun.Feed
}

func (g *GameRunner) Start(ctx context.Context, opts gamerun.Options) (*gamerun.Process, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	proc, feed := gamerun.NewProcess(9000 + len(g.feeds))
	g.Started = append(g.Started, opts)
	g.feeds = append(g.feeds, feed)
	return proc, nil
}

// Feed returns the output feed of the n-th started game
func (g *GameRunner) Feed(t *testing.T, n int) *gamerun.Feed {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		g.mu.Lock()
		if len(g.feeds) > n {
			f := g.feeds[n]
			g.mu.Unlock()
			return f
		}
		g.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("game %d never started", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// KillAll ends every game as a kill would, returning how many there were
func (g *GameRunner) KillAll() int {
	g.mu.Lock()
	feeds := append([]*gamerun.Feed(nil), g.feeds...)
	g.mu.Unlock()
	for _, f := range feeds {
		f.Exit(gamerun.Exit{Code: 137})
	}
	return len(feeds)
}

type readyJava struct{}

func (readyJava) Locate(ctx context.Context, gameVersion string) (javart.Runtime, error) {
	major := javart.RequiredMajor(gameVersion)
	return javart.Runtime{Path: "/opt/java/bin/java", Version: fmt.Sprintf("%d.0.1", major), Major: major}, nil
}

func (readyJava) Install(ctx context.Context, major int, progress download.ProgressCallback) (javart.Runtime, error) {
	return javart.Runtime{}, fmt.Errorf("not used")
}
