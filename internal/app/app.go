// Package app builds the launcher's components from its configuration and
// runs them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/firemods/firecraft-launcher/internal/audio"
	"github.com/firemods/firecraft-launcher/internal/auth"
	"github.com/firemods/firecraft-launcher/internal/config"
	"github.com/firemods/firecraft-launcher/internal/events"
	"github.com/firemods/firecraft-launcher/internal/gamerun"
	"github.com/firemods/firecraft-launcher/internal/installer"
	"github.com/firemods/firecraft-launcher/internal/instance"
	"github.com/firemods/firecraft-launcher/internal/javart"
	"github.com/firemods/firecraft-launcher/internal/launch"
	"github.com/firemods/firecraft-launcher/internal/logging"
	"github.com/firemods/firecraft-launcher/internal/manifest"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/modpack"
	"github.com/firemods/firecraft-launcher/internal/mojang"
	"github.com/firemods/firecraft-launcher/internal/news"
	"github.com/firemods/firecraft-launcher/internal/paths"
	"github.com/firemods/firecraft-launcher/internal/presence"
	"github.com/firemods/firecraft-launcher/internal/selfupdate"
	"github.com/firemods/firecraft-launcher/internal/session"
	"github.com/firemods/firecraft-launcher/internal/status"
	"github.com/firemods/firecraft-launcher/internal/tui"
	"github.com/firemods/firecraft-launcher/internal/uri"
)

// Options are process-level inputs that are not settings
type Options struct {
	Version string
	Console io.Writer
	// Presence replaces the Discord client, for tests
	Presence presence.Client
	// Runner replaces the exec backend, for tests
	Runner gamerun.Runner
}

// App holds every wired component
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Bus        *events.Bus
	Controller *launch.Controller
	Java       *javart.Manager
	Microsoft  *auth.Microsoft
	Poller     *status.Poller
	Presence   *presence.Publisher
	Sounds     *audio.Player
	News       *news.Client
	Versions   *mojang.Client
	Updater    *selfupdate.Updater

	closeLog func() error
}

// New wires the launcher from cfg
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	logger, closeLog, err := logging.New(logging.Options{
		Dir:     paths.LogsDir(cfg.DataDir),
		Verbose: cfg.Verbose,
		Quiet:   cfg.Quiet,
		Console: opts.Console,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Bus:      events.NewBus(),
		closeLog: closeLog,
		Sounds:   audio.NewPlayer(cfg.Quiet, 0, logger.Named("audio")),
		News:     news.NewClient(cfg.NewsURL, 10*time.Second),
		Versions: mojang.NewClient("", 10*time.Second),
		Updater: selfupdate.New(selfupdate.Config{
			ReleasesAPIURL: cfg.ReleasesURL,
			CurrentVersion: opts.Version,
		}, logger.Named("selfupdate")),
	}

	a.Java = javart.New(javart.Options{DataDir: cfg.DataDir, JavaPath: cfg.JavaPath}, logger.Named("java"))
	if cfg.Microsoft.ClientID != "" {
		a.Microsoft = auth.NewMicrosoft(cfg.Microsoft.ClientID, auth.MicrosoftEndpoint, logger.Named("auth"))
	}
	var msSession auth.Session
	if a.Microsoft != nil {
		msSession = a.Microsoft
	}

	runner := opts.Runner
	if runner == nil {
		runner = &gamerun.ExecRunner{Backend: cfg.Backend, Logger: logger.Named("game")}
	}

	a.Controller = launch.New(launch.Deps{
		Java:      a.Java,
		Modpacks:  modpack.New(manifest.NewClient(cfg.ManifestURL, manifest.DefaultTimeout), logger.Named("modpack")),
		Auth:      auth.NewResolver(msSession),
		Installer: installer.New(logger.Named("installer")),
		Runner:    runner,
		Bus:       a.Bus,
	}, launch.Options{BaseDir: cfg.DataDir}, logger.Named("launch"))

	a.Poller = status.NewPoller(status.Options{
		Provider: cfg.Status.Provider,
		OnUpdate: a.onStatus,
	}, logger.Named("status"))

	client := opts.Presence
	if client == nil {
		client = presence.Discord{}
	}
	a.Presence = presence.NewPublisher(client, cfg.Discord.ClientID, cfg.Discord.Retry, logger.Named("presence"))

	return a, nil
}

// Close flushes the log
func (a *App) Close() error {
	a.Bus.Close()
	if a.closeLog != nil {
		return a.closeLog()
	}
	return nil
}

// Request builds a launch request for id from the saved settings
func (a *App) Request(id, serverAddress string) launch.Request {
	return launch.Request{
		Modality:       id,
		Username:       a.Config.Username,
		Microsoft:      a.Config.UseMicrosoft,
		Memory:         gamerun.Memory{Min: a.Config.Memory.Min, Max: a.Config.Memory.Max},
		VanillaVersion: a.Config.VanillaVersion,
		ServerAddress:  serverAddress,
	}
}

// statusAddress is the server of the running modality, or of the selected one
func (a *App) statusAddress() string {
	id := a.Config.Modality
	if s := a.Controller.Snapshot(); s.Active() {
		id = s.Modality
	}
	m, ok := modality.Lookup(id)
	if !ok {
		return ""
	}
	return m.ServerAddress
}

func (a *App) onStatus(s status.Snapshot) {
	a.Bus.Publish(events.ServerStatus, s)
	a.Presence.Update(a.Controller.Snapshot(), s)
}

// followSession keeps presence in step with the session until ctx ends
func (a *App) followSession(ctx context.Context) error {
	ch, cancel := a.Bus.Subscribe(64)
	defer cancel()

	a.Presence.Update(a.Controller.Snapshot(), a.Poller.Last())
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if s, ok := e.Payload.(session.Session); ok && e.Name == events.SessionStateChanged {
				a.Presence.Update(s, a.Poller.Last())
			}
		}
	}
}

// background starts the components shared by every long-running mode
func (a *App) background(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return a.Controller.Serve(ctx) })
	g.Go(func() error { return a.Poller.Run(ctx, a.Config.Status.Interval, a.statusAddress) })
	g.Go(func() error { return a.followSession(ctx) })
	if !a.Config.Discord.Disabled {
		g.Go(func() error { return a.Presence.Run(ctx) })
	}
}

// HandleLink launches the join modality against the server in a
// firecraft:// link
func (a *App) HandleLink(ctx context.Context, link string) error {
	action, err := uri.Parse(link)
	if err != nil {
		return err
	}
	a.Logger.Info("join link", zap.String("address", action.Address))
	return a.Controller.Launch(ctx, a.Request(modality.JoinTarget, action.Address))
}

// RunUI shows the terminal front-end with every background component,
// until the user quits or ctx ends. owner may be nil.
func (a *App) RunUI(ctx context.Context, owner *instance.Owner, link string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	a.background(ctx, g)

	if owner != nil {
		g.Go(func() error { return owner.Serve(ctx) })
		g.Go(func() error {
			for l := range owner.Links() {
				if l == "" {
					continue
				}
				if err := a.HandleLink(ctx, l); err != nil {
					a.Bus.Log(events.LevelError, err.Error())
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return tui.Run(ctx, tui.Options{
			Bus:     a.Bus,
			Request: a.Request(a.Config.Modality, ""),
			Sounds:  a.Sounds,
		})
	})

	if link != "" {
		// Serve subscribes asynchronously; give it a moment before launching.
		go func() {
			time.Sleep(200 * time.Millisecond)
			if err := a.HandleLink(ctx, link); err != nil {
				a.Bus.Log(events.LevelError, err.Error())
			}
		}()
	}

	err := g.Wait()
	a.Controller.Wait()
	return err
}

// Play launches req without the front-end and streams the launcher log to
// out until the game closes.
func (a *App) Play(ctx context.Context, req launch.Request, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, unsubscribe := a.Bus.Subscribe(1024)
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Poller.Run(gctx, a.Config.Status.Interval, a.statusAddress) })
	g.Go(func() error { return a.followSession(gctx) })
	if !a.Config.Discord.Disabled {
		g.Go(func() error { return a.Presence.Run(gctx) })
	}

	result := make(chan error, 1)
	go func() {
		result <- a.watch(ctx, ch, out)
		cancel()
	}()

	if err := a.Controller.Launch(ctx, req); err != nil {
		cancel()
		g.Wait()
		return err
	}
	err := <-result
	g.Wait()
	a.Controller.Wait()
	return err
}

// watch prints events until the session goes back to idle
func (a *App) watch(ctx context.Context, ch <-chan events.Event, out io.Writer) error {
	var started, failed bool
	var lastErr string
	var lastStage string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			switch p := e.Payload.(type) {
			case events.LogPayload:
				fmt.Fprintln(out, p.Text)
				if p.Level == events.LevelError {
					lastErr = p.Text
					failed = !started
				}
			case events.ProgressPayload:
				if p.Total > 0 && p.Type != lastStage {
					lastStage = p.Type
					fmt.Fprintf(out, "%s...\n", p.Type)
				}
			case launch.JavaPayload:
				a.Sounds.Play(audio.CueError)
				return fmt.Errorf("%w (Java %d required, run 'firecraft java install')", javart.ErrJavaNotFound, p.Required)
			case session.Session:
				switch {
				case p.State == session.Running && !started:
					started = true
					a.Sounds.PlayAsync(audio.CueStart)
				case p.State == session.Idle:
					if failed {
						a.Sounds.Play(audio.CueError)
						return errors.New(lastErr)
					}
					return nil
				}
			}
		}
	}
}
