package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/urfave/cli/v2"

	"github.com/firemods/firecraft-launcher/internal/app"
	"github.com/firemods/firecraft-launcher/internal/audio"
	"github.com/firemods/firecraft-launcher/internal/auth"
	"github.com/firemods/firecraft-launcher/internal/config"
	"github.com/firemods/firecraft-launcher/internal/instance"
	"github.com/firemods/firecraft-launcher/internal/javart"
	"github.com/firemods/firecraft-launcher/internal/launch"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/news"
	"github.com/firemods/firecraft-launcher/internal/paths"
	"github.com/firemods/firecraft-launcher/internal/process"
	"github.com/firemods/firecraft-launcher/internal/prompt"
	"github.com/firemods/firecraft-launcher/internal/selfupdate"
	"github.com/firemods/firecraft-launcher/internal/shortcut"
	"github.com/firemods/firecraft-launcher/internal/uri"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Global panic handler to keep stack traces away from players
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\nOops, something broke: %v\n", r)
			fmt.Fprintln(os.Stderr, "Let the FireMods team know what happened.")
			audio.NewPlayer(false, 0, nil).Play(audio.CueError)
			os.Exit(1)
		}
	}()

	selfupdate.CleanupOld()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:    "firecraft",
		Usage:   "Play FireMods Minecraft modalities",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "launcher data directory", EnvVars: []string{config.EnvPrefix + "DATA_DIR"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "no sounds and no console log"},
		},
		// A bare invocation, or one carrying a firecraft:// link, opens the UI.
		Action: func(c *cli.Context) error {
			link, _ := uri.Find(c.Args().Slice())
			return runUI(c, link)
		},
		Commands: []*cli.Command{
			playCommand(),
			{
				Name:  "ui",
				Usage: "Open the interactive launcher",
				Action: func(c *cli.Context) error {
					return runUI(c, "")
				},
			},
			{
				Name:      "open",
				Usage:     "Handle a firecraft:// link",
				ArgsUsage: "<link>",
				Action: func(c *cli.Context) error {
					link := c.Args().First()
					if _, err := uri.Parse(link); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					return runUI(c, link)
				},
			},
			repairCommand(),
			modsCommand(),
			statusCommand(),
			loginCommand(),
			{
				Name:  "logout",
				Usage: "Forget the Microsoft account",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					if a.Microsoft == nil {
						return cli.Exit("Microsoft login is not configured", 1)
					}
					if err := a.Microsoft.Logout(); err != nil {
						return err
					}
					a.Config.UseMicrosoft = false
					if err := config.Save(a.Config); err != nil {
						return err
					}
					fmt.Println("Logged out.")
					return nil
				}),
			},
			javaCommand(),
			{
				Name:   "modalities",
				Usage:  "List the available modalities",
				Action: withApp(listModalities),
			},
			{
				Name:  "versions",
				Usage: "List vanilla Minecraft releases",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20, Usage: "how many to show, 0 for all"}},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					versions, latest, err := a.Versions.Releases(c.Context)
					if err != nil {
						return err
					}
					if n := c.Int("limit"); n > 0 && len(versions) > n {
						versions = versions[:n]
					}
					t := newTable()
					t.AppendHeader(table.Row{"Version", "Released", ""})
					for _, v := range versions {
						mark := ""
						if v.ID == latest {
							mark = "latest"
						}
						if v.ID == a.Config.VanillaVersion {
							mark = strings.TrimSpace(mark + " selected")
						}
						t.AppendRow(table.Row{v.ID, v.ReleaseTime.Format("2006-01-02"), mark})
					}
					t.Render()
					return nil
				}),
			},
			{
				Name:      "folder",
				Usage:     "Open a modality folder (mods, shaderpacks, resourcepacks, screenshots)",
				ArgsUsage: "<modality> [folder]",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					id := modalityArg(c, a)
					dir := modality.Resolve(id, modality.Options{BaseDir: a.Config.DataDir}).RootPath
					if sub := c.Args().Get(1); sub != "" {
						switch sub {
						case "mods", "shaderpacks", "resourcepacks", "screenshots", "config", "logs":
						default:
							return cli.Exit(fmt.Sprintf("unknown folder %q", sub), 1)
						}
						dir = filepath.Join(dir, sub)
					}
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return fmt.Errorf("failed to create %s: %w", dir, err)
					}
					fmt.Println(dir)
					return paths.Open(dir)
				}),
			},
			{
				Name:  "shortcut",
				Usage: "Put a launcher shortcut on the desktop",
				Action: func(c *cli.Context) error {
					exe, err := os.Executable()
					if err != nil {
						return err
					}
					link, err := shortcut.Create(shortcut.Shortcut{
						Name:        "FireCraft",
						Target:      exe,
						Args:        "ui",
						WorkingDir:  filepath.Dir(exe),
						Description: "Launch FireCraft",
					})
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Printf("Desktop shortcut created: %s\n", link)
					return nil
				},
			},
			selfUpdateCommand(),
			{
				Name:  "news",
				Usage: "Show the FireMods news",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					items, err := a.News.Fetch(c.Context)
					if err != nil {
						return cli.Exit("Could not load the news: "+err.Error(), 1)
					}
					fmt.Print(news.Format(items))
					return nil
				}),
			},
		},
	}
}

// loadConfig applies global flags over the settings file
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("data-dir"))
	if err != nil {
		return config.Config{}, err
	}
	if c.Bool("verbose") {
		cfg.Verbose = true
	}
	if c.Bool("quiet") {
		cfg.Quiet = true
	}
	return cfg, nil
}

// withApp builds the launcher for one command and tears it down afterwards
func withApp(fn func(*cli.Context, *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		a, err := app.New(cfg, app.Options{Version: version})
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer a.Close()
		return fn(c, a)
	}
}

func modalityArg(c *cli.Context, a *app.App) string {
	if id := c.Args().First(); id != "" {
		return id
	}
	return a.Config.Modality
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	return t
}

func promptConfig(c *cli.Context, a *app.App) prompt.Config {
	return prompt.Config{NonInteractive: c.Bool("yes"), Sound: a.Sounds}
}

func runUI(c *cli.Context, link string) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	owner, err := instance.Acquire(cfg.InstanceAddr(), nil)
	if errors.Is(err, instance.ErrRunning) {
		if err := instance.Forward(cfg.InstanceAddr(), link); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		fmt.Println("FireCraft is already open.")
		return nil
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer owner.Close()

	// The UI owns the terminal, so the log only goes to the file.
	a, err := app.New(cfg, app.Options{Version: version, Console: io.Discard})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer a.Close()
	return a.RunUI(c.Context, owner, link)
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Launch a modality without the UI",
		ArgsUsage: "[modality]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "offline player name"},
			&cli.BoolFlag{Name: "microsoft", Usage: "use the logged in Microsoft account"},
			&cli.StringFlag{Name: "server", Aliases: []string{"s"}, Usage: "join this server once the game is up"},
			&cli.StringFlag{Name: "game-version", Usage: "vanilla game version"},
			&cli.StringFlag{Name: "min-memory", Usage: "minimum heap, e.g. 2G"},
			&cli.StringFlag{Name: "max-memory", Usage: "maximum heap, e.g. 6G"},
			&cli.BoolFlag{Name: "remember", Usage: "save these choices as the defaults"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if id := c.Args().First(); id != "" {
				if _, ok := modality.Lookup(id); !ok {
					return cli.Exit(fmt.Sprintf("unknown modality %q (see 'firecraft modalities')", id), 1)
				}
				cfg.Modality = id
			}
			for flag, dst := range map[string]*string{
				"username":     &cfg.Username,
				"game-version": &cfg.VanillaVersion,
				"min-memory":   &cfg.Memory.Min,
				"max-memory":   &cfg.Memory.Max,
			} {
				if c.IsSet(flag) {
					*dst = c.String(flag)
				}
			}
			if c.IsSet("microsoft") {
				cfg.UseMicrosoft = c.Bool("microsoft")
			}
			if !cfg.UseMicrosoft {
				if _, err := auth.Offline(cfg.Username); err != nil {
					return cli.Exit("Set a player name with --username (3-16 letters, digits or _)", 1)
				}
			}

			a, err := app.New(cfg, app.Options{Version: version})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer a.Close()

			if c.Bool("remember") {
				if err := config.Save(cfg); err != nil {
					return err
				}
			}

			err = a.Play(c.Context, a.Request(cfg.Modality, c.String("server")), os.Stdout)
			switch {
			case errors.Is(err, javart.ErrJavaNotFound):
				return cli.Exit(err.Error(), 2)
			case errors.Is(err, launch.ErrBusy):
				return cli.Exit("A game is already being launched", 1)
			case err != nil:
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func repairCommand() *cli.Command {
	return &cli.Command{
		Name:      "repair",
		Usage:     "Reset a modality's modpack so the next launch reinstalls it",
		ArgsUsage: "[modality]",
		Flags:     []cli.Flag{&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"}},
		Action: withApp(func(c *cli.Context, a *app.App) error {
			id := modalityArg(c, a)
			m, ok := modality.Lookup(id)
			if !ok || !m.HasModpack() {
				return cli.Exit(fmt.Sprintf("%s has no modpack to repair", id), 1)
			}

			root := modality.RootPath(a.Config.DataDir, id)
			running, err := process.FindByPath(c.Context, root)
			if err == nil && len(running) > 0 {
				return cli.Exit(fmt.Sprintf("Close %s before repairing it (%d game process(es) running)", m.DisplayName, len(running)), 1)
			}

			if !prompt.Confirm(fmt.Sprintf("Delete the mods and config of %s?", m.DisplayName), promptConfig(c, a)) {
				fmt.Println("Cancelled.")
				return nil
			}
			if err := a.Controller.Repair(id); err != nil {
				return cli.Exit("Repair failed: "+err.Error(), 1)
			}
			fmt.Println("Done. The modpack will be downloaded on the next launch.")
			return nil
		}),
	}
}

func modsCommand() *cli.Command {
	return &cli.Command{
		Name:  "mods",
		Usage: "Manage the mods of a modality",
		Subcommands: []*cli.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List installed mods",
				ArgsUsage: "[modality]",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					mods, err := a.Controller.Mods(modalityArg(c, a))
					if err != nil {
						return err
					}
					if len(mods) == 0 {
						fmt.Println("No mods installed.")
						return nil
					}
					t := newTable()
					t.AppendHeader(table.Row{"", "Name", "Version", "File", "Size"})
					for _, m := range mods {
						state := text.FgGreen.Sprint("on")
						if !m.Enabled {
							state = text.FgRed.Sprint("off")
						}
						t.AppendRow(table.Row{state, m.Name, m.Version, m.FileName, humanize.IBytes(uint64(m.Size))})
					}
					t.Render()
					return nil
				}),
			},
			{
				Name:      "toggle",
				Usage:     "Enable or disable a mod",
				ArgsUsage: "<modality> <file>",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					if c.NArg() != 2 {
						return cli.Exit("usage: firecraft mods toggle <modality> <file>", 1)
					}
					mod, err := a.Controller.ToggleMod(c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					state := "enabled"
					if !mod.Enabled {
						state = "disabled"
					}
					fmt.Printf("%s %s\n", mod.FileName, state)
					return nil
				}),
			},
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Check a modality's server",
		ArgsUsage: "[modality|address]",
		Action: withApp(func(c *cli.Context, a *app.App) error {
			addr := c.Args().First()
			if m, ok := modality.Lookup(modalityArg(c, a)); ok {
				addr = m.ServerAddress
			}
			if addr == "" {
				return cli.Exit("This modality has no server", 1)
			}
			ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
			defer cancel()
			a.Poller.Poll(ctx, addr)

			s := a.Poller.Last()
			t := newTable()
			t.AppendHeader(table.Row{"Server", "Status", "Players", "Message"})
			state := text.FgRed.Sprint("offline")
			players := "-"
			if s.Online {
				state = text.FgGreen.Sprint("online")
				players = fmt.Sprintf("%d/%d", s.Players.Online, s.Players.Max)
			}
			t.AppendRow(table.Row{addr, state, players, s.Message})
			t.Render()
			return nil
		}),
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with a Microsoft account",
		Action: withApp(func(c *cli.Context, a *app.App) error {
			if a.Microsoft == nil {
				return cli.Exit("Microsoft login is not configured (set microsoft.client_id)", 1)
			}
			creds, err := a.Microsoft.Login(c.Context, func(code auth.DeviceCode) {
				fmt.Printf("Open %s and enter the code %s\n", code.VerificationURI, text.Bold.Sprint(code.UserCode))
				fmt.Printf("The code expires at %s. Press Enter to cancel.\n", code.ExpiresAt.Format("15:04"))
				a.Microsoft.CancelOnLine(os.Stdin)
			})
			if err != nil {
				return cli.Exit("Login failed: "+err.Error(), 1)
			}
			a.Config.UseMicrosoft = true
			if err := config.Save(a.Config); err != nil {
				return err
			}
			a.Sounds.Play(audio.CueSuccess)
			fmt.Printf("Logged in%s.\n", nameSuffix(creds.Username))
			return nil
		}),
	}
}

func nameSuffix(name string) string {
	if name == "" {
		return ""
	}
	return " as " + name
}

func javaCommand() *cli.Command {
	return &cli.Command{
		Name:  "java",
		Usage: "Manage the Java runtime",
		Subcommands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Find a Java runtime for a game version",
				ArgsUsage: "[game version]",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					game := c.Args().First()
					if game == "" {
						game = modality.Resolve(a.Config.Modality, modality.Options{VanillaVersion: a.Config.VanillaVersion}).VersionSpec
					}
					rt, err := a.Java.Locate(c.Context, game)
					if errors.Is(err, javart.ErrJavaNotFound) {
						return cli.Exit(fmt.Sprintf("Java %d not found. Run 'firecraft java install %d'.", javart.RequiredMajor(game), javart.RequiredMajor(game)), 2)
					}
					if err != nil {
						return err
					}
					fmt.Printf("Java %s (%d) at %s\n", rt.Version, rt.Major, rt.Path)
					return nil
				}),
			},
			{
				Name:      "install",
				Usage:     "Download a Java runtime",
				ArgsUsage: "[major]",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					major := javart.RequiredMajor(a.Config.VanillaVersion)
					if arg := c.Args().First(); arg != "" {
						n, err := strconv.Atoi(arg)
						if err != nil || n < 8 {
							return cli.Exit(fmt.Sprintf("invalid Java version %q", arg), 1)
						}
						major = n
					}
					fmt.Printf("Downloading Java %d...\n", major)
					last := -1
					rt, err := a.Java.Install(c.Context, major, func(done, total int64, fraction float64) {
						if pct := int(fraction * 100); fraction >= 0 && pct/10 != last/10 {
							last = pct
							fmt.Printf("  %d%%\n", pct)
						}
					})
					if err != nil {
						a.Sounds.Play(audio.CueError)
						return cli.Exit("Java install failed: "+err.Error(), 1)
					}
					a.Sounds.Play(audio.CueSuccess)
					fmt.Printf("Java %s installed at %s\n", rt.Version, rt.Path)
					return nil
				}),
			},
		},
	}
}

func listModalities(c *cli.Context, a *app.App) error {
	t := newTable()
	t.AppendHeader(table.Row{"ID", "Name", "Minecraft", "Loader", "Modpack", "Server"})
	for _, m := range modality.All() {
		r := modality.Resolve(m.ID, modality.Options{BaseDir: a.Config.DataDir, VanillaVersion: a.Config.VanillaVersion})
		id := m.ID
		if id == a.Config.Modality {
			id = text.Bold.Sprint(id + " *")
		}
		loader := r.LoaderSpec
		if loader == "" {
			loader = "-"
		}
		pack := "-"
		if m.HasModpack() {
			pack = "yes"
		}
		server := m.ServerAddress
		if server == "" {
			server = "-"
		}
		t.AppendRow(table.Row{id, m.DisplayName, r.VersionSpec, loader, pack, server})
	}
	t.Render()
	return nil
}

func selfUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:  "self-update",
		Usage: "Update the launcher itself",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "check", Usage: "only report whether an update exists"},
			&cli.BoolFlag{Name: "restart", Usage: "start the new version after updating"},
		},
		Action: withApp(func(c *cli.Context, a *app.App) error {
			release, available, err := a.Updater.Check(c.Context)
			if err != nil {
				return cli.Exit("Could not check for updates: "+err.Error(), 1)
			}
			if !available {
				fmt.Printf("FireCraft %s is up to date.\n", version)
				return nil
			}
			fmt.Printf("FireCraft %s is available (you have %s).\n", release.Version(), version)
			if c.Bool("check") {
				return nil
			}

			exe, err := a.Updater.Apply(c.Context, release, nil)
			if err != nil {
				a.Sounds.Play(audio.CueError)
				return cli.Exit(err.Error(), 1)
			}
			a.Sounds.Play(audio.CueSuccess)
			fmt.Println("Launcher updated.")
			if c.Bool("restart") {
				return selfupdate.Restart(exe)
			}
			return nil
		}),
	}
}
