// Package tui is the interactive terminal front-end. It only talks to the
// launcher core through the event bus: it renders notifications and
// publishes requests.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firemods/firecraft-launcher/internal/audio"
	"github.com/firemods/firecraft-launcher/internal/events"
	"github.com/firemods/firecraft-launcher/internal/launch"
	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/modpack"
	"github.com/firemods/firecraft-launcher/internal/session"
	"github.com/firemods/firecraft-launcher/internal/status"
)

// maxLogLines bounds the log pane
const maxLogLines = 500

type screen int

const (
	screenMain screen = iota
	screenMods
	screenConfirmRepair
	screenJava
)

// Sounds plays feedback cues
type Sounds interface {
	PlayAsync(c audio.Cue)
}

// Options configures the front-end
type Options struct {
	Bus *events.Bus
	// Request is the template for every launch; Modality is overwritten by
	// the selection.
	Request launch.Request
	Sounds  Sounds
}

type eventMsg events.Event

type busClosedMsg struct{}

type modalityItem struct {
	m modality.Modality
}

func (i modalityItem) Title() string { return i.m.DisplayName }
func (i modalityItem) Description() string {
	desc := "Minecraft " + i.m.GameVersion
	if i.m.Loader != modality.LoaderNone {
		desc += " · " + string(i.m.Loader)
	}
	if i.m.HasModpack() {
		desc += " · modpack"
	}
	return desc
}
func (i modalityItem) FilterValue() string { return i.m.ID }

type modItem struct {
	mod modpack.Mod
}

func (i modItem) Title() string {
	name := i.mod.Name
	if name == "" {
		name = i.mod.FileName
	}
	if !i.mod.Enabled {
		return "[ ] " + name
	}
	return "[x] " + name
}
func (i modItem) Description() string {
	if i.mod.Version != "" {
		return i.mod.Version + " · " + i.mod.FileName
	}
	return i.mod.FileName
}
func (i modItem) FilterValue() string { return i.mod.FileName }

// App is the bubbletea model
type App struct {
	bus    *events.Bus
	events <-chan events.Event
	cancel func()
	req    launch.Request
	sounds Sounds

	screen     screen
	modalities list.Model
	mods       list.Model
	modsFor    string
	bar        progress.Model
	spin       spinner.Model
	logView    viewport.Model

	session   session.Session
	status    status.Snapshot
	progress  events.ProgressPayload
	logLines  []string
	notice    string
	javaMajor int

	width  int
	height int
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF7A1A"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	onlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CD964"))
	promptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD60A"))
)

// New creates the model and subscribes it to the bus
func New(opts Options) *App {
	items := []list.Item{}
	selected := 0
	for i, m := range modality.All() {
		items = append(items, modalityItem{m: m})
		if m.ID == opts.Request.Modality {
			selected = i
		}
	}
	modalities := list.New(items, list.NewDefaultDelegate(), 0, 0)
	modalities.Title = "Modalities"
	modalities.SetShowStatusBar(false)
	modalities.SetFilteringEnabled(false)
	modalities.SetShowHelp(false)
	modalities.Select(selected)

	mods := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	mods.SetShowStatusBar(false)
	mods.SetFilteringEnabled(false)
	mods.SetShowHelp(false)

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	ch, cancel := opts.Bus.Subscribe(256)
	return &App{
		bus:        opts.Bus,
		events:     ch,
		cancel:     cancel,
		req:        opts.Request,
		sounds:     opts.Sounds,
		modalities: modalities,
		mods:       mods,
		bar:        progress.New(progress.WithDefaultGradient()),
		spin:       spin,
		logView:    viewport.New(0, 0),
	}
}

// Run shows the front-end until the user quits or ctx ends
func Run(ctx context.Context, opts Options) error {
	app := New(opts)
	defer app.cancel()
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) waitForEvent() tea.Cmd {
	ch := a.events
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return busClosedMsg{}
		}
		return eventMsg(e)
	}
}

// Init starts listening to the bus
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForEvent(), a.spin.Tick)
}

func (a *App) play(c audio.Cue) {
	if a.sounds != nil {
		a.sounds.PlayAsync(c)
	}
}

func (a *App) selected() modality.Modality {
	if item, ok := a.modalities.SelectedItem().(modalityItem); ok {
		return item.m
	}
	m, _ := modality.Lookup(modality.Vanilla)
	return m
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		return a, nil

	case busClosedMsg:
		return a, tea.Quit

	case eventMsg:
		cmd := a.handleEvent(events.Event(msg))
		return a, tea.Batch(cmd, a.waitForEvent())

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case progress.FrameMsg:
		model, cmd := a.bar.Update(msg)
		a.bar = model.(progress.Model)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) layout() {
	side := max(24, a.width/3)
	bodyHeight := max(6, a.height-8)
	a.modalities.SetSize(side, bodyHeight)
	a.mods.SetSize(max(20, a.width-6), bodyHeight)
	a.bar.Width = max(10, a.width-side-12)
	a.logView.Width = max(10, a.width-side-8)
	a.logView.Height = max(3, bodyHeight-6)
}

func (a *App) handleEvent(e events.Event) tea.Cmd {
	switch e.Name {
	case events.SessionStateChanged:
		s, ok := e.Payload.(session.Session)
		if !ok {
			return nil
		}
		prev := a.session
		a.session = s
		switch {
		case s.State == session.Running && prev.State != session.Running:
			a.play(audio.CueStart)
		case s.OnServer && !prev.OnServer:
			a.play(audio.CueJoined)
		}

	case events.LogLine:
		if p, ok := e.Payload.(events.LogPayload); ok {
			a.appendLog(p)
			if p.Level == events.LevelError {
				a.play(audio.CueError)
			}
		}

	case events.Progress:
		if p, ok := e.Payload.(events.ProgressPayload); ok {
			a.progress = p
			if p.Total > 0 {
				return a.bar.SetPercent(float64(p.Task) / float64(p.Total))
			}
			return a.bar.SetPercent(0)
		}

	case events.JavaNotFound:
		if p, ok := e.Payload.(launch.JavaPayload); ok {
			a.javaMajor = p.Required
			a.screen = screenJava
		}

	case events.JavaInstallFinished:
		if p, ok := e.Payload.(events.ResultPayload); ok {
			a.notice = result("Java installed, press enter to play", "Java install failed", p)
			a.cue(p)
		}

	case events.RepairFinished:
		if p, ok := e.Payload.(events.ResultPayload); ok {
			a.notice = result("Installation reset", "Repair failed", p)
			a.cue(p)
		}

	case events.ModsListResponse:
		if p, ok := e.Payload.(launch.ModsPayload); ok && p.Modality == a.modsFor {
			items := make([]list.Item, len(p.Mods))
			for i, mod := range p.Mods {
				items[i] = modItem{mod: mod}
			}
			idx := a.mods.Index()
			a.mods.SetItems(items)
			a.mods.Select(min(idx, max(0, len(items)-1)))
			if p.Error != "" {
				a.notice = errorStyle.Render(p.Error)
			}
		}

	case events.ServerStatus:
		if s, ok := e.Payload.(status.Snapshot); ok {
			a.status = s
		}
	}
	return nil
}

func (a *App) cue(p events.ResultPayload) {
	if p.OK {
		a.play(audio.CueSuccess)
	} else {
		a.play(audio.CueError)
	}
}

func result(ok, failed string, p events.ResultPayload) string {
	if p.OK {
		return infoStyle.Render(ok)
	}
	return errorStyle.Render(failed + ": " + p.Error)
}

func (a *App) appendLog(p events.LogPayload) {
	line := p.Text
	switch p.Level {
	case events.LevelError:
		line = errorStyle.Render(line)
	case events.LevelInfo:
		line = infoStyle.Render(line)
	}
	a.logLines = append(a.logLines, line)
	if len(a.logLines) > maxLogLines {
		a.logLines = a.logLines[len(a.logLines)-maxLogLines:]
	}
	a.logView.SetContent(strings.Join(a.logLines, "\n"))
	a.logView.GotoBottom()
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return a, tea.Quit
	}

	switch a.screen {
	case screenConfirmRepair:
		switch msg.String() {
		case "y", "Y":
			a.bus.Publish(events.RepairRequest, a.selected().ID)
			a.notice = "Repairing..."
			a.screen = screenMain
		case "n", "N", "esc":
			a.screen = screenMain
		}
		return a, nil

	case screenJava:
		switch msg.String() {
		case "y", "Y", "enter":
			a.bus.Publish(events.JavaInstall, a.javaMajor)
			a.notice = fmt.Sprintf("Installing Java %d...", a.javaMajor)
			a.screen = screenMain
		case "n", "N", "esc":
			a.screen = screenMain
		}
		return a, nil

	case screenMods:
		switch msg.String() {
		case "esc", "q", "m":
			a.screen = screenMain
			return a, nil
		case "enter", " ":
			if item, ok := a.mods.SelectedItem().(modItem); ok {
				a.bus.Publish(events.ModToggleRequest, launch.ToggleRequest{Modality: a.modsFor, FileName: item.mod.FileName})
				a.play(audio.CueSelect)
			}
			return a, nil
		}
		var cmd tea.Cmd
		a.mods, cmd = a.mods.Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "enter":
		if a.session.Active() {
			a.notice = "The game is already running"
			return a, nil
		}
		req := a.req
		req.Modality = a.selected().ID
		a.notice = ""
		a.bus.Publish(events.LaunchRequest, req)
		a.play(audio.CueSelect)
		return a, nil
	case "f":
		if a.session.Active() {
			a.bus.Publish(events.ForceCloseRequest, nil)
		}
		return a, nil
	case "r":
		if a.selected().HasModpack() {
			a.screen = screenConfirmRepair
		} else {
			a.notice = a.selected().DisplayName + " has no modpack to repair"
		}
		return a, nil
	case "m":
		a.modsFor = a.selected().ID
		a.mods.Title = "Mods · " + a.selected().DisplayName
		a.mods.SetItems(nil)
		a.screen = screenMods
		a.bus.Publish(events.ModsListRequest, a.modsFor)
		return a, nil
	}

	// Selection is locked while a session is active.
	if a.session.Active() {
		return a, nil
	}
	var cmd tea.Cmd
	a.modalities, cmd = a.modalities.Update(msg)
	return a, cmd
}
