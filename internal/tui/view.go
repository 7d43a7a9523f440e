package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/firemods/firecraft-launcher/internal/session"
)

// View renders the current screen
func (a *App) View() string {
	header := titleStyle.Render("🔥 FireCraft Launcher")

	var body string
	switch a.screen {
	case screenMods:
		body = boxStyle.Render(a.mods.View())
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			boxStyle.Render(a.modalities.View()),
			boxStyle.Render(a.sessionPane()),
		)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, a.footer())
}

func (a *App) sessionPane() string {
	var b strings.Builder

	state := a.session.State.String()
	switch a.session.State {
	case session.Launching:
		state = a.spin.View() + " " + state
	case session.Running:
		if a.session.OnServer {
			state += " · on a server"
		}
	}
	fmt.Fprintf(&b, "Session: %s\n", state)
	b.WriteString(a.statusLine())
	b.WriteString("\n\n")

	if a.progress.Total > 0 {
		fmt.Fprintf(&b, "%s (%d/%d)\n%s\n\n", a.progress.Type, a.progress.Task, a.progress.Total, a.bar.View())
	}

	b.WriteString(a.logView.View())
	return b.String()
}

func (a *App) statusLine() string {
	addr := a.selected().ServerAddress
	if addr == "" {
		return dimStyle.Render("No server for this modality")
	}
	if a.status.Address != addr || a.status.FetchedAt.IsZero() {
		return dimStyle.Render(addr + " · checking...")
	}
	if !a.status.Online {
		return errorStyle.Render(addr + " · offline")
	}
	line := fmt.Sprintf("%s · online · %d/%d players", addr, a.status.Players.Online, a.status.Players.Max)
	return onlineStyle.Render(line)
}

func (a *App) footer() string {
	var prompt string
	switch a.screen {
	case screenConfirmRepair:
		prompt = promptStyle.Render(fmt.Sprintf("Delete mods and config of %s and reinstall on next launch? (y/n)", a.selected().DisplayName))
	case screenJava:
		prompt = promptStyle.Render(fmt.Sprintf("Java %d was not found. Download it now? (y/n)", a.javaMajor))
	}

	help := "enter play · f force close · r repair · m mods · q quit"
	if a.screen == screenMods {
		help = "enter toggle · esc back"
	}

	lines := []string{}
	if prompt != "" {
		lines = append(lines, prompt)
	}
	if a.notice != "" {
		lines = append(lines, a.notice)
	}
	lines = append(lines, dimStyle.Render(help))
	return strings.Join(lines, "\n")
}
