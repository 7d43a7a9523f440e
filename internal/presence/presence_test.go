package presence

import (
	"testing"
	"time"

	"github.com/firemods/firecraft-launcher/internal/session"
	"github.com/firemods/firecraft-launcher/internal/status"
)

func TestBuild(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Minute)
	fresh := status.Snapshot{Online: true, Players: status.Players{Online: 37, Max: 200}, FetchedAt: now.Add(-5 * time.Second)}
	stale := fresh
	stale.FetchedAt = now.Add(-5 * time.Minute)

	running := session.Session{State: session.Running, Modality: "firemods-neoforge", StartedAt: started, Attempt: 1}
	onServer := running
	onServer.OnServer = true

	tests := []struct {
		name    string
		s       session.Session
		st      status.Snapshot
		details string
		state   string
		start   time.Time
	}{
		{"idle", session.Session{}, fresh, "In the launcher", "Choosing a modality...", time.Time{}},
		{"launching", session.Session{State: session.Launching, Modality: "firelite-forge", StartedAt: started}, fresh, "Launching the game...", "Modality: FireLite", started},
		{"main menu", running, fresh, "Playing FireMods", "In the main menu", started},
		{"on server", onServer, fresh, "Playing FireMods", "(37/200 players)", started},
		{"on server stale status", onServer, stale, "Playing FireMods", "On a server", started},
		{"on server offline status", onServer, status.Snapshot{FetchedAt: now}, "Playing FireMods", "On a server", started},
		{"unknown modality", session.Session{State: session.Running, Modality: "custom"}, fresh, "Playing custom", "In the main menu", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Build(tt.s, tt.st, now)
			if a.Details != tt.details || a.State != tt.state {
				t.Errorf("Build() = %q / %q, want %q / %q", a.Details, a.State, tt.details, tt.state)
			}
			if !a.Start.Equal(tt.start) {
				t.Errorf("Start = %v, want %v", a.Start, tt.start)
			}
			if len(a.Buttons) != 1 || a.Buttons[0].URL != DownloadURL {
				t.Errorf("Buttons = %+v", a.Buttons)
			}
		})
	}
}
