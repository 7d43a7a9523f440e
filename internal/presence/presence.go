// Package presence mirrors the launcher's activity to Discord Rich Presence.
package presence

import (
	"fmt"
	"time"

	"github.com/firemods/firecraft-launcher/internal/modality"
	"github.com/firemods/firecraft-launcher/internal/session"
	"github.com/firemods/firecraft-launcher/internal/status"
)

// FreshFor is how old a server status may be and still be shown
const FreshFor = 60 * time.Second

// DownloadURL is linked from the presence button
const DownloadURL = "https://firemods.net/storage/Modpacks/launcher.zip"

// Button is a link shown under the activity
type Button struct {
	Label string
	URL   string
}

// Activity is the payload shown on the user's profile
type Activity struct {
	Details    string
	State      string
	LargeImage string
	LargeText  string
	SmallImage string
	SmallText  string
	Start      time.Time
	Buttons    []Button
}

// Build derives the activity from the session and the latest server status.
// Start is the session start for an active session and zero when idle.
func Build(s session.Session, st status.Snapshot, now time.Time) Activity {
	a := Activity{
		LargeImage: "firecraft_logo",
		LargeText:  "FireCraft Launcher",
		SmallImage: "minecraft_icon",
		SmallText:  "Playing Minecraft",
		Buttons:    []Button{{Label: "Download Launcher", URL: DownloadURL}},
	}

	name := s.Modality
	if m, ok := modality.Lookup(s.Modality); ok {
		name = m.DisplayName
	}

	switch s.State {
	case session.Idle:
		a.Details = "In the launcher"
		a.State = "Choosing a modality..."
	case session.Launching:
		a.Details = "Launching the game..."
		a.State = "Modality: " + name
		a.Start = s.StartedAt
	case session.Running:
		a.Details = "Playing " + name
		a.Start = s.StartedAt
		switch {
		case !s.OnServer:
			a.State = "In the main menu"
		case st.Fresh(now, FreshFor):
			a.State = fmt.Sprintf("(%d/%d players)", st.Players.Online, st.Players.Max)
		default:
			a.State = "On a server"
		}
	}
	return a
}
