package session

import "strings"

// Case-sensitive markers of entering a multiplayer server
var joinMarkers = []string{
	"Joining multiplayer world",
	"Server brand is",
	"[CHAT]",
}

// Lowercase markers of leaving one, matched case-insensitively
var leaveMarkers = []string{
	"disconnect",
	"stopping!",
	"returning to title screen",
}

// Classify maps a game output line to the events it implies for s. The
// line itself is always an OutputLine; a launching session is treated as
// running for join and leave detection, as the OutputLine makes it so.
func Classify(line string, s Session) []Event {
	if s.State == Idle {
		return nil
	}
	events := []Event{OutputLine{Attempt: s.Attempt, Line: line}}

	if s.OnServer {
		if matchesLeave(line) {
			events = append(events, LeftServer{Attempt: s.Attempt})
		}
		return events
	}
	if matchesJoin(line) {
		events = append(events, JoinedServer{Attempt: s.Attempt})
	}
	return events
}

func matchesJoin(line string) bool {
	for _, m := range joinMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func matchesLeave(line string) bool {
	lower := strings.ToLower(line)
	for _, m := range leaveMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
