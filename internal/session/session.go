// Package session models the life of one game launch as a value and a pure
// transition function. Nothing here performs I/O; callers apply events and
// forward the returned notices.
package session

import (
	"time"
)

// State is the coarse phase of a session
type State int

const (
	Idle State = iota
	Launching
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Running:
		return "running"
	}
	return "unknown"
}

// Session is the launch in progress, if any. OnServer only has meaning
// while Running.
type Session struct {
	State    State
	OnServer bool
	Modality string
	RootPath string
	// ServerAddress is the direct-connect target, empty for a normal launch
	ServerAddress string
	StartedAt     time.Time
	// Attempt numbers launches so late events of an old one are ignored
	Attempt uint64
}

// Active reports whether a launch is underway
func (s Session) Active() bool {
	return s.State != Idle
}

// Event is an input to Transition
type Event interface {
	event()
}

// LaunchRequested asks to start a launch of Modality at RootPath
type LaunchRequested struct {
	Modality      string
	RootPath      string
	ServerAddress string
	At            time.Time
}

// LaunchFailed ends an attempt whose setup failed
type LaunchFailed struct {
	Attempt uint64
	Err     error
}

// JavaMissing ends an attempt for lack of a Java runtime
type JavaMissing struct {
	Attempt  uint64
	Required int
}

// OutputLine is a line printed by the game
type OutputLine struct {
	Attempt uint64
	Line    string
}

// JoinedServer marks the player as connected to a server
type JoinedServer struct {
	Attempt uint64
}

// LeftServer marks the player as back out of a server
type LeftServer struct {
	Attempt uint64
}

// ProcessClosed reports that the game process of Attempt exited
type ProcessClosed struct {
	Attempt  uint64
	ExitCode int
}

// ForceClosed is the user killing the game
type ForceClosed struct{}

func (LaunchRequested) event() {}
func (LaunchFailed) event()    {}
func (JavaMissing) event()     {}
func (OutputLine) event()      {}
func (JoinedServer) event()    {}
func (LeftServer) event()      {}
func (ProcessClosed) event()   {}
func (ForceClosed) event()     {}

// Notice is an output of Transition for the UI and presence
type Notice interface {
	notice()
}

// StateChanged carries the session after a visible change
type StateChanged struct {
	Session Session
}

// JavaNotFound asks the user to install Java
type JavaNotFound struct {
	Required int
}

// LaunchError reports why a launch did not start
type LaunchError struct {
	Err error
}

func (StateChanged) notice() {}
func (JavaNotFound) notice() {}
func (LaunchError) notice()  {}

// Transition applies e to s. It returns the next session, the notices to
// publish, and whether the event was accepted. A rejected event leaves the
// session unchanged and produces no notices.
func Transition(s Session, e Event) (Session, []Notice, bool) {
	switch e := e.(type) {
	case LaunchRequested:
		if s.State != Idle {
			return s, nil, false
		}
		next := Session{
			State:         Launching,
			Modality:      e.Modality,
			RootPath:      e.RootPath,
			ServerAddress: e.ServerAddress,
			StartedAt:     e.At,
			Attempt:       s.Attempt + 1,
		}
		return next, changed(next), true

	case LaunchFailed:
		if !current(s, e.Attempt) {
			return s, nil, false
		}
		next := reset(s)
		return next, append([]Notice{LaunchError{Err: e.Err}}, changed(next)...), true

	case JavaMissing:
		if !current(s, e.Attempt) {
			return s, nil, false
		}
		next := reset(s)
		return next, append([]Notice{JavaNotFound{Required: e.Required}}, changed(next)...), true

	case OutputLine:
		if !current(s, e.Attempt) {
			return s, nil, false
		}
		if s.State == Launching {
			s.State = Running
			return s, changed(s), true
		}
		return s, nil, true

	case JoinedServer:
		if !current(s, e.Attempt) || s.State != Running {
			return s, nil, false
		}
		if s.OnServer {
			return s, nil, true
		}
		s.OnServer = true
		return s, changed(s), true

	case LeftServer:
		if !current(s, e.Attempt) || s.State != Running {
			return s, nil, false
		}
		if !s.OnServer {
			return s, nil, true
		}
		s.OnServer = false
		return s, changed(s), true

	case ProcessClosed:
		if !current(s, e.Attempt) {
			return s, nil, false
		}
		next := reset(s)
		return next, changed(next), true

	case ForceClosed:
		next := reset(s)
		if s.State == Idle {
			return next, nil, true
		}
		return next, changed(next), true
	}
	return s, nil, false
}

// current reports whether an event of attempt belongs to the live session
func current(s Session, attempt uint64) bool {
	return s.State != Idle && s.Attempt == attempt
}

// reset returns to idle, keeping the attempt counter
func reset(s Session) Session {
	return Session{State: Idle, Attempt: s.Attempt}
}

func changed(s Session) []Notice {
	return []Notice{StateChanged{Session: s}}
}
