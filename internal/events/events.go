// Package events is the named notification surface between the launcher
// core and its front-ends.
package events

import (
	"sync"
	"time"
)

// Name identifies a notification
type Name string

const (
	LaunchRequest       Name = "launch_request"
	ForceCloseRequest   Name = "force_close_request"
	SessionStateChanged Name = "session_state_changed"
	LogLine             Name = "log_line"
	Progress            Name = "progress"
	JavaNotFound        Name = "java_not_found"
	JavaInstall         Name = "java_install"
	JavaInstallFinished Name = "java_install_finished"
	RepairRequest       Name = "repair_request"
	RepairFinished      Name = "repair_finished"
	ModsListRequest     Name = "mods_list_request"
	ModsListResponse    Name = "mods_list_response"
	ModToggleRequest    Name = "mod_toggle_request"
	ServerStatus        Name = "server_status"
)

// Log levels used in LogPayload
const (
	LevelData  = "DATA"
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// Event is one notification. Payload type depends on Name.
type Event struct {
	Name    Name
	At      time.Time
	Payload any
}

// LogPayload is a line for the launcher log view
type LogPayload struct {
	Level string
	Text  string
}

// ProgressPayload is a task counter. A zero value clears the progress bar.
type ProgressPayload struct {
	Type  string
	Task  int
	Total int
}

// ResultPayload reports the outcome of a request
type ResultPayload struct {
	OK    bool
	Error string
}

// Lossy reports whether events named n may be dropped for a subscriber
// that is behind. Only the high-volume log and progress streams are; state
// changes, requests and results always arrive, in publish order.
func Lossy(n Name) bool {
	return n == LogLine || n == Progress
}

// Bus fans events out to subscribers. Publish never blocks: each subscriber
// has its own queue, and a subscriber more than its buffer behind misses
// lossy events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
	now    func() time.Time
}

type subscription struct {
	mu    sync.Mutex
	queue []Event
	limit int
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
	out   chan Event
}

func (s *subscription) push(e Event) {
	s.mu.Lock()
	if Lossy(e.Name) && len(s.queue) >= s.limit {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliver moves queued events to the subscriber until stopped. Events still
// queued at stop are discarded.
func (s *subscription) deliver() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		e := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription), now: time.Now}
}

// Subscribe returns a channel receiving every event published from now on,
// and a function that unsubscribes and closes it. buffer bounds how many
// lossy events wait for a slow reader.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{
		limit: buffer,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		out:   make(chan Event),
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	go sub.deliver()

	return sub.out, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.stop()
	}
}

// Publish sends an event to all subscribers
func (b *Bus) Publish(name Name, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	e := Event{Name: name, At: b.now(), Payload: payload}
	for _, sub := range b.subs {
		sub.push(e)
	}
}

// Log publishes a log line
func (b *Bus) Log(level, text string) {
	b.Publish(LogLine, LogPayload{Level: level, Text: text})
}

// Close closes every subscription; later publishes are dropped
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.stop()
	}
}
