// Package audio plays the launcher's short feedback cues.
package audio

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/wav"
	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/logging"
)

//go:embed sounds/*.wav
var sounds embed.FS

// Cue names one embedded sound
type Cue string

const (
	CueStart       Cue = "start"
	CueSuccess     Cue = "success"
	CueError       Cue = "error"
	CueDownloading Cue = "downloading"
	CueJoined      Cue = "joined"
	CueSelect      Cue = "select"
)

// Cues lists every embedded cue
var Cues = []Cue{CueStart, CueSuccess, CueError, CueDownloading, CueJoined, CueSelect}

// Data returns the WAV bytes of a cue
func Data(c Cue) ([]byte, error) {
	data, err := sounds.ReadFile("sounds/" + string(c) + ".wav")
	if err != nil {
		return nil, fmt.Errorf("unknown sound %q: %w", c, err)
	}
	return data, nil
}

// Player plays cues on the default output device. The speaker is opened
// lazily on the first cue, so a quiet player never touches audio hardware.
type Player struct {
	quiet  bool
	volume float64
	logger *zap.Logger

	once  sync.Once
	ready bool
	mu    sync.Mutex
}

// NewPlayer creates a Player. volumeDB is applied to every cue (0 = as recorded).
func NewPlayer(quiet bool, volumeDB float64, logger *zap.Logger) *Player {
	return &Player{quiet: quiet, volume: volumeDB, logger: logging.OrNop(logger)}
}

// Quiet reports whether the player is muted
func (p *Player) Quiet() bool {
	return p == nil || p.quiet
}

func (p *Player) ensureSpeaker(format beep.Format) bool {
	p.once.Do(func() {
		p.logger.Debug("setting up audio", zap.Int("sample_rate", int(format.SampleRate)))
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			p.logger.Warn("audio unavailable", zap.Error(err))
			return
		}
		p.ready = true
	})
	return p.ready
}

// Decode turns WAV data into a streamer
func Decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) == 0 {
		return nil, beep.Format{}, fmt.Errorf("no sound data")
	}
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode sound: %w", err)
	}
	return streamer, format, nil
}

func (p *Player) start(c Cue) (<-chan struct{}, bool) {
	if p.Quiet() {
		return nil, false
	}
	data, err := Data(c)
	if err != nil {
		p.logger.Debug("sound not played", zap.Error(err))
		return nil, false
	}
	streamer, format, err := Decode(data)
	if err != nil {
		p.logger.Debug("sound not played", zap.String("cue", string(c)), zap.Error(err))
		return nil, false
	}
	if !p.ensureSpeaker(format) {
		streamer.Close()
		return nil, false
	}

	done := make(chan struct{})
	vol := &effects.Volume{Streamer: streamer, Base: 2, Volume: p.volume}
	speaker.Play(beep.Seq(vol, beep.Callback(func() {
		streamer.Close()
		close(done)
	})))
	return done, true
}

// Play plays a cue and blocks until it finishes
func (p *Player) Play(c Cue) {
	if done, ok := p.start(c); ok {
		<-done
	}
}

// PlayAsync plays a cue without waiting for it
func (p *Player) PlayAsync(c Cue) {
	p.start(c)
}

// StopAll silences every cue still playing
func (p *Player) StopAll() {
	if p.Quiet() || !p.ready {
		return
	}
	speaker.Clear()
}
