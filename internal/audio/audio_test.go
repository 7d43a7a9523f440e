package audio

import "testing"

func TestCuesDecode(t *testing.T) {
	for _, c := range Cues {
		t.Run(string(c), func(t *testing.T) {
			data, err := Data(c)
			if err != nil {
				t.Fatalf("Data() error = %v", err)
			}
			streamer, format, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			defer streamer.Close()
			if format.SampleRate == 0 || streamer.Len() == 0 {
				t.Errorf("empty sound: rate %d, len %d", format.SampleRate, streamer.Len())
			}
		})
	}
}

func TestUnknownCue(t *testing.T) {
	if _, err := Data("nope"); err == nil {
		t.Error("Data() of unknown cue should fail")
	}
	if _, _, err := Decode(nil); err == nil {
		t.Error("Decode(nil) should fail")
	}
}

func TestQuietPlayerIsSilent(t *testing.T) {
	p := NewPlayer(true, 0, nil)
	p.Play(CueStart)
	p.PlayAsync(CueError)
	p.StopAll()
	if p.ready {
		t.Error("quiet player opened the speaker")
	}

	var nilPlayer *Player
	if !nilPlayer.Quiet() {
		t.Error("nil player should be quiet")
	}
}
