package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/firemods/firecraft-launcher/internal/audio"
)

// SoundPlayer defines the interface for playing sounds
type SoundPlayer interface {
	Play(c audio.Cue)
	PlayAsync(c audio.Cue)
}

// Config holds configuration for prompting
type Config struct {
	NonInteractive bool
	Sound          SoundPlayer
	In             io.Reader
	Out            io.Writer
}

func (c Config) reader() *bufio.Reader {
	if c.In == nil {
		return bufio.NewReader(os.Stdin)
	}
	if r, ok := c.In.(*bufio.Reader); ok {
		return r
	}
	return bufio.NewReader(c.In)
}

func (c Config) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// WaitForKey waits for user to press Enter
func WaitForKey(prompt string, cfg Config) {
	if cfg.NonInteractive {
		return
	}
	fmt.Fprint(cfg.out(), prompt)
	cfg.reader().ReadBytes('\n')
}

// Confirm asks the user to confirm an action
func Confirm(prompt string, cfg Config) bool {
	if cfg.NonInteractive {
		return true
	}

	fmt.Fprintf(cfg.out(), "%s (y/n): ", prompt)
	response, err := cfg.reader().ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	confirmed := response == "y" || response == "yes"

	if cfg.Sound != nil {
		if confirmed || response == "n" || response == "no" {
			cfg.Sound.Play(audio.CueSelect)
		}
		if confirmed {
			cfg.Sound.PlayAsync(audio.CueSuccess)
		}
	}

	return confirmed
}

// Option is one entry of a Menu
type Option struct {
	Label       string
	Description string
}

// Menu lists options and returns the index chosen, or -1 when input ends.
// Non-interactive callers get def.
func Menu(title string, options []Option, def int, cfg Config) int {
	if cfg.NonInteractive || len(options) == 0 {
		return def
	}
	out := cfg.out()

	fmt.Fprintf(out, "\n%s\n\n", title)
	for i, o := range options {
		fmt.Fprintf(out, "  %d. %s\n", i+1, o.Label)
		if o.Description != "" {
			fmt.Fprintf(out, "     %s\n", o.Description)
		}
	}
	fmt.Fprintf(out, "\nEnter your choice (1-%d): ", len(options))

	r := cfg.reader()
	for {
		response, err := r.ReadString('\n')
		if err != nil && response == "" {
			fmt.Fprintln(out)
			return -1
		}
		choice, convErr := strconv.Atoi(strings.TrimSpace(response))
		if convErr == nil && choice >= 1 && choice <= len(options) {
			if cfg.Sound != nil {
				cfg.Sound.PlayAsync(audio.CueSelect)
			}
			return choice - 1
		}
		if err != nil {
			fmt.Fprintln(out)
			return -1
		}
		fmt.Fprintf(out, "Invalid choice. Please enter 1-%d: ", len(options))
	}
}
