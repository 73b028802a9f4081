// Package playback reflects a waveform widget's transport state into display
// labels and forwards transport commands to it.
package playback

import (
	"fmt"
	"math"
	"sync"

	"github.com/book-expert/voice-studio/internal/core"
)

// Display glyphs for the play/pause control.
const (
	GlyphPlay  = "▶"
	GlyphPause = "⏸"
)

// SkipSeconds is the distance moved by Forward and Backward.
const SkipSeconds = 5

// State is the playback state as shown to the user.
type State struct {
	Playing     bool
	CurrentTime float64
	Glyph       string
	Clock       string
}

// Adapter issues transport commands to the attached waveform and tracks the
// state reported by its events. Commands without an attached waveform are no-ops.
type Adapter struct {
	mu       sync.Mutex
	waveform core.Waveform
	state    State
}

// NewAdapter creates an Adapter in the paused, zero-time state.
func NewAdapter() *Adapter {
	adapter := &Adapter{}
	adapter.state = pausedAtZero()

	return adapter
}

// Attach makes w the controlled waveform and subscribes to its events.
func (a *Adapter) Attach(w core.Waveform) {
	a.mu.Lock()
	a.waveform = w
	a.mu.Unlock()

	// Events from a waveform that has since been replaced are ignored.
	w.On(core.EventPlay, func(float64) {
		a.update(w, func(state *State) {
			state.Playing = true
			state.Glyph = GlyphPause
		})
	})
	w.On(core.EventPause, func(float64) {
		a.update(w, func(state *State) {
			state.Playing = false
			state.Glyph = GlyphPlay
		})
	})
	w.On(core.EventAudioProcess, func(currentTime float64) {
		a.update(w, func(state *State) {
			state.CurrentTime = currentTime
			state.Clock = FormatClock(currentTime)
		})
	})
}

// Detach forgets the current waveform.
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.waveform = nil
}

// ResetDisplay shows the paused glyph and a zero clock.
func (a *Adapter) ResetDisplay() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state = pausedAtZero()
}

// State returns a snapshot of the playback state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// PlayPause toggles playback.
func (a *Adapter) PlayPause() {
	if w := a.current(); w != nil {
		w.PlayPause()
	}
}

// Forward skips ahead by SkipSeconds.
func (a *Adapter) Forward() {
	if w := a.current(); w != nil {
		w.SkipForward(SkipSeconds)
	}
}

// Backward skips back by SkipSeconds.
func (a *Adapter) Backward() {
	if w := a.current(); w != nil {
		w.SkipBackward(SkipSeconds)
	}
}

// Reset seeks to the start.
func (a *Adapter) Reset() {
	if w := a.current(); w != nil {
		w.SeekTo(0)
	}
}

// FormatClock renders seconds as MM:SS. Minutes wrap at one hour.
func FormatClock(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}

	total := int64(seconds)

	return fmt.Sprintf("%02d:%02d", (total/60)%60, total%60)
}

func (a *Adapter) current() core.Waveform {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.waveform
}

func (a *Adapter) update(source core.Waveform, apply func(state *State)) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.waveform != source {
		return
	}

	apply(&a.state)
}

func pausedAtZero() State {
	return State{
		Playing:     false,
		CurrentTime: 0,
		Glyph:       GlyphPlay,
		Clock:       FormatClock(0),
	}
}
