// Package waveform provides a headless waveform widget: it loads Data URL
// audio, tracks a transport position, computes display peaks and emits the
// play, pause and audioprocess events.
package waveform

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dataurl"
)

// ErrDestroyed is returned when loading into a destroyed player.
var ErrDestroyed = errors.New("waveform player destroyed")

// Player implements core.Waveform without a display surface.
type Player struct {
	mu        sync.Mutex
	handlers  map[core.Event][]core.EventHandler
	info      WAVInfo
	duration  float64
	position  float64
	loaded    bool
	playing   bool
	destroyed bool
}

// NewPlayer creates an empty Player.
func NewPlayer() *Player {
	return &Player{handlers: make(map[core.Event][]core.EventHandler)}
}

// Factory returns a core.WaveformFactory producing Players. Every created
// player is passed to onCreate when it is non-nil.
func Factory(onCreate func(*Player)) core.WaveformFactory {
	return func() core.Waveform {
		player := NewPlayer()
		if onCreate != nil {
			onCreate(player)
		}

		return player
	}
}

// On registers handler for event.
func (p *Player) On(event core.Event, handler core.EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return
	}

	p.handlers[event] = append(p.handlers[event], handler)
}

// Load decodes a Data URL and resets the transport. Non-WAV audio loads
// with an unknown (zero) duration.
func (p *Player) Load(source string) error {
	file, err := dataurl.Decode(source, "")
	if err != nil {
		return fmt.Errorf("failed to load waveform source: %w", err)
	}

	var info WAVInfo

	if isWAV(file.MIMEType) {
		info, err = ParseWAV(file.Data)
		if err != nil {
			return fmt.Errorf("failed to load waveform source: %w", err)
		}
	}

	p.mu.Lock()

	if p.destroyed {
		p.mu.Unlock()

		return ErrDestroyed
	}

	wasPlaying := p.playing
	p.info = info
	p.duration = info.Duration()
	p.position = 0
	p.loaded = true
	p.playing = false
	p.mu.Unlock()

	if wasPlaying {
		p.emit(core.EventPause, 0)
	}

	return nil
}

// PlayPause toggles playback of loaded audio.
func (p *Player) PlayPause() {
	p.mu.Lock()

	if !p.loaded {
		p.mu.Unlock()

		return
	}

	p.playing = !p.playing
	playing := p.playing
	position := p.position
	p.mu.Unlock()

	if playing {
		p.emit(core.EventPlay, position)
	} else {
		p.emit(core.EventPause, position)
	}
}

// SeekTo moves to fraction (0..1) of the duration.
func (p *Player) SeekTo(fraction float64) {
	fraction = math.Max(0, math.Min(1, fraction))

	p.moveTo(func(float64) float64 { return fraction * p.duration })
}

// SkipForward moves ahead by seconds.
func (p *Player) SkipForward(seconds float64) {
	p.moveTo(func(position float64) float64 { return position + seconds })
}

// SkipBackward moves back by seconds.
func (p *Player) SkipBackward(seconds float64) {
	p.moveTo(func(position float64) float64 { return position - seconds })
}

// Advance simulates elapsed playback time. Reaching the end pauses the player.
func (p *Player) Advance(elapsed time.Duration) {
	p.mu.Lock()

	if !p.loaded || !p.playing {
		p.mu.Unlock()

		return
	}

	p.position = p.clamp(p.position + elapsed.Seconds())
	position := p.position
	finished := p.duration > 0 && position >= p.duration

	if finished {
		p.playing = false
	}

	p.mu.Unlock()

	p.emit(core.EventAudioProcess, position)

	if finished {
		p.emit(core.EventPause, position)
	}
}

// Empty unloads the audio and keeps registered handlers.
func (p *Player) Empty() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.info = WAVInfo{}
	p.duration = 0
	p.position = 0
	p.loaded = false
	p.playing = false
}

// Destroy unloads the audio and drops all handlers.
func (p *Player) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.info = WAVInfo{}
	p.duration = 0
	p.position = 0
	p.loaded = false
	p.playing = false
	p.destroyed = true
	p.handlers = make(map[core.Event][]core.EventHandler)
}

// Duration returns the loaded audio's length in seconds.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.duration
}

// CurrentTime returns the transport position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.position
}

// IsPlaying reports whether playback is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.playing
}

// Loaded reports whether audio is loaded.
func (p *Player) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.loaded
}

// Destroyed reports whether Destroy has been called.
func (p *Player) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.destroyed
}

// Peaks returns bars normalized peak amplitudes (0..1) of 16-bit PCM audio,
// one per display bar. It returns nil for audio it cannot analyse.
func (p *Player) Peaks(bars int) []float64 {
	p.mu.Lock()
	info := p.info
	p.mu.Unlock()

	if bars <= 0 || info.BitsPerSample != pcmBitsPerSample || info.Channels <= 0 {
		return nil
	}

	frameSize := 2 * info.Channels
	frames := len(info.PCM) / frameSize

	if frames == 0 {
		return nil
	}

	peaks := make([]float64, bars)

	for frame := range frames {
		bar := frame * bars / frames
		offset := frame * frameSize

		for channel := range info.Channels {
			at := offset + channel*2
			sample := int16(uint16(info.PCM[at]) | uint16(info.PCM[at+1])<<8)
			amplitude := math.Abs(float64(sample)) / math.MaxInt16

			if amplitude > peaks[bar] {
				peaks[bar] = math.Min(amplitude, 1)
			}
		}
	}

	return peaks
}

func (p *Player) moveTo(target func(position float64) float64) {
	p.mu.Lock()

	if !p.loaded {
		p.mu.Unlock()

		return
	}

	p.position = p.clamp(target(p.position))
	position := p.position
	p.mu.Unlock()

	p.emit(core.EventAudioProcess, position)
}

// clamp bounds position to the loaded audio. Callers hold p.mu.
func (p *Player) clamp(position float64) float64 {
	if position < 0 {
		return 0
	}

	if p.duration > 0 && position > p.duration {
		return p.duration
	}

	return position
}

func (p *Player) emit(event core.Event, currentTime float64) {
	p.mu.Lock()
	handlers := append([]core.EventHandler(nil), p.handlers[event]...)
	p.mu.Unlock()

	for _, handler := range handlers {
		handler(currentTime)
	}
}

func isWAV(mimeType string) bool {
	switch mimeType {
	case core.MIMETypeWAV, "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return true
	default:
		return false
	}
}
