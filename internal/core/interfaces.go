// Package core defines the shared types and interfaces of the voice studio client.
package core

import "context"

// Session store keys owned by the reference audio manager.
const (
	KeyReferenceAudioData = "referenceAudioData"
	KeyReferenceAudioName = "referenceAudioName"
)

// Accepted reference audio MIME types.
const (
	MIMETypeWAV  = "audio/wav"
	MIMETypeMPEG = "audio/mpeg"
)

// AudioFile is a named binary audio payload, the Go counterpart of a browser File.
type AudioFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the payload length in bytes.
func (f AudioFile) Size() int {
	return len(f.Data)
}

// SessionStore defines a session-scoped string key-value store.
// Get reports found=false for a missing key rather than returning an error.
type SessionStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Event names emitted by a Waveform.
type Event string

const (
	EventPlay         Event = "play"
	EventPause        Event = "pause"
	EventAudioProcess Event = "audioprocess"
)

// EventHandler receives waveform events. currentTime is only meaningful
// for EventAudioProcess.
type EventHandler func(currentTime float64)

// Waveform is the waveform and playback widget the client drives.
type Waveform interface {
	Load(source string) error
	PlayPause()
	SeekTo(fraction float64)
	SkipForward(seconds float64)
	SkipBackward(seconds float64)
	Empty()
	Destroy()
	On(event Event, handler EventHandler)
}

// WaveformFactory creates a fresh Waveform instance.
type WaveformFactory func() Waveform

// ReadCallback receives the result of an asynchronous Data URL read.
type ReadCallback func(dataURL string, err error)

// FileReader reads a file into its Data URL representation and reports the
// result through the callback, possibly after ReadAsDataURL has returned.
type FileReader interface {
	ReadAsDataURL(ctx context.Context, file *AudioFile, done ReadCallback)
}
