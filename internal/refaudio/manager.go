// Package refaudio manages the reference voice sample: the active audio
// file, its copy in the session store, and the waveform widget showing it.
package refaudio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dataurl"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/google/uuid"
)

// PlaceholderText is shown in place of the waveform when no audio is active.
const PlaceholderText = "Upload or record audio to see waveform"

var (
	// ErrValidation is the parent of all input validation errors.
	ErrValidation = errors.New("validation error")
	// ErrUnsupportedType indicates a file whose MIME type the picker does not accept.
	ErrUnsupportedType = fmt.Errorf("%w: unsupported audio type", ErrValidation)
	// ErrAlreadyRestored is returned when RestoreFromSession runs a second time.
	ErrAlreadyRestored = errors.New("session already restored")
	// ErrStoreRequired indicates that Options.Store is nil.
	ErrStoreRequired = errors.New("session store is required")
	// ErrWaveformRequired indicates that Options.NewWaveform is nil.
	ErrWaveformRequired = errors.New("waveform factory is required")
	// ErrLoggerRequired indicates that Options.Logger is nil.
	ErrLoggerRequired = errors.New("logger is required")
)

// mimeAliases maps the spellings browsers and recorders use to the two accepted types.
var mimeAliases = map[string]string{
	core.MIMETypeWAV:  core.MIMETypeWAV,
	"audio/x-wav":     core.MIMETypeWAV,
	"audio/wave":      core.MIMETypeWAV,
	"audio/vnd.wave":  core.MIMETypeWAV,
	core.MIMETypeMPEG: core.MIMETypeMPEG,
	"audio/mp3":       core.MIMETypeMPEG,
	"audio/mpeg3":     core.MIMETypeMPEG,
}

// Options configures a Manager.
type Options struct {
	Store       core.SessionStore
	NewWaveform core.WaveformFactory
	Logger      *logger.Logger
	// Reader defaults to dataurl.Reader.
	Reader core.FileReader
	// Playback defaults to a new playback.Adapter.
	Playback *playback.Adapter
	Metrics  *metrics.Metrics
}

// Manager owns the active reference audio. It is the only writer of the
// referenceAudioData and referenceAudioName session keys and always writes
// or removes them together.
type Manager struct {
	mu          sync.Mutex
	store       core.SessionStore
	reader      core.FileReader
	newWaveform core.WaveformFactory
	playback    *playback.Adapter
	log         *logger.Logger
	metrics     *metrics.Metrics

	active      *core.AudioFile
	waveform    core.Waveform
	placeholder string
	token       uint64
	restored    bool
}

// NewManager creates a Manager with no active audio.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, ErrStoreRequired
	}

	if opts.NewWaveform == nil {
		return nil, ErrWaveformRequired
	}

	if opts.Logger == nil {
		return nil, ErrLoggerRequired
	}

	reader := opts.Reader
	if reader == nil {
		reader = dataurl.Reader{}
	}

	adapter := opts.Playback
	if adapter == nil {
		adapter = playback.NewAdapter()
	}

	return &Manager{
		store:       opts.Store,
		reader:      reader,
		newWaveform: opts.NewWaveform,
		playback:    adapter,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		placeholder: PlaceholderText,
	}, nil
}

// LoadFromUpload makes file the active reference audio, persists it and
// loads it into a fresh waveform. A nil file (a cancelled picker) is ignored.
//
// The file is read through the configured core.FileReader. When the reader
// completes before returning, the completion error is returned; otherwise
// LoadFromUpload returns nil and completion errors are logged. A completion
// that arrives after a newer load or a clear is discarded.
func (m *Manager) LoadFromUpload(ctx context.Context, file *core.AudioFile) error {
	if file == nil {
		return nil
	}

	mimeType, ok := mimeAliases[strings.ToLower(strings.TrimSpace(file.MIMEType))]
	if !ok {
		return fmt.Errorf("%w: %q (accepted: %s, %s)",
			ErrUnsupportedType, file.MIMEType, core.MIMETypeWAV, core.MIMETypeMPEG)
	}

	owned := core.AudioFile{
		Name:     file.Name,
		MIMEType: mimeType,
		Data:     bytes.Clone(file.Data),
	}

	return m.load(ctx, owned, metrics.SourceUpload)
}

// LoadFromRecording is LoadFromUpload for audio captured by a recorder.
// Recordings without a name get a generated one; a missing type means WAV.
func (m *Manager) LoadFromRecording(ctx context.Context, file *core.AudioFile) error {
	if file == nil {
		return nil
	}

	recording := *file
	if recording.MIMEType == "" {
		recording.MIMEType = core.MIMETypeWAV
	}

	mimeType, ok := mimeAliases[strings.ToLower(strings.TrimSpace(recording.MIMEType))]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, recording.MIMEType)
	}

	recording.MIMEType = mimeType
	recording.Data = bytes.Clone(file.Data)

	if recording.Name == "" {
		recording.Name = "recording-" + uuid.NewString() + extensionFor(mimeType)
	}

	return m.load(ctx, recording, metrics.SourceRecording)
}

// Clear drops the active audio, removes both session keys, empties the
// waveform and resets the playback display. Clearing twice is harmless.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Reads still in flight belong to the audio being cleared.
	m.token++
	m.active = nil

	err := m.removePair(ctx)

	if m.waveform != nil {
		m.waveform.Empty()
	}

	m.playback.ResetDisplay()
	m.placeholder = PlaceholderText
	m.metrics.ReferenceCleared()
	m.log.Info("Reference audio cleared.")

	return err
}

// RestoreFromSession rehydrates the reference audio persisted by an earlier
// manager on the same session store. It runs once, before any user action.
// Missing, partial or undecodable session data leaves an empty waveform and
// the placeholder text; only a second call returns an error.
func (m *Manager) RestoreFromSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.restored {
		return ErrAlreadyRestored
	}

	m.restored = true
	m.token++

	file, source, ok := m.readSession(ctx)
	if !ok {
		m.active = nil
		m.initWaveform("")
		m.placeholder = PlaceholderText

		return nil
	}

	m.active = &file
	m.initWaveform(source)
	m.placeholder = ""
	m.metrics.ReferenceLoaded(metrics.SourceSession)
	m.log.Info("Loaded reference audio \"%s\" from session.", file.Name)

	return nil
}

// Active returns a copy of the active reference audio.
func (m *Manager) Active() (core.AudioFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return core.AudioFile{}, false
	}

	return core.AudioFile{
		Name:     m.active.Name,
		MIMEType: m.active.MIMEType,
		Data:     bytes.Clone(m.active.Data),
	}, true
}

// Placeholder returns the text shown over the waveform area; empty while
// audio is displayed.
func (m *Manager) Placeholder() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.placeholder
}

// Waveform returns the current waveform widget, nil before initialization.
func (m *Manager) Waveform() core.Waveform {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.waveform
}

// Playback returns the adapter controlling the waveform.
func (m *Manager) Playback() *playback.Adapter {
	return m.playback
}

func (m *Manager) load(ctx context.Context, file core.AudioFile, source string) error {
	m.mu.Lock()
	m.token++
	token := m.token
	m.mu.Unlock()

	result := make(chan error, 1)

	m.reader.ReadAsDataURL(ctx, &file, func(dataURL string, readErr error) {
		err := m.completeLoad(ctx, token, file, source, dataURL, readErr)
		if err != nil {
			m.log.Error("Failed to load reference audio %s: %v", file.Name, err)
		}

		result <- err
	})

	select {
	case err := <-result:
		return err
	default:
		return nil
	}
}

func (m *Manager) completeLoad(
	ctx context.Context,
	token uint64,
	file core.AudioFile,
	source, dataURL string,
	readErr error,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.token {
		m.metrics.StaleReadDropped()
		m.log.Warn("Discarding stale read of %s (request %d, current %d)", file.Name, token, m.token)

		return nil
	}

	if readErr != nil {
		return fmt.Errorf("failed to read %s: %w", file.Name, readErr)
	}

	err := m.writePair(ctx, dataURL, file.Name)
	if err != nil {
		return err
	}

	m.active = &file
	m.initWaveform(dataURL)
	m.placeholder = ""
	m.metrics.ReferenceLoaded(source)
	m.log.Info("Reference audio %s loaded (%s, %d bytes)", file.Name, file.MIMEType, file.Size())

	return nil
}

// readSession returns the persisted file and its Data URL. Anything short
// of a complete, decodable pair counts as no session data. Callers hold m.mu.
func (m *Manager) readSession(ctx context.Context) (core.AudioFile, string, bool) {
	data, hasData, err := m.store.Get(ctx, core.KeyReferenceAudioData)
	if err != nil {
		m.log.Warn("Failed to read %s from session: %v", core.KeyReferenceAudioData, err)

		return core.AudioFile{}, "", false
	}

	name, hasName, err := m.store.Get(ctx, core.KeyReferenceAudioName)
	if err != nil {
		m.log.Warn("Failed to read %s from session: %v", core.KeyReferenceAudioName, err)

		return core.AudioFile{}, "", false
	}

	if !hasData && !hasName {
		return core.AudioFile{}, "", false
	}

	if hasData != hasName {
		m.log.Warn("Session holds only one of %s and %s; discarding it",
			core.KeyReferenceAudioData, core.KeyReferenceAudioName)
		m.discardPair(ctx)

		return core.AudioFile{}, "", false
	}

	file, err := dataurl.Decode(data, name)
	if err != nil {
		m.metrics.SessionDecodeFailed()
		m.log.Warn("Discarding undecodable reference audio %s from session: %v", name, err)
		m.discardPair(ctx)

		return core.AudioFile{}, "", false
	}

	return file, data, true
}

// writePair persists data and name. If the name cannot be written the data
// is removed again so the store never holds half a pair. Callers hold m.mu.
func (m *Manager) writePair(ctx context.Context, dataURL, name string) error {
	err := m.store.Set(ctx, core.KeyReferenceAudioData, dataURL)
	if err != nil {
		return fmt.Errorf("failed to persist %s: %w", core.KeyReferenceAudioData, err)
	}

	err = m.store.Set(ctx, core.KeyReferenceAudioName, name)
	if err != nil {
		rollbackErr := m.store.Remove(ctx, core.KeyReferenceAudioData)

		return errors.Join(
			fmt.Errorf("failed to persist %s: %w", core.KeyReferenceAudioName, err),
			rollbackErr,
		)
	}

	return nil
}

// removePair removes both keys, attempting the second even if the first fails.
func (m *Manager) removePair(ctx context.Context) error {
	dataErr := m.store.Remove(ctx, core.KeyReferenceAudioData)
	if dataErr != nil {
		dataErr = fmt.Errorf("failed to remove %s: %w", core.KeyReferenceAudioData, dataErr)
	}

	nameErr := m.store.Remove(ctx, core.KeyReferenceAudioName)
	if nameErr != nil {
		nameErr = fmt.Errorf("failed to remove %s: %w", core.KeyReferenceAudioName, nameErr)
	}

	return errors.Join(dataErr, nameErr)
}

func (m *Manager) discardPair(ctx context.Context) {
	err := m.removePair(ctx)
	if err != nil {
		m.log.Warn("Failed to discard session audio: %v", err)
	}
}

// initWaveform replaces the waveform with a fresh instance and loads source
// into it when non-empty. The previous instance is destroyed first. Callers hold m.mu.
func (m *Manager) initWaveform(source string) {
	if m.waveform != nil {
		m.waveform.Destroy()
	}

	w := m.newWaveform()
	m.waveform = w
	m.playback.Attach(w)
	m.playback.ResetDisplay()

	if source == "" {
		return
	}

	err := w.Load(source)
	if err != nil {
		m.log.Warn("Waveform could not render reference audio: %v", err)
	}
}

func extensionFor(mimeType string) string {
	if mimeType == core.MIMETypeMPEG {
		return ".mp3"
	}

	return ".wav"
}
