// Package studio_test tests the studio page wiring.
package studio_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/generate"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/refaudio"
	"github.com/book-expert/voice-studio/internal/session"
	"github.com/book-expert/voice-studio/internal/slider"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/waveform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotifyDown = errors.New("notify down")

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newSliders(t *testing.T) studio.Sliders {
	t.Helper()

	exaggeration, err := slider.New("exaggeration", 0.25, 2, 0.5, "0.05")
	require.NoError(t, err)

	temperature, err := slider.New("temperature", 0.05, 5, 0.8, "0.05")
	require.NoError(t, err)

	cfgWeight, err := slider.New("cfg_weight", 0, 1, 0.5, "0.05")
	require.NoError(t, err)

	return studio.Sliders{Exaggeration: exaggeration, Temperature: temperature, CFGWeight: cfgWeight}
}

type recordingNotifier struct {
	mu        sync.Mutex
	sessionID string
	audioKeys []string
	err       error
}

func (n *recordingNotifier) PublishGenerated(_ context.Context, sessionID, audioKey string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sessionID = sessionID
	n.audioKeys = append(n.audioKeys, audioKey)

	return n.err
}

// blockingGenerator holds Generate until release is closed.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, _ generate.Request) (generate.Result, error) {
	close(g.started)

	select {
	case <-g.release:
		return generate.Result{AudioFilePath: "/a.wav", AudioURL: "http://x/a.wav?t=1"}, nil
	case <-ctx.Done():
		return generate.Result{}, ctx.Err()
	}
}

type pageHarness struct {
	page     *studio.Page
	store    *session.MemoryStore
	metrics  *metrics.Metrics
	notifier *recordingNotifier
}

func newPage(t *testing.T, generator studio.Generator) *pageHarness {
	t.Helper()

	h := &pageHarness{
		store:    session.NewMemoryStore(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		notifier: &recordingNotifier{},
	}

	log := createTestLogger(t)

	manager, err := refaudio.NewManager(refaudio.Options{
		Store:       h.store,
		NewWaveform: waveform.Factory(nil),
		Logger:      log,
		Metrics:     h.metrics,
	})
	require.NoError(t, err)

	page, err := studio.NewPage(studio.PageOptions{
		Manager:   manager,
		Generator: generator,
		Sliders:   newSliders(t),
		Logger:    log,
		Notifier:  h.notifier,
		SessionID: "session-1",
		Metrics:   h.metrics,
	})
	require.NoError(t, err)

	require.NoError(t, page.Open(context.Background()))

	h.page = page

	return h
}

func referenceWAV(t *testing.T) *core.AudioFile {
	t.Helper()

	data, err := waveform.EncodeWAV(make([]int16, 8000), 8000)
	require.NoError(t, err)

	return &core.AudioFile{Name: "voice.wav", MIMEType: core.MIMETypeWAV, Data: data}
}

func TestNewPage_RequiresComponents(t *testing.T) {
	t.Parallel()

	_, err := studio.NewPage(studio.PageOptions{})
	require.ErrorIs(t, err, studio.ErrManagerRequired)

	manager, err := refaudio.NewManager(refaudio.Options{
		Store:       session.NewMemoryStore(),
		NewWaveform: waveform.Factory(nil),
		Logger:      createTestLogger(t),
	})
	require.NoError(t, err)

	_, err = studio.NewPage(studio.PageOptions{Manager: manager})
	require.ErrorIs(t, err, studio.ErrGeneratorRequired)

	_, err = studio.NewPage(studio.PageOptions{Manager: manager, Generator: &blockingGenerator{}})
	require.ErrorIs(t, err, studio.ErrSlidersRequired)
}

func TestPage_InitialView(t *testing.T) {
	t.Parallel()

	h := newPage(t, &blockingGenerator{})
	view := h.page.View()

	assert.Equal(t, studio.Button{Enabled: true, Label: studio.LabelGenerate}, view.Button)
	assert.Equal(t, studio.OutputEmpty, view.Output.Kind)
	assert.Equal(t, refaudio.PlaceholderText, view.Placeholder)
	assert.Empty(t, view.ReferenceName)
	assert.Equal(t, "00:00", view.Playback.Clock)
	assert.Equal(t, "0.50", view.Exaggeration)
	assert.Equal(t, "0.80", view.Temperature)
	assert.Equal(t, "0.50", view.CFGWeight)
}

func TestPage_GenerateSendsSlidersAndReference(t *testing.T) {
	t.Parallel()

	var (
		gotText   string
		gotExag   string
		gotPrompt string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate_audio", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))

		gotText = r.FormValue("text")
		gotExag = r.FormValue("exaggeration")

		file, header, err := r.FormFile("audio_prompt")
		if assert.NoError(t, err) {
			gotPrompt = header.Filename
			_, _ = io.Copy(io.Discard, file)
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"audio_file_path": "/out/clip.wav"})
	}))
	t.Cleanup(server.Close)

	h := newPage(t, generate.NewHTTPClient(server.URL, 5*time.Second))
	ctx := context.Background()

	require.NoError(t, h.page.Upload(ctx, referenceWAV(t)))
	h.page.Sliders().Exaggeration.Set(1.234)

	output, err := h.page.Generate(ctx, "Hello there")
	require.NoError(t, err)

	assert.Equal(t, "Hello there", gotText)
	assert.Equal(t, "1.25", gotExag)
	assert.Equal(t, "voice.wav", gotPrompt)

	assert.Equal(t, studio.OutputAudio, output.Kind)
	assert.Contains(t, output.AudioURL, server.URL+"/out/clip.wav?t=")

	view := h.page.View()
	assert.Equal(t, studio.Button{Enabled: true, Label: studio.LabelGenerate}, view.Button)
	assert.Equal(t, "voice.wav", view.ReferenceName)

	assert.Equal(t, "session-1", h.notifier.sessionID)
	assert.Equal(t, []string{"/out/clip.wav"}, h.notifier.audioKeys)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.GenerateRequests.WithLabelValues(metrics.ResultSuccess)), 0)
}

func TestPage_GenerateServerErrorShowsMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
	}))
	t.Cleanup(server.Close)

	h := newPage(t, generate.NewHTTPClient(server.URL, 5*time.Second))

	output, err := h.page.Generate(context.Background(), "Hello")

	var serverErr *generate.ServerError

	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, studio.Output{Kind: studio.OutputError, Message: "Error: model not loaded"}, output)
	assert.True(t, h.page.View().Button.Enabled)
	assert.Empty(t, h.notifier.audioKeys)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.GenerateRequests.WithLabelValues(metrics.ResultServer)), 0)
}

func TestPage_GenerateNetworkErrorRestoresButton(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	h := newPage(t, generate.NewHTTPClient(url, time.Second))

	output, err := h.page.Generate(context.Background(), "Hello")

	var networkErr *generate.NetworkError

	require.ErrorAs(t, err, &networkErr)
	assert.Equal(t, studio.OutputError, output.Kind)
	assert.Equal(t, studio.Button{Enabled: true, Label: studio.LabelGenerate}, h.page.View().Button)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.GenerateRequests.WithLabelValues(metrics.ResultNetwork)), 0)
}

func TestPage_GenerateBlankTextAlerts(t *testing.T) {
	t.Parallel()

	h := newPage(t, &blockingGenerator{})

	output, err := h.page.Generate(context.Background(), "   ")
	require.ErrorIs(t, err, generate.ErrEmptyText)

	view := h.page.View()
	assert.Equal(t, studio.MsgEnterText, view.Alert)
	assert.Equal(t, studio.OutputEmpty, output.Kind)
	assert.True(t, view.Button.Enabled)
}

func TestPage_GenerateTooLongShowsError(t *testing.T) {
	t.Parallel()

	h := newPage(t, generate.NewHTTPClient("http://127.0.0.1:1", time.Second, generate.WithMaxTextLength(3)))

	output, err := h.page.Generate(context.Background(), "four")
	require.ErrorIs(t, err, generate.ErrTextTooLong)

	assert.Equal(t, studio.OutputError, output.Kind)
	assert.Equal(t, "Error: text is too long: maximum length is 3 characters", output.Message)
}

func TestPage_GenerateWhileBusy(t *testing.T) {
	t.Parallel()

	generator := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	h := newPage(t, generator)

	done := make(chan error, 1)

	go func() {
		_, err := h.page.Generate(context.Background(), "first")
		done <- err
	}()

	<-generator.started

	view := h.page.View()
	assert.Equal(t, studio.Button{Enabled: false, Label: studio.LabelGenerating}, view.Button)
	assert.Equal(t, studio.Output{Kind: studio.OutputPending, Message: studio.MsgGenerating}, view.Output)

	_, err := h.page.Generate(context.Background(), "second")
	require.ErrorIs(t, err, studio.ErrBusy)

	close(generator.release)
	require.NoError(t, <-done)

	assert.Equal(t, studio.Button{Enabled: true, Label: studio.LabelGenerate}, h.page.View().Button)
}

func TestPage_NotifierFailureDoesNotFailGeneration(t *testing.T) {
	t.Parallel()

	generator := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	close(generator.release)

	h := newPage(t, generator)
	h.notifier.err = errNotifyDown

	output, err := h.page.Generate(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, studio.OutputAudio, output.Kind)
}

func TestPage_ClearReference(t *testing.T) {
	t.Parallel()

	h := newPage(t, &blockingGenerator{})
	ctx := context.Background()

	require.NoError(t, h.page.Upload(ctx, referenceWAV(t)))
	assert.Equal(t, 2, h.store.Len())

	require.NoError(t, h.page.ClearReference(ctx))

	view := h.page.View()
	assert.Empty(t, view.ReferenceName)
	assert.Equal(t, refaudio.PlaceholderText, view.Placeholder)
	assert.Zero(t, h.store.Len())
}
