// Package studio is the thin UI layer of the voice studio: it turns user
// actions into calls on the reference audio manager, the sliders and the
// generation client, and keeps the resulting view state.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/generate"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/book-expert/voice-studio/internal/refaudio"
	"github.com/book-expert/voice-studio/internal/slider"
)

// Button labels and user messages.
const (
	LabelGenerate   = "Generate"
	LabelGenerating = "Generating..."

	MsgEnterText  = "Please enter some text to synthesize."
	MsgGenerating = "Generating audio..."
)

var (
	// ErrBusy is returned when Generate is called while a request is running.
	ErrBusy = errors.New("generation already in progress")
	// ErrManagerRequired indicates that PageOptions.Manager is nil.
	ErrManagerRequired = errors.New("reference audio manager is required")
	// ErrGeneratorRequired indicates that PageOptions.Generator is nil.
	ErrGeneratorRequired = errors.New("generator is required")
	// ErrSlidersRequired indicates a missing slider.
	ErrSlidersRequired = errors.New("all three sliders are required")
)

// Generator submits generation requests.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (generate.Result, error)
}

// Notifier announces generated audio.
type Notifier interface {
	PublishGenerated(ctx context.Context, sessionID, audioKey string) error
}

// Sliders are the generation settings.
type Sliders struct {
	Exaggeration *slider.Setting
	Temperature  *slider.Setting
	CFGWeight    *slider.Setting
}

// OutputKind is what the output area currently shows.
type OutputKind int

const (
	OutputEmpty OutputKind = iota
	OutputPending
	OutputAudio
	OutputError
)

// Output is the content of the output area.
type Output struct {
	Kind     OutputKind
	AudioURL string
	Message  string
}

// Button is the state of the generate button.
type Button struct {
	Enabled bool
	Label   string
}

// View is a snapshot of everything the page renders.
type View struct {
	Button        Button
	Output        Output
	Alert         string
	Placeholder   string
	ReferenceName string
	Playback      playback.State
	Exaggeration  string
	Temperature   string
	CFGWeight     string
}

// PageOptions configures a Page.
type PageOptions struct {
	Manager   *refaudio.Manager
	Generator Generator
	Sliders   Sliders
	Logger    *logger.Logger
	// Notifier and SessionID are optional.
	Notifier  Notifier
	SessionID string
	Metrics   *metrics.Metrics
}

// Page wires the studio components together.
type Page struct {
	mu        sync.Mutex
	manager   *refaudio.Manager
	generator Generator
	notifier  Notifier
	sessionID string
	sliders   Sliders
	log       *logger.Logger
	metrics   *metrics.Metrics

	button Button
	output Output
	alert  string
}

// NewPage creates a Page with an enabled button and an empty output.
func NewPage(opts PageOptions) (*Page, error) {
	if opts.Manager == nil {
		return nil, ErrManagerRequired
	}

	if opts.Generator == nil {
		return nil, ErrGeneratorRequired
	}

	if opts.Sliders.Exaggeration == nil || opts.Sliders.Temperature == nil || opts.Sliders.CFGWeight == nil {
		return nil, ErrSlidersRequired
	}

	return &Page{
		manager:   opts.Manager,
		generator: opts.Generator,
		notifier:  opts.Notifier,
		sessionID: opts.SessionID,
		sliders:   opts.Sliders,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		button:    Button{Enabled: true, Label: LabelGenerate},
	}, nil
}

// Open performs the page-load work: restoring the reference audio.
func (p *Page) Open(ctx context.Context) error {
	err := p.manager.RestoreFromSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	return nil
}

// Upload handles a file chosen in the picker.
func (p *Page) Upload(ctx context.Context, file *core.AudioFile) error {
	return p.manager.LoadFromUpload(ctx, file)
}

// Record handles a finished recording.
func (p *Page) Record(ctx context.Context, file *core.AudioFile) error {
	return p.manager.LoadFromRecording(ctx, file)
}

// ClearReference handles the close button of the reference audio card.
func (p *Page) ClearReference(ctx context.Context) error {
	return p.manager.Clear(ctx)
}

// Playback returns the reference audio transport controls.
func (p *Page) Playback() *playback.Adapter {
	return p.manager.Playback()
}

// Reference returns a copy of the active reference audio.
func (p *Page) Reference() (core.AudioFile, bool) {
	return p.manager.Active()
}

// Waveform returns the reference audio waveform widget.
func (p *Page) Waveform() core.Waveform {
	return p.manager.Waveform()
}

// Sliders returns the generation settings.
func (p *Page) Sliders() Sliders {
	return p.sliders
}

// Generate submits text with the current slider values and reference audio.
// Whatever happens, the button ends enabled with its original label.
func (p *Page) Generate(ctx context.Context, text string) (Output, error) {
	started := time.Now()

	if strings.TrimSpace(text) == "" {
		p.mu.Lock()
		p.alert = MsgEnterText
		p.mu.Unlock()
		p.metrics.GenerateFinished(metrics.ResultValidation, 0)

		return p.Output(), generate.ErrEmptyText
	}

	p.mu.Lock()

	if !p.button.Enabled {
		p.mu.Unlock()

		return p.Output(), ErrBusy
	}

	p.alert = ""
	p.button = Button{Enabled: false, Label: LabelGenerating}
	p.output = Output{Kind: OutputPending, Message: MsgGenerating}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.button = Button{Enabled: true, Label: LabelGenerate}
		p.mu.Unlock()
	}()

	req := generate.Request{
		Text:         text,
		Exaggeration: p.sliders.Exaggeration.Value(),
		Temperature:  p.sliders.Temperature.Value(),
		CFGWeight:    p.sliders.CFGWeight.Value(),
	}

	if reference, ok := p.manager.Active(); ok {
		req.AudioPrompt = &reference
	}

	result, err := p.generator.Generate(ctx, req)
	if err != nil {
		p.metrics.GenerateFinished(resultLabel(err), time.Since(started))
		p.log.Error("Audio generation failed: %v", err)
		p.setOutput(Output{Kind: OutputError, Message: "Error: " + userMessage(err)})

		return p.Output(), err
	}

	p.metrics.GenerateFinished(metrics.ResultSuccess, time.Since(started))
	p.log.Info("Generated audio available at %s", result.AudioFilePath)
	p.setOutput(Output{Kind: OutputAudio, AudioURL: result.AudioURL})

	if p.notifier != nil {
		notifyErr := p.notifier.PublishGenerated(ctx, p.sessionID, result.AudioFilePath)
		if notifyErr != nil {
			p.log.Warn("Failed to announce generated audio: %v", notifyErr)
		}
	}

	return p.Output(), nil
}

// Output returns the output area content.
func (p *Page) Output() Output {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.output
}

// View returns a snapshot of the page.
func (p *Page) View() View {
	p.mu.Lock()
	button := p.button
	output := p.output
	alert := p.alert
	p.mu.Unlock()

	view := View{
		Button:       button,
		Output:       output,
		Alert:        alert,
		Placeholder:  p.manager.Placeholder(),
		Playback:     p.manager.Playback().State(),
		Exaggeration: p.sliders.Exaggeration.Display(),
		Temperature:  p.sliders.Temperature.Display(),
		CFGWeight:    p.sliders.CFGWeight.Display(),
	}

	if reference, ok := p.manager.Active(); ok {
		view.ReferenceName = reference.Name
	}

	return view
}

func (p *Page) setOutput(output Output) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.output = output
}

func resultLabel(err error) string {
	var (
		serverErr  *generate.ServerError
		networkErr *generate.NetworkError
	)

	switch {
	case errors.Is(err, generate.ErrValidation):
		return metrics.ResultValidation
	case errors.As(err, &serverErr):
		return metrics.ResultServer
	case errors.As(err, &networkErr):
		return metrics.ResultNetwork
	default:
		return metrics.ResultNetwork
	}
}

// userMessage strips the error kind prefix from validation errors so the
// user sees only the actionable part.
func userMessage(err error) string {
	message := err.Error()
	if errors.Is(err, generate.ErrValidation) {
		message = strings.TrimPrefix(message, generate.ErrValidation.Error()+": ")
	}

	return message
}
