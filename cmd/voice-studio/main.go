// main package for the voice-studio command line client
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/config"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/generate"
	"github.com/book-expert/voice-studio/internal/metrics"
	"github.com/book-expert/voice-studio/internal/notify"
	"github.com/book-expert/voice-studio/internal/refaudio"
	"github.com/book-expert/voice-studio/internal/session"
	"github.com/book-expert/voice-studio/internal/slider"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/book-expert/voice-studio/internal/waveform"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
)

// Environment and flag names.
const (
	envSession = "VOICE_STUDIO_SESSION"

	flagSession      = "session"
	flagSessionDesc  = "Session id to resume (defaults to $" + envSession + ")"
	flagRate         = "rate"
	flagRateDesc     = "Sample rate of the raw 16-bit mono PCM input"
	flagText         = "text"
	flagTextDesc     = "Text to convert to speech"
	flagOutput       = "output"
	flagOutputDesc   = "Where to save the generated audio"
	flagExaggeration = "exaggeration"
	flagTemperature  = "temperature"
	flagCFGWeight    = "cfg-weight"
)

// Defaults.
const (
	logFileName       = "voice-studio.log"
	bootstrapLogName  = "voice-studio-bootstrap.log"
	defaultSampleRate = 16000
	defaultOutputFile = "generated_audio.wav"
	peakBars          = 48
)

const usage = `usage: voice-studio [-session id] <command> [args]

commands:
  upload <file>                 use an audio file as the reference voice
  record [-rate hz] <file|->    use raw 16-bit mono PCM as a recording
  clear                         remove the reference voice
  status                        show the reference voice and settings
  generate -text "..." [-output file] [-exaggeration n] [-temperature n] [-cfg-weight n]
`

var (
	errNoCommand        = errors.New("no command given")
	errUnknownCommand   = errors.New("unknown command")
	errMissingArgument  = errors.New("missing argument")
	errUnsupportedInput = errors.New("unsupported audio file type")
	errOddPCMLength     = errors.New("raw PCM input has an odd number of bytes")
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// app is one "page load": a studio page restored from the session.
type app struct {
	page    *studio.Page
	client  *generate.HTTPClient
	log     *logger.Logger
	out     io.Writer
	session string
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"upload":   runUpload,
	"record":   runRecord,
	"clear":    runClear,
	"status":   runStatus,
	"generate": runGenerate,
}

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	flags := flag.NewFlagSet("voice-studio", flag.ContinueOnError)
	flags.SetOutput(out)
	flags.Usage = func() { fmt.Fprint(out, usage) }
	sessionID := flags.String(flagSession, os.Getenv(envSession), flagSessionDesc)

	err := flags.Parse(args)
	if err != nil {
		return err
	}

	if flags.NArg() == 0 {
		flags.Usage()

		return errNoCommand
	}

	name := flags.Arg(0)

	cmd, ok := commands[name]
	if !ok {
		flags.Usage()

		return fmt.Errorf("%w: %s", errUnknownCommand, name)
	}

	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	handle, err := openSession(cfg, *sessionID, finalLog)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := handle.Close()
		if closeErr != nil {
			finalLog.Warn("Failed to close session: %v", closeErr)
		}
	}()

	registry := prometheus.NewRegistry()

	a, err := newApp(ctx, appOptions{
		cfg:            cfg,
		store:          handle.store,
		natsConnection: handle.natsConnection,
		sessionID:      handle.id,
		log:            finalLog,
		metrics:        metrics.New(registry),
		out:            out,
	})
	if err != nil {
		return err
	}

	err = cmd(ctx, a, flags.Args()[1:])

	if cfg.Paths.MetricsFile != "" {
		writeErr := metrics.WriteTextfile(cfg.Paths.MetricsFile, registry)
		if writeErr != nil {
			finalLog.Warn("Failed to write metrics: %v", writeErr)
		}
	}

	return err
}

// sessionHandle is the store backing one invocation plus whatever must be
// released when the invocation ends.
type sessionHandle struct {
	store          core.SessionStore
	natsConnection *nats.Conn
	id             string
	closers        []func() error
}

func (h *sessionHandle) Close() error {
	var errs []error

	for _, closeFn := range h.closers {
		errs = append(errs, closeFn())
	}

	return errors.Join(errs...)
}

// openSession picks the session backend: a NATS object store bucket when
// NATS is configured, a local Badger database when a session directory is
// configured, and an in-memory store otherwise.
func openSession(cfg *config.Config, sessionID string, log *logger.Logger) (*sessionHandle, error) {
	switch {
	case cfg.NATS.URL != "":
		return openNatsSession(cfg, sessionID, log)
	case cfg.Paths.SessionDir != "":
		store, err := session.NewBadgerStore(session.BadgerOptions{
			Dir:       cfg.Paths.SessionDir,
			SessionID: sessionID,
			TTL:       cfg.NATS.SessionTTL(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open session: %w", err)
		}

		log.Info("Using local session %s in %s", store.SessionID(), cfg.Paths.SessionDir)

		return &sessionHandle{store: store, id: store.SessionID(), closers: []func() error{store.Close}}, nil
	default:
		log.Warn("No NATS URL or session directory configured; the session lasts for this invocation only.")

		return &sessionHandle{store: session.NewMemoryStore()}, nil
	}
}

func openNatsSession(cfg *config.Config, sessionID string, log *logger.Logger) (*sessionHandle, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Error("Failed to connect to NATS: %v", err)

		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	jetStreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := session.NewNatsStore(jetStreamContext, session.NatsOptions{
		BucketPrefix: cfg.NATS.SessionBucketPrefix,
		SessionID:    sessionID,
		TTL:          cfg.NATS.SessionTTL(),
	})
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	log.Info("Using session %s", store.SessionID())

	closeConnection := func() error {
		natsConnection.Close()

		return nil
	}

	return &sessionHandle{
		store:          store,
		natsConnection: natsConnection,
		id:             store.SessionID(),
		closers:        []func() error{closeConnection},
	}, nil
}

type appOptions struct {
	cfg            *config.Config
	store          core.SessionStore
	natsConnection *nats.Conn
	sessionID      string
	log            *logger.Logger
	metrics        *metrics.Metrics
	out            io.Writer
}

// newApp builds the studio page and restores the reference audio.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	manager, err := refaudio.NewManager(refaudio.Options{
		Store:       opts.store,
		NewWaveform: waveform.Factory(nil),
		Logger:      opts.log,
		Metrics:     opts.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reference audio manager: %w", err)
	}

	sliders, err := newSliders(opts.cfg.Sliders)
	if err != nil {
		return nil, err
	}

	client := generate.NewHTTPClient(
		opts.cfg.Service.BaseURL,
		opts.cfg.Service.Timeout(),
		generate.WithMaxTextLength(opts.cfg.Service.MaxTextLength),
	)

	pageOpts := studio.PageOptions{
		Manager:   manager,
		Generator: client,
		Sliders:   sliders,
		Logger:    opts.log,
		SessionID: opts.sessionID,
		Metrics:   opts.metrics,
	}

	if opts.natsConnection != nil {
		publisher, pubErr := notify.NewNatsPublisher(opts.natsConnection, opts.cfg.NATS.GeneratedSubject, opts.log)
		if pubErr != nil {
			return nil, fmt.Errorf("failed to create publisher: %w", pubErr)
		}

		pageOpts.Notifier = publisher
	}

	page, err := studio.NewPage(pageOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create studio page: %w", err)
	}

	err = page.Open(ctx)
	if err != nil {
		return nil, err
	}

	return &app{page: page, client: client, log: opts.log, out: opts.out, session: opts.sessionID}, nil
}

func newSliders(cfg config.SlidersConfig) (studio.Sliders, error) {
	build := func(name string, c config.SliderConfig) (*slider.Setting, error) {
		setting, err := slider.New(name, c.Min, c.Max, c.Default, c.Step)
		if err != nil {
			return nil, fmt.Errorf("invalid %s slider: %w", name, err)
		}

		return setting, nil
	}

	exaggeration, err := build(flagExaggeration, cfg.Exaggeration)
	if err != nil {
		return studio.Sliders{}, err
	}

	temperature, err := build(flagTemperature, cfg.Temperature)
	if err != nil {
		return studio.Sliders{}, err
	}

	cfgWeight, err := build(flagCFGWeight, cfg.CFGWeight)
	if err != nil {
		return studio.Sliders{}, err
	}

	return studio.Sliders{Exaggeration: exaggeration, Temperature: temperature, CFGWeight: cfgWeight}, nil
}

func runUpload(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: upload needs a file path", errMissingArgument)
	}

	path := args[0]

	mimeType, err := mimeTypeFor(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	file := &core.AudioFile{Name: filepath.Base(path), MIMEType: mimeType, Data: data}

	err = a.page.Upload(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to load reference audio: %w", err)
	}

	fmt.Fprintf(a.out, "Reference audio set to %s (%s)\n", file.Name, humanize.Bytes(uint64(file.Size())))
	a.printSession()

	return nil
}

func runRecord(ctx context.Context, a *app, args []string) error {
	flags := flag.NewFlagSet("record", flag.ContinueOnError)
	flags.SetOutput(a.out)
	rate := flags.Int(flagRate, defaultSampleRate, flagRateDesc)

	err := flags.Parse(args)
	if err != nil {
		return err
	}

	if flags.NArg() != 1 {
		return fmt.Errorf("%w: record needs a PCM file or -", errMissingArgument)
	}

	raw, err := readInput(flags.Arg(0))
	if err != nil {
		return err
	}

	samples, err := decodePCM(raw)
	if err != nil {
		return err
	}

	wav, err := waveform.EncodeWAV(samples, *rate)
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}

	err = a.page.Record(ctx, &core.AudioFile{MIMEType: core.MIMETypeWAV, Data: wav})
	if err != nil {
		return fmt.Errorf("failed to load recording: %w", err)
	}

	fmt.Fprintf(a.out, "Recording saved as %s\n", a.page.View().ReferenceName)
	a.printSession()

	return nil
}

func runClear(ctx context.Context, a *app, _ []string) error {
	err := a.page.ClearReference(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear reference audio: %w", err)
	}

	fmt.Fprintln(a.out, "Reference audio cleared.")

	return nil
}

func runStatus(_ context.Context, a *app, _ []string) error {
	view := a.page.View()

	if view.ReferenceName == "" {
		fmt.Fprintln(a.out, view.Placeholder)
	} else {
		fmt.Fprintf(a.out, "Reference: %s\n", view.ReferenceName)

		if reference, ok := a.page.Reference(); ok {
			fmt.Fprintf(a.out, "Size:      %s\n", humanize.Bytes(uint64(reference.Size())))
		}

		if player, ok := a.page.Waveform().(*waveform.Player); ok {
			fmt.Fprintf(a.out, "Duration:  %s\n", formatDuration(player.Duration()))
			fmt.Fprintf(a.out, "Waveform:  %s\n", renderPeaks(player.Peaks(peakBars)))
		}
	}

	fmt.Fprintf(a.out, "Playback:  %s %s\n", view.Playback.Glyph, view.Playback.Clock)
	fmt.Fprintf(a.out, "Exaggeration %s  Temperature %s  CFG weight %s\n",
		view.Exaggeration, view.Temperature, view.CFGWeight)
	a.printSession()

	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	sliders := a.page.Sliders()

	flags := flag.NewFlagSet("generate", flag.ContinueOnError)
	flags.SetOutput(a.out)
	text := flags.String(flagText, "", flagTextDesc)
	output := flags.String(flagOutput, defaultOutputFile, flagOutputDesc)
	exaggeration := flags.Float64(flagExaggeration, sliders.Exaggeration.Value(), "Exaggeration")
	temperature := flags.Float64(flagTemperature, sliders.Temperature.Value(), "Temperature")
	cfgWeight := flags.Float64(flagCFGWeight, sliders.CFGWeight.Value(), "CFG weight")

	err := flags.Parse(args)
	if err != nil {
		return err
	}

	if *text == "" && flags.NArg() > 0 {
		*text = strings.Join(flags.Args(), " ")
	}

	sliders.Exaggeration.Set(*exaggeration)
	sliders.Temperature.Set(*temperature)
	sliders.CFGWeight.Set(*cfgWeight)

	fmt.Fprintln(a.out, studio.MsgGenerating)

	result, err := a.page.Generate(ctx, *text)
	if err != nil {
		if view := a.page.View(); view.Alert != "" {
			fmt.Fprintln(a.out, view.Alert)
		} else {
			fmt.Fprintln(a.out, result.Message)
		}

		return err
	}

	audio, err := a.client.Download(ctx, result.AudioURL)
	if err != nil {
		return fmt.Errorf("failed to download generated audio: %w", err)
	}

	err = os.WriteFile(*output, audio, 0o600)
	if err != nil {
		return fmt.Errorf("failed to save generated audio: %w", err)
	}

	a.log.Info("Saved generated audio to %s", *output)
	fmt.Fprintf(a.out, "Generated: %s\n", *output)

	return nil
}

func (a *app) printSession() {
	if a.session != "" {
		fmt.Fprintf(a.out, "Session:   %s (export %s=%s to resume)\n", a.session, envSession, a.session)
	}
}

// mimeTypeFor maps a file extension to one of the accepted audio types.
func mimeTypeFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return core.MIMETypeWAV, nil
	case ".mp3", ".mpeg":
		return core.MIMETypeMPEG, nil
	default:
		return "", fmt.Errorf("%w: %s", errUnsupportedInput, path)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}

		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return data, nil
}

// decodePCM reads little-endian signed 16-bit samples.
func decodePCM(raw []byte) ([]int16, error) {
	if len(raw)%2 != 0 {
		return nil, errOddPCMLength
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}

	return samples, nil
}

func renderPeaks(peaks []float64) string {
	if len(peaks) == 0 {
		return "(no preview)"
	}

	var builder strings.Builder

	top := len(sparkBlocks) - 1
	for _, peak := range peaks {
		index := int(peak * float64(top))
		index = max(0, min(top, index))
		builder.WriteRune(sparkBlocks[index])
	}

	return builder.String()
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "unknown"
	}

	return fmt.Sprintf("%.1fs", seconds)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "voice-studio exited with error: %v\n", err)
		os.Exit(1)
	}
}
