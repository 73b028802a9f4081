// Package metrics holds the Prometheus instruments of the voice studio client.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reference audio sources.
const (
	SourceUpload    = "upload"
	SourceRecording = "recording"
	SourceSession   = "session"
)

// Generation request outcomes.
const (
	ResultSuccess    = "success"
	ResultValidation = "validation"
	ResultServer     = "server_error"
	ResultNetwork    = "network_error"
)

// Metrics contains the client's Prometheus instruments. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ReferenceLoads        *prometheus.CounterVec
	ReferenceClears       prometheus.Counter
	SessionDecodeFailures prometheus.Counter
	StaleReads            prometheus.Counter
	GenerateRequests      *prometheus.CounterVec
	GenerateDuration      prometheus.Histogram
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReferenceLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_studio_reference_loads_total",
			Help: "Reference audio files made active, by source",
		}, []string{"source"}),
		ReferenceClears: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_studio_reference_clears_total",
			Help: "Explicit reference audio clears",
		}),
		SessionDecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_studio_session_decode_failures_total",
			Help: "Persisted reference audio that could not be decoded on restore",
		}),
		StaleReads: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_studio_stale_reads_total",
			Help: "File read completions discarded because a newer action superseded them",
		}),
		GenerateRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_studio_generate_requests_total",
			Help: "Audio generation attempts, by result",
		}, []string{"result"}),
		GenerateDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_studio_generate_duration_seconds",
			Help:    "Time spent waiting for the generation service",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// ReferenceLoaded counts a reference audio activation.
func (m *Metrics) ReferenceLoaded(source string) {
	if m == nil {
		return
	}

	m.ReferenceLoads.WithLabelValues(source).Inc()
}

// ReferenceCleared counts an explicit clear.
func (m *Metrics) ReferenceCleared() {
	if m == nil {
		return
	}

	m.ReferenceClears.Inc()
}

// SessionDecodeFailed counts a corrupt persisted encoding.
func (m *Metrics) SessionDecodeFailed() {
	if m == nil {
		return
	}

	m.SessionDecodeFailures.Inc()
}

// StaleReadDropped counts a discarded read completion.
func (m *Metrics) StaleReadDropped() {
	if m == nil {
		return
	}

	m.StaleReads.Inc()
}

// GenerateFinished records the result of a generation attempt. Validation
// failures never reach the service, so their duration is not observed.
func (m *Metrics) GenerateFinished(result string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.GenerateRequests.WithLabelValues(result).Inc()

	if result != ResultValidation {
		m.GenerateDuration.Observe(elapsed.Seconds())
	}
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for collection by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	err := prometheus.WriteToTextfile(path, g)
	if err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}

	return nil
}
