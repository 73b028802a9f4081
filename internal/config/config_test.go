// Package config_test tests the configuration loading for the voice studio client.
package config_test

import (
	"testing"
	"time"

	"github.com/book-expert/voice-studio/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[service]
base_url = "http://tts.internal:8080"
timeout_seconds = 120
max_text_length = 300

[nats]
url = "nats://127.0.0.1:4222"
session_bucket_prefix = "STUDIO"
session_ttl_minutes = 60
generated_subject = "audio.generated"

[sliders.exaggeration]
min = 0.25
max = 2.0
default = 0.5
step = "0.05"

[sliders.temperature]
min = 0.05
max = 5.0
default = 0.8
step = "0.1"

[paths]
base_logs_dir = "/var/log/voice-studio"
metrics_file = "/var/lib/node_exporter/voice_studio.prom"
session_dir = "/var/lib/voice-studio/sessions"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://tts.internal:8080", cfg.Service.BaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Service.Timeout())
	assert.Equal(t, 300, cfg.Service.MaxTextLength)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "STUDIO", cfg.NATS.SessionBucketPrefix)
	assert.Equal(t, time.Hour, cfg.NATS.SessionTTL())
	assert.Equal(t, "audio.generated", cfg.NATS.GeneratedSubject)
	assert.InEpsilon(t, 0.5, cfg.Sliders.Exaggeration.Default, 0.001)
	assert.Equal(t, "0.05", cfg.Sliders.Exaggeration.Step)
	assert.Equal(t, "0.1", cfg.Sliders.Temperature.Step)
	assert.Equal(t, "0.05", cfg.Sliders.CFGWeight.Step, "unset slider takes defaults")
	assert.Equal(t, "/var/log/voice-studio", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "/var/lib/node_exporter/voice_studio.prom", cfg.Paths.MetricsFile)
	assert.Equal(t, "/var/lib/voice-studio/sessions", cfg.Paths.SessionDir)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, config.DefaultBaseURL, cfg.Service.BaseURL)
	assert.Equal(t, config.DefaultTimeoutSeconds, cfg.Service.TimeoutSeconds)
	assert.Equal(t, config.DefaultMaxTextLength, cfg.Service.MaxTextLength)
	assert.Equal(t, config.DefaultSessionBucketPrefix, cfg.NATS.SessionBucketPrefix)
	assert.Equal(t, config.DefaultGeneratedSubject, cfg.NATS.GeneratedSubject)
	assert.Empty(t, cfg.NATS.URL)
	assert.InEpsilon(t, 0.8, cfg.Sliders.Temperature.Default, 0.001)
	assert.Zero(t, cfg.NATS.SessionTTL())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	require.ErrorIs(t, cfg.Validate(), config.ErrBaseURLEmpty)

	cfg.ApplyDefaults()
	cfg.Service.TimeoutSeconds = -1
	require.ErrorIs(t, cfg.Validate(), config.ErrTimeoutNegative)

	cfg.Service.TimeoutSeconds = 10
	cfg.NATS.SessionTTLMinutes = -5
	require.ErrorIs(t, cfg.Validate(), config.ErrSessionTTLNegative)
}
