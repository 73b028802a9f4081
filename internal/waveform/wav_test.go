// Package waveform_test tests the headless waveform player and WAV helpers.
package waveform_test

import (
	"encoding/binary"
	"testing"

	"github.com/book-expert/voice-studio/internal/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 16000

func TestEncodeWAV_ParseWAV(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 2*testSampleRate)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}

	data, err := waveform.EncodeWAV(samples, testSampleRate)
	require.NoError(t, err)
	require.Len(t, data, 44+len(samples)*2)

	info, err := waveform.ParseWAV(data)
	require.NoError(t, err)

	assert.Equal(t, 1, info.AudioFormat)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, testSampleRate, info.SampleRate)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.Len(t, info.PCM, len(samples)*2)
	assert.InDelta(t, 2.0, info.Duration(), 1e-9)
}

func TestEncodeWAV_InvalidSampleRate(t *testing.T) {
	t.Parallel()

	_, err := waveform.EncodeWAV([]int16{1}, 0)
	require.Error(t, err)
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	data, err := waveform.EncodeWAV(make([]int16, testSampleRate), testSampleRate)
	require.NoError(t, err)

	// Insert an odd-sized LIST chunk (padded to even) between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	withList := append(append(append([]byte{}, data[:36]...), list...), data[36:]...)
	binary.LittleEndian.PutUint32(withList[4:8], uint32(len(withList)-8))

	info, err := waveform.ParseWAV(withList)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, info.Duration(), 1e-9)
}

func TestParseWAV_Invalid(t *testing.T) {
	t.Parallel()

	testCases := map[string][]byte{
		"empty":      {},
		"not riff":   []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"),
		"no data":    []byte("RIFF\x04\x00\x00\x00WAVE"),
		"short fmt ": []byte("RIFF\x10\x00\x00\x00WAVEfmt \x04\x00\x00\x00\x01\x00\x01\x00"),
	}

	for name, data := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := waveform.ParseWAV(data)
			require.ErrorIs(t, err, waveform.ErrInvalidWAV)
		})
	}
}
