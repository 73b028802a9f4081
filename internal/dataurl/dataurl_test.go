// Package dataurl_test tests the Data URL encoding bridge.
package dataurl_test

import (
	"context"
	"testing"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/dataurl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Format(t *testing.T) {
	t.Parallel()

	encoded := dataurl.Encode(core.AudioFile{
		Name:     "hi.wav",
		MIMEType: core.MIMETypeWAV,
		Data:     []byte("hi"),
	})

	assert.Equal(t, "data:audio/wav;base64,aGk=", encoded)
}

func TestEncode_EmptyMIMEFallsBackToOctetStream(t *testing.T) {
	t.Parallel()

	encoded := dataurl.Encode(core.AudioFile{Name: "x", Data: []byte{0x01}})

	assert.Equal(t, "data:application/octet-stream;base64,AQ==", encoded)
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	allBytes := make([]byte, 256)
	for i := range allBytes {
		allBytes[i] = byte(i)
	}

	testCases := []struct {
		name string
		file core.AudioFile
	}{
		{name: "wav", file: core.AudioFile{Name: "voice.wav", MIMEType: core.MIMETypeWAV, Data: allBytes}},
		{name: "mpeg", file: core.AudioFile{Name: "voice.mp3", MIMEType: core.MIMETypeMPEG, Data: []byte("ID3\x04\x00")}},
		{name: "empty payload", file: core.AudioFile{Name: "empty.wav", MIMEType: core.MIMETypeWAV, Data: []byte{}}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			decoded, err := dataurl.Decode(dataurl.Encode(testCase.file), testCase.file.Name)
			require.NoError(t, err)

			assert.Equal(t, testCase.file.Name, decoded.Name)
			assert.Equal(t, testCase.file.MIMEType, decoded.MIMEType)
			assert.Equal(t, len(testCase.file.Data), len(decoded.Data))
			assert.Equal(t, string(testCase.file.Data), string(decoded.Data))
		})
	}
}

func TestDecode_IgnoresMediaTypeParameters(t *testing.T) {
	t.Parallel()

	decoded, err := dataurl.Decode("data:audio/webm;codecs=opus;base64,aGk=", "rec.webm")
	require.NoError(t, err)

	assert.Equal(t, "audio/webm", decoded.MIMEType)
	assert.Equal(t, []byte("hi"), decoded.Data)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"no delimiter":     "not-a-data-url",
		"no scheme":        "audio/wav;base64,aGk=",
		"not base64":       "data:audio/wav,hi",
		"empty media type": "data:;base64,aGk=",
		"bad payload":      "data:audio/wav;base64,@@@@",
		"truncated":        "data:audio/wav;base64,aGk",
	}

	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := dataurl.Decode(input, "x.wav")
			require.ErrorIs(t, err, dataurl.ErrDecode)
		})
	}
}

func TestReader_ReadAsDataURL(t *testing.T) {
	t.Parallel()

	file := &core.AudioFile{Name: "a.wav", MIMEType: core.MIMETypeWAV, Data: []byte("hi")}

	var (
		result  string
		readErr error
		calls   int
	)

	dataurl.Reader{}.ReadAsDataURL(context.Background(), file, func(dataURL string, err error) {
		calls++
		result = dataURL
		readErr = err
	})

	require.Equal(t, 1, calls)
	require.NoError(t, readErr)
	assert.Equal(t, "data:audio/wav;base64,aGk=", result)
}

func TestReader_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var readErr error

	dataurl.Reader{}.ReadAsDataURL(ctx, &core.AudioFile{}, func(_ string, err error) {
		readErr = err
	})

	require.ErrorIs(t, readErr, context.Canceled)
}
