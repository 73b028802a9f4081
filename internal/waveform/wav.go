package waveform

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	wavHeaderSize    = 44
	pcmFormat        = 1
	pcmBitsPerSample = 16
)

// ErrInvalidWAV indicates that the data is not a readable RIFF/WAVE stream.
var ErrInvalidWAV = errors.New("invalid wav data")

// WAVHeader is the canonical 44-byte PCM WAV header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// WAVInfo describes the format and PCM payload of a WAV stream.
type WAVInfo struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	ByteRate      int
	BitsPerSample int
	PCM           []byte
}

// Duration returns the playing time in seconds.
func (w WAVInfo) Duration() float64 {
	if w.ByteRate <= 0 {
		return 0
	}

	return float64(len(w.PCM)) / float64(w.ByteRate)
}

// EncodeWAV wraps 16-bit little-endian mono PCM samples in a WAV header.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(pcmBitsPerSample)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   pcmFormat,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))

	err := binary.Write(buf, binary.LittleEndian, header)
	if err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	err = binary.Write(buf, binary.LittleEndian, samples)
	if err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseWAV walks the RIFF chunks of data and returns the format and the
// PCM payload. Unknown chunks such as LIST are skipped.
func ParseWAV(data []byte) (WAVInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		info     WAVInfo
		foundFmt bool
	)

	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		end := body + chunkSize
		if chunkSize < 0 || end > len(data) {
			// Recorders that stream often leave the data size unset; use what is there.
			end = len(data)
		}

		switch chunkID {
		case "fmt ":
			if end-body < 16 {
				return WAVInfo{}, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
			}

			info.AudioFormat = int(binary.LittleEndian.Uint16(data[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			info.ByteRate = int(binary.LittleEndian.Uint32(data[body+8 : body+12]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAVInfo{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrInvalidWAV)
			}

			info.PCM = data[body:end]

			return info, nil
		}

		// Chunks are padded to an even length.
		offset = end + (chunkSize & 1)
	}

	return WAVInfo{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
}
