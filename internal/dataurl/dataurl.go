// Package dataurl converts audio files to and from the base64 Data URL form
// used to persist them in the session store.
package dataurl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/voice-studio/internal/core"
)

const (
	scheme         = "data:"
	base64Marker   = ";base64"
	defaultMIME    = "application/octet-stream"
	payloadDivider = ","
)

// ErrDecode indicates that a string is not a valid base64 Data URL.
var ErrDecode = errors.New("invalid data url")

// Encode returns the Data URL for the file: data:<mime>;base64,<payload>.
func Encode(file core.AudioFile) string {
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = defaultMIME
	}

	var builder strings.Builder

	builder.Grow(len(scheme) + len(mimeType) + len(base64Marker) + 1 +
		base64.StdEncoding.EncodedLen(len(file.Data)))
	builder.WriteString(scheme)
	builder.WriteString(mimeType)
	builder.WriteString(base64Marker)
	builder.WriteString(payloadDivider)
	builder.WriteString(base64.StdEncoding.EncodeToString(file.Data))

	return builder.String()
}

// Decode reconstructs the file encoded in dataURL. The name is carried
// separately because the Data URL does not embed it.
func Decode(dataURL, name string) (core.AudioFile, error) {
	header, payload, found := strings.Cut(dataURL, payloadDivider)
	if !found {
		return core.AudioFile{}, fmt.Errorf("%w: missing ',' delimiter", ErrDecode)
	}

	if !strings.HasPrefix(header, scheme) {
		return core.AudioFile{}, fmt.Errorf("%w: missing %q prefix", ErrDecode, scheme)
	}

	mediaType, isBase64 := strings.CutSuffix(strings.TrimPrefix(header, scheme), base64Marker)
	if !isBase64 {
		return core.AudioFile{}, fmt.Errorf("%w: payload is not base64 encoded", ErrDecode)
	}

	// Parameters such as ";codecs=opus" are dropped; only the type is kept.
	mimeType, _, _ := strings.Cut(mediaType, ";")
	if mimeType == "" {
		return core.AudioFile{}, fmt.Errorf("%w: missing media type", ErrDecode)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return core.AudioFile{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return core.AudioFile{
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}

// Reader implements core.FileReader by encoding synchronously and invoking
// the callback before returning.
type Reader struct{}

// ReadAsDataURL encodes file and reports the result to done.
func (Reader) ReadAsDataURL(ctx context.Context, file *core.AudioFile, done core.ReadCallback) {
	err := ctx.Err()
	if err != nil {
		done("", fmt.Errorf("read cancelled: %w", err))

		return
	}

	done(Encode(*file), nil)
}
