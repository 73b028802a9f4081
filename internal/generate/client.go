// Package generate is the client for the speech generation endpoint of the
// TTS web service.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/voice-studio/internal/core"
)

// API endpoints and form fields.
const (
	apiGenerateAudio = "/generate_audio"

	fieldText         = "text"
	fieldExaggeration = "exaggeration"
	fieldTemperature  = "temperature"
	fieldCFGWeight    = "cfg_weight"
	fieldAudioPrompt  = "audio_prompt"

	cacheBustParam = "t"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Default values.
const (
	// DefaultMaxTextLength matches the limit enforced by the service.
	DefaultMaxTextLength = 500
	maxResponseBytes     = 1 << 20
)

// User-facing messages.
const (
	msgMissingAudioPath = "Server did not return an audio file path."
	msgInvalidResponse  = "Server returned an invalid response."
	msgFmtServerStatus  = "Server error %d"
)

var (
	// ErrValidation is the parent of all request validation errors.
	ErrValidation = errors.New("validation error")
	// ErrEmptyText indicates blank input text.
	ErrEmptyText = fmt.Errorf("%w: please enter some text to synthesize", ErrValidation)
	// ErrTextTooLong indicates input longer than the service accepts.
	ErrTextTooLong = fmt.Errorf("%w: text is too long", ErrValidation)
)

// ServerError is a failure reported by the service. Message is suitable for
// showing to the user verbatim.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// NetworkError is a transport failure talking to the service.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("failed to reach %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Request is a speech generation request.
type Request struct {
	Text         string
	Exaggeration float64
	Temperature  float64
	CFGWeight    float64
	// AudioPrompt is the optional reference voice sample.
	AudioPrompt *core.AudioFile
}

// Result describes generated audio.
type Result struct {
	// AudioFilePath is the path returned by the service.
	AudioFilePath string
	// AudioURL is the absolute, cache-busted URL to play the audio from.
	AudioURL string
}

type generateResponse struct {
	AudioFilePath string `json:"audio_file_path"`
	Error         string `json:"error"`
}

// HTTPClient talks to the generation service over HTTP.
type HTTPClient struct {
	httpClient    *http.Client
	baseURL       string
	maxTextLength int
	now           func() time.Time
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithMaxTextLength overrides DefaultMaxTextLength. Zero or less disables the check.
func WithMaxTextLength(n int) Option {
	return func(c *HTTPClient) { c.maxTextLength = n }
}

// WithClock sets the time source used for cache-busting.
func WithClock(now func() time.Time) Option {
	return func(c *HTTPClient) { c.now = now }
}

// NewHTTPClient creates a client for the service at baseURL (e.g.
// "http://localhost:8080"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	client := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxTextLength: DefaultMaxTextLength,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Validate checks a request without sending it and returns the trimmed text.
func (c *HTTPClient) Validate(req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", ErrEmptyText
	}

	if c.maxTextLength > 0 && utf8.RuneCountInString(text) > c.maxTextLength {
		return "", fmt.Errorf("%w: maximum length is %d characters", ErrTextTooLong, c.maxTextLength)
	}

	return text, nil
}

// Generate submits req as a multipart form and returns where the generated
// audio can be fetched. Exactly one attempt is made.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (Result, error) {
	text, err := c.Validate(req)
	if err != nil {
		return Result{}, err
	}

	body, contentType, err := encodeForm(text, req)
	if err != nil {
		return Result{}, err
	}

	endpoint := c.baseURL + apiGenerateAudio

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentType)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &NetworkError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &NetworkError{URL: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var decoded generateResponse

	decodeErr := json.Unmarshal(payload, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := fmt.Sprintf(msgFmtServerStatus, resp.StatusCode)
		if decodeErr == nil && decoded.Error != "" {
			message = decoded.Error
		}

		return Result{}, &ServerError{StatusCode: resp.StatusCode, Message: message}
	}

	if decodeErr != nil {
		return Result{}, &ServerError{StatusCode: resp.StatusCode, Message: msgInvalidResponse}
	}

	if decoded.AudioFilePath == "" {
		return Result{}, &ServerError{StatusCode: resp.StatusCode, Message: msgMissingAudioPath}
	}

	audioURL, err := c.audioURL(decoded.AudioFilePath)
	if err != nil {
		return Result{}, &ServerError{StatusCode: resp.StatusCode, Message: msgInvalidResponse}
	}

	return Result{AudioFilePath: decoded.AudioFilePath, AudioURL: audioURL}, nil
}

// Download fetches generated audio from audioURL.
func (c *HTTPClient) Download(ctx context.Context, audioURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{URL: audioURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf(msgFmtServerStatus, resp.StatusCode),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: audioURL, Err: fmt.Errorf("failed to read audio data: %w", err)}
	}

	if len(audioData) == 0 {
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: "Server returned empty audio."}
	}

	return audioData, nil
}

// audioURL resolves path against the service and appends the cache-busting
// timestamp so a player never replays an earlier result.
func (c *HTTPClient) audioURL(path string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid audio path %q: %w", path, err)
	}

	resolved := base.ResolveReference(ref)
	query := resolved.Query()
	query.Set(cacheBustParam, strconv.FormatInt(c.now().UnixMilli(), 10))
	resolved.RawQuery = query.Encode()

	return resolved.String(), nil
}

func encodeForm(text string, req Request) (io.Reader, string, error) {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	fields := []struct {
		name  string
		value string
	}{
		{fieldText, text},
		{fieldExaggeration, formatFloat(req.Exaggeration)},
		{fieldTemperature, formatFloat(req.Temperature)},
		{fieldCFGWeight, formatFloat(req.CFGWeight)},
	}

	for _, field := range fields {
		err := writer.WriteField(field.name, field.value)
		if err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", field.name, err)
		}
	}

	if req.AudioPrompt != nil {
		err := writeFilePart(writer, fieldAudioPrompt, req.AudioPrompt)
		if err != nil {
			return nil, "", err
		}
	}

	err := writer.Close()
	if err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(writer *multipart.Writer, fieldName string, file *core.AudioFile) error {
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fieldName), quoteEscaper.Replace(file.Name)))
	header.Set(headerContentType, mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", fieldName, err)
	}

	_, err = part.Write(file.Data)
	if err != nil {
		return fmt.Errorf("failed to write %s part: %w", fieldName, err)
	}

	return nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
