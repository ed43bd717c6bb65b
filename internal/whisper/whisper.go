// Package whisper implements the Transcription Worker's model client: an
// HTTP collaborator contract for a local/self-hosted speech-recognition
// server, with OOM-tolerant retry and CPU fallback as first-class
// control flow (the collaborator runs on a device the caller manages,
// unlike a hosted API).
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/forayproject/bout/internal/apierr"
	"github.com/forayproject/bout/internal/job"
	"github.com/forayproject/bout/internal/lang"
)

// Device names the accelerator a model instance runs on.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// Default retry/backoff and response-size limits for the transport layer,
// distinct from the outer OOM-retry loop in Worker.TranscribeChunk.
const (
	defaultMaxRetries  = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 15 * time.Second
	maxResponseSize    = 10 * 1024 * 1024
	transcribePath     = "/v1/transcribe"
	statusInsufficient = 507 // insufficient storage/memory, reused here for OOM signaling
)

// ErrOutOfMemory indicates the model reported an out-of-memory condition
// for this chunk; the caller may retry or fall back to CPU.
var ErrOutOfMemory = errors.New("model reported out of memory")

// ErrTranscriptionFailed wraps any other (non-OOM) model failure.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Options carries per-chunk transcription hints.
type Options struct {
	Language lang.Language
	Prompt   string
	Device   Device
}

// rawSegment is the wire shape of one segment in the model's response,
// timestamps relative to the start of the submitted chunk file.
type rawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcribeResponse struct {
	Text     string       `json:"text"`
	Segments []rawSegment `json:"segments"`
	Device   string       `json:"device"`
}

type modelErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"` // "oom" when the server detected an OOM condition
}

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a self-hosted transcription model server over HTTP,
// one chunk per request, with transient-network retry layered under the
// caller's own OOM-retry loop.
type Client struct {
	httpClient httpDoer
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(c httpDoer) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxRetries sets the transient-network retry budget.
func WithMaxRetries(n int) ClientOption {
	return func(cl *Client) {
		if n >= 0 {
			cl.maxRetries = n
		}
	}
}

// NewClient creates a Client targeting a model server at baseURL (e.g.
// "http://127.0.0.1:9000", taken from BOUT_MODEL_ENDPOINT).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		baseURL:    baseURL,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// transcribeOnce performs exactly one HTTP call against the model
// server, retrying only transient network failures (not OOM, which the
// caller's outer loop handles explicitly).
func (c *Client) transcribeOnce(ctx context.Context, chunkPath string, opts Options) ([]job.Segment, error) {
	cfg := apierr.RetryConfig{MaxRetries: c.maxRetries, BaseDelay: c.baseDelay, MaxDelay: c.maxDelay}

	return apierr.RetryWithBackoff(ctx, cfg, func() ([]job.Segment, error) {
		segs, err := c.callModel(ctx, chunkPath, opts)
		if err != nil {
			return nil, classifyError(err)
		}
		return segs, nil
	}, isRetryableError)
}

func (c *Client) callModel(ctx context.Context, chunkPath string, opts Options) (_ []job.Segment, err error) {
	file, err := os.Open(chunkPath)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filepath.Base(chunkPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy chunk into form: %w", err)
	}

	if code := opts.Language.BaseCode(); code != "" {
		_ = w.WriteField("language", code)
	}
	if opts.Prompt != "" {
		_ = w.WriteField("prompt", opts.Prompt)
	}
	device := opts.Device
	if device == "" {
		device = DeviceAuto
	}
	_ = w.WriteField("device", string(device))

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+transcribePath, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == statusInsufficient {
		return nil, fmt.Errorf("%w: %s", ErrOutOfMemory, respBody)
	}
	if resp.StatusCode != http.StatusOK {
		var e modelErrorResponse
		_ = json.Unmarshal(respBody, &e)
		if e.Kind == "oom" {
			return nil, fmt.Errorf("%w: %s", ErrOutOfMemory, e.Error)
		}
		return nil, &modelAPIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	segs := make([]job.Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		text := trimText(s.Text)
		if text == "" {
			continue
		}
		segs = append(segs, job.Segment{Start: s.Start, End: s.End, Text: text})
	}
	return segs, nil
}

func trimText(s string) string {
	return trimSpaceASCII(s)
}

// trimSpaceASCII avoids pulling in strings for a one-line trim so this
// file's import list stays focused; behaves like strings.TrimSpace for
// the whitespace the model server is expected to emit.
func trimSpaceASCII(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

type modelAPIError struct {
	StatusCode int
	Message    string
}

func (e *modelAPIError) Error() string {
	return fmt.Sprintf("model server error %d: %s", e.StatusCode, e.Message)
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOutOfMemory) {
		return err
	}

	var apiErr *modelAPIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrRateLimit)
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		}
		return fmt.Errorf("%w: %v", ErrTranscriptionFailed, apiErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrOutOfMemory) {
		return false // the outer OOM loop owns this, not the transport retry
	}
	return errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrTimeout)
}
