// Package diarize implements the optional Diarization Adapter: an
// HF-credentialed speaker-diarization call plus maximum-overlap speaker
// assignment and same-speaker consolidation. Diarization failure is
// logged and non-fatal at the orchestrator layer; this package only
// returns errors, it does not decide whether they are fatal.
package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/forayproject/bout/internal/apierr"
	"github.com/forayproject/bout/internal/job"
)

// ErrDiarizationFailed wraps any failure calling the diarization service.
var ErrDiarizationFailed = errors.New("diarization failed")

// consolidateGap is the maximum silence between consecutive same-speaker
// segments that still get merged into one.
const consolidateGap = 1.0

// Interval is one speaker-labeled span of the audio timeline.
type Interval struct {
	Start   float64
	End     float64
	Speaker string
}

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls a HuggingFace-hosted diarization model over its inference
// API using the caller's HF_TOKEN.
type Client struct {
	httpClient httpDoer
	baseURL    string
	token      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(c httpDoer) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBaseURL overrides the default HuggingFace inference endpoint.
func WithBaseURL(url string) ClientOption {
	return func(cl *Client) { cl.baseURL = url }
}

const defaultBaseURL = "https://api-inference.huggingface.co/models/pyannote/speaker-diarization-3.1"

// NewClient creates a Client authenticated with token (HF_TOKEN).
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    defaultBaseURL,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type diarizationResponseEntry struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarize submits the full extracted audio file and returns the
// speaker-labeled intervals the model reports.
func (c *Client) Diarize(ctx context.Context, audioPath string) ([]Interval, error) {
	cfg := apierr.RetryConfig{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	return apierr.RetryWithBackoff(ctx, cfg, func() ([]Interval, error) {
		return c.callOnce(ctx, audioPath)
	}, func(err error) bool {
		return errors.Is(err, apierr.ErrRateLimit) || errors.Is(err, apierr.ErrTimeout)
	})
}

func (c *Client) callOnce(ctx context.Context, audioPath string) ([]Interval, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", ErrDiarizationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrDiarizationFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDiarizationFailed, err)
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", body, apierr.ErrRateLimit)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return nil, fmt.Errorf("%s: %w", body, apierr.ErrTimeout)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%s: %w", body, apierr.ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrDiarizationFailed, resp.StatusCode, body)
	}

	var entries []diarizationResponseEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrDiarizationFailed, err)
	}

	out := make([]Interval, len(entries))
	for i, e := range entries {
		out[i] = Interval{Start: e.Start, End: e.End, Speaker: e.Speaker}
	}
	return out, nil
}

// unknownSpeaker labels a segment that overlaps no diarization interval.
const unknownSpeaker = "Unknown"

// Assign labels each segment with the speaker of the interval it overlaps
// the most; a segment with no overlapping interval falls back to
// unknownSpeaker.
func Assign(segments []job.Segment, intervals []Interval) []job.Segment {
	out := make([]job.Segment, len(segments))
	for i, seg := range segments {
		out[i] = seg
		out[i].Speaker = bestSpeaker(seg, intervals)
	}
	return out
}

func bestSpeaker(seg job.Segment, intervals []Interval) string {
	var best string
	var bestOverlap float64
	for _, iv := range intervals {
		overlap := overlapSeconds(seg.Start, seg.End, iv.Start, iv.End)
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = iv.Speaker
		}
	}
	if best == "" {
		return unknownSpeaker
	}
	return best
}

func overlapSeconds(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}

// Consolidate coalesces consecutive same-speaker segments separated by
// at most consolidateGap seconds, concatenating their text with a space.
// Segments must already be sorted by Start.
func Consolidate(segments []job.Segment) []job.Segment {
	if len(segments) == 0 {
		return nil
	}

	out := []job.Segment{segments[0]}
	for _, seg := range segments[1:] {
		last := &out[len(out)-1]
		if seg.Speaker == last.Speaker && seg.Start-last.End <= consolidateGap {
			last.End = seg.End
			last.Text = last.Text + " " + seg.Text
			continue
		}
		out = append(out, seg)
	}
	return out
}
