package whisper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forayproject/bout/internal/job"
)

// maxOOMRetries is the number of in-place OOM retries before falling
// back to CPU, per the transcription worker's OOM-tolerant contract.
const maxOOMRetries = 3

// Worker drives one chunk through the model client with OOM retry and
// CPU fallback, per the transcription worker's design. It owns the
// currently-selected device for the lifetime of a job; the model server
// itself is stateless across requests, so "device" here only affects
// which hint this worker sends on each call.
type Worker struct {
	client        *Client
	device        Device
	resetCacheFn  func(ctx context.Context) error // best-effort GPU cache reset between attempts
}

// NewWorker creates a Worker against client, starting on the requested
// device (DeviceAuto by default).
func NewWorker(client *Client, device Device) *Worker {
	if device == "" {
		device = DeviceAuto
	}
	return &Worker{client: client, device: device}
}

// WithResetCache installs a hook invoked before each transcription
// attempt and OOM retry, mirroring the reference engine's
// cleanup_gpu_memory() bracket around every attempt.
func (w *Worker) WithResetCache(fn func(ctx context.Context) error) *Worker {
	w.resetCacheFn = fn
	return w
}

// TranscribeChunk runs the OOM-tolerant execution steps for one chunk:
// reset caches, attempt, retry up to maxOOMRetries on OOM, then fall
// back to CPU for this chunk only on the final attempt. Returned
// segments are chunk-relative; rebasing to the original-audio timeline
// is the caller's responsibility (see Rebase).
func (w *Worker) TranscribeChunk(ctx context.Context, c job.Chunk, opts Options) ([]job.Segment, error) {
	if opts.Device == "" {
		opts.Device = w.device
	}

	var lastErr error
	for attempt := 0; attempt <= maxOOMRetries; attempt++ {
		w.resetCache(ctx)

		segs, err := w.client.transcribeOnce(ctx, c.FilePath, opts)
		if err == nil {
			return segs, nil
		}
		if !errors.Is(err, ErrOutOfMemory) {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrTranscriptionFailed, c.Index, err)
		}

		lastErr = err
		if attempt == maxOOMRetries && opts.Device != DeviceCPU {
			return w.transcribeOnCPU(ctx, c, opts)
		}
	}

	return nil, fmt.Errorf("%w: chunk %d: %v", ErrOutOfMemory, c.Index, lastErr)
}

// transcribeOnCPU retries exactly once on CPU for this chunk, leaving
// w.device (the GPU preference for subsequent chunks) untouched.
func (w *Worker) transcribeOnCPU(ctx context.Context, c job.Chunk, opts Options) ([]job.Segment, error) {
	cpuOpts := opts
	cpuOpts.Device = DeviceCPU
	w.resetCache(ctx)

	segs, err := w.client.transcribeOnce(ctx, c.FilePath, cpuOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d (CPU fallback): %v", ErrTranscriptionFailed, c.Index, err)
	}
	return segs, nil
}

func (w *Worker) resetCache(ctx context.Context) {
	if w.resetCacheFn == nil {
		return
	}
	_ = w.resetCacheFn(ctx) // best-effort: a failed cache reset should not abort transcription
}

// Rebase shifts chunk-relative segment timestamps into the original-audio
// timeline by adding the chunk's StartTime and discarding segments with
// empty text. Text is not trimmed here; the client trims it on receipt.
func Rebase(c job.Chunk, segs []job.Segment) []job.Segment {
	out := make([]job.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Text == "" {
			continue
		}
		out = append(out, job.Segment{
			Start: s.Start + c.StartTime,
			End:   s.End + c.StartTime,
			Text:  s.Text,
		})
	}
	return out
}

// CheckpointFunc persists a chunk's result; called before ProgressFunc
// for the same chunk, per the ordering guarantee in the concurrency
// model (checkpoint happens-before progress).
type CheckpointFunc func(c job.Chunk) error

// ProgressFunc reports (done, total) chunks after each checkpoint.
type ProgressFunc func(done, total int)

// TranscribeAll drives chunks through TranscribeChunk in ascending
// index order, skipping chunks already ChunkCompleted so a resumed job
// does not redo finished work. It mutates chunks in place.
func (w *Worker) TranscribeAll(ctx context.Context, chunks []job.Chunk, opts Options, checkpoint CheckpointFunc, progress ProgressFunc) error {
	total := len(chunks)
	for i := range chunks {
		if chunks[i].Status == job.ChunkCompleted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		chunks[i].Status = job.ChunkProcessing
		segs, err := w.TranscribeChunk(ctx, chunks[i], opts)
		if err != nil {
			chunks[i].Status = job.ChunkFailed
			chunks[i].Error = err.Error()
			if checkpoint != nil {
				_ = checkpoint(chunks[i])
			}
			return err
		}

		rebased := Rebase(chunks[i], segs)
		now := time.Now()
		chunks[i].Status = job.ChunkCompleted
		chunks[i].Segments = rebased
		chunks[i].Text = joinSegmentText(rebased)
		chunks[i].CompletedAt = &now
		chunks[i].Error = ""

		if checkpoint != nil {
			if err := checkpoint(chunks[i]); err != nil {
				return fmt.Errorf("checkpoint chunk %d: %w", chunks[i].Index, err)
			}
		}
		if progress != nil {
			progress(i+1, total)
		}
		w.resetCache(ctx)
	}
	return nil
}

func joinSegmentText(segs []job.Segment) string {
	var out string
	for i, s := range segs {
		if i > 0 {
			out += " "
		}
		out += s.Text
	}
	return out
}
