// Package split implements the Chunk Splitter: cutting an extracted WAV
// file into per-chunk files according to a chunk plan, one ffmpeg
// invocation per chunk, consumed synchronously and in order.
package split

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/forayproject/bout/internal/job"
)

// ErrSplitFailed wraps any ffmpeg failure during chunk splitting.
var ErrSplitFailed = errors.New("chunk splitting failed")

// ProgressFunc reports (chunks done, total chunks) after each split.
type ProgressFunc func(done, total int)

// Splitter cuts a WAV file into per-chunk files.
type Splitter struct {
	FFmpegPath string
}

// New creates a Splitter resolving ffmpeg at the given path (empty falls
// back to PATH lookup).
func New(ffmpegPath string) *Splitter {
	return &Splitter{FFmpegPath: ffmpegPath}
}

// Split writes one WAV file per chunk into chunksDir, setting each
// chunk's FilePath in place. A single-chunk plan reuses audioPath
// directly rather than re-encoding it, since there is nothing to cut.
func (s *Splitter) Split(ctx context.Context, audioPath, chunksDir string, chunks []job.Chunk, cb ProgressFunc) error {
	if len(chunks) == 0 {
		return nil
	}

	if len(chunks) == 1 {
		chunks[0].FilePath = audioPath
		if cb != nil {
			cb(1, 1)
		}
		return nil
	}

	if err := os.MkdirAll(chunksDir, 0o755); err != nil {
		return fmt.Errorf("%w: create chunks dir: %v", ErrSplitFailed, err)
	}

	ffmpegPath := s.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	for i := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		outPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d.wav", chunks[i].Index))
		args := []string{
			"-y",
			"-ss", fmt.Sprintf("%f", chunks[i].StartTime),
			"-i", audioPath,
			"-t", fmt.Sprintf("%f", chunks[i].Duration()),
			"-acodec", "pcm_s16le",
			"-ar", "16000",
			"-ac", "1",
			outPath,
		}

		cmd := exec.CommandContext(ctx, ffmpegPath, args...)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%w: chunk %d: %v: %s", ErrSplitFailed, chunks[i].Index, err, out)
		}

		chunks[i].FilePath = outPath
		if cb != nil {
			cb(i+1, len(chunks))
		}
	}

	return nil
}
