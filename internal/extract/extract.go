// Package extract implements the Audio Extractor: decoding a video's
// audio track to a 16kHz mono WAV file, reporting decode progress as it
// goes.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forayproject/bout/internal/ffmpeg"
)

// ErrExtractionFailed wraps any ffmpeg failure during audio extraction.
var ErrExtractionFailed = errors.New("audio extraction failed")

// Extractor decodes a video file's audio track to a WAV file suitable
// for chunking and transcription.
type Extractor struct {
	FFmpegPath  string
	FFprobePath string
}

// New creates an Extractor that resolves ffmpeg/ffprobe at the given
// paths (empty strings fall back to PATH lookup).
func New(ffmpegPath, ffprobePath string) *Extractor {
	return &Extractor{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Result carries the extracted audio path and the probed duration, which
// the orchestrator stamps onto the job and hands to the chunk planner.
type Result struct {
	AudioPath       string
	DurationSeconds float64
}

// Extract decodes videoPath's audio into outDir as "<stem>_audio.wav",
// reporting progress via cb (may be nil). It probes the source duration
// first so progress fractions are meaningful.
func (e *Extractor) Extract(ctx context.Context, videoPath, outDir string, cb ffmpeg.ProgressFunc) (Result, error) {
	duration, err := ffmpeg.Duration(ctx, e.FFprobePath, videoPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: probe duration: %v", ErrExtractionFailed, err)
	}

	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	outPath := filepath.Join(outDir, stem+"_audio.wav")

	ffmpegPath := e.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	args := []string{
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		outPath,
	}

	if err := ffmpeg.RunWithProgress(ctx, ffmpegPath, args, duration, cb); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	if _, err := os.Stat(outPath); err != nil {
		return Result{}, fmt.Errorf("%w: output file missing: %v", ErrExtractionFailed, err)
	}

	return Result{AudioPath: outPath, DurationSeconds: duration}, nil
}
