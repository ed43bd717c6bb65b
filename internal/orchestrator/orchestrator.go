// Package orchestrator sequences the pipeline stages — extract, chunk,
// transcribe, merge, diarize, generate — against one Job, checkpointing
// at every stage boundary and resuming from whatever status a persisted
// job was left in.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forayproject/bout/internal/boutapp"
	"github.com/forayproject/bout/internal/boutlog"
	"github.com/forayproject/bout/internal/checkpoint"
	"github.com/forayproject/bout/internal/chunkplan"
	"github.com/forayproject/bout/internal/diarize"
	"github.com/forayproject/bout/internal/docwriter"
	"github.com/forayproject/bout/internal/extract"
	"github.com/forayproject/bout/internal/ffmpeg"
	"github.com/forayproject/bout/internal/job"
	"github.com/forayproject/bout/internal/merge"
	"github.com/forayproject/bout/internal/progress"
	"github.com/forayproject/bout/internal/split"
	"github.com/forayproject/bout/internal/whisper"
)

// stageOrder ranks resumable statuses so the orchestrator can tell which
// stages are strictly earlier than a persisted job's current status.
var stageOrder = map[job.Status]int{
	job.StatusPending:      0,
	job.StatusExtracting:   1,
	job.StatusChunking:     2,
	job.StatusTranscribing: 3,
	job.StatusMerging:      4,
	job.StatusDiarizing:    5,
	job.StatusGenerating:   6,
	job.StatusCompleted:    7,
}

// Diarizer is the optional speaker-diarization collaborator.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) ([]diarize.Interval, error)
}

// audioExtractor is the small local interface the extract stage calls
// through, so tests can substitute a fake rather than shelling to ffmpeg.
type audioExtractor interface {
	Extract(ctx context.Context, videoPath, outDir string, cb ffmpeg.ProgressFunc) (extract.Result, error)
}

// chunkSplitter is the small local interface the chunk stage calls
// through, for the same reason.
type chunkSplitter interface {
	Split(ctx context.Context, audioPath, chunksDir string, chunks []job.Chunk, cb split.ProgressFunc) error
}

// transcribeWorker is the small local interface the transcribe stage
// calls through.
type transcribeWorker interface {
	TranscribeAll(ctx context.Context, chunks []job.Chunk, opts whisper.Options, checkpoint whisper.CheckpointFunc, progress whisper.ProgressFunc) error
}

// Orchestrator drives one Job at a time through the full pipeline. It is
// the sole writer of job state: every stage boundary is a checkpoint.
type Orchestrator struct {
	Checkpoint    *checkpoint.Store
	Extractor     audioExtractor
	Splitter      chunkSplitter
	Worker        transcribeWorker
	Diarizer      Diarizer
	DocWriter     docwriter.Writer
	ChunkParams   chunkplan.Params
	TranscribeOpt whisper.Options
	MergeOverlap  float64
	EnableDiarize bool
	OnProgress    progress.OnUpdate
	Logger        *boutlog.Logger
}

// logger returns o.Logger, or a default stderr logger at info level if
// the caller never set one (e.g. an Orchestrator built directly in a
// test without wiring a logger).
func (o *Orchestrator) logger() *boutlog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return boutlog.New(os.Stderr, boutlog.LevelInfo)
}

// New creates an Orchestrator with the documented chunk-planning
// defaults and a plain-text merge overlap; callers override fields
// directly (functional options would be overkill for a handful of
// struct fields set once at construction).
func New(store *checkpoint.Store, extractor *extract.Extractor, splitter *split.Splitter, worker *whisper.Worker, writer docwriter.Writer) *Orchestrator {
	return &Orchestrator{
		Checkpoint:   store,
		Extractor:    extractor,
		Splitter:     splitter,
		Worker:       worker,
		DocWriter:    writer,
		ChunkParams:  chunkplan.NewParams(chunkplan.DefaultDuration, chunkplan.DefaultOverlap, chunkplan.DefaultMinChunk),
		MergeOverlap: merge.DefaultOverlap,
	}
}

// NewJob creates a fresh, unpersisted Job for videoPath.
func NewJob(id, videoPath, outputPath string) job.Job {
	now := time.Now()
	return job.Job{
		ID:         id,
		VideoPath:  videoPath,
		VideoName:  filepath.Base(videoPath),
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     job.StatusPending,
		OutputPath: outputPath,
		ChunkConfig: job.ChunkConfig{
			DurationSeconds: chunkplan.DefaultDuration,
			OverlapSeconds:  chunkplan.DefaultOverlap,
		},
	}
}

// Run drives j through every stage it hasn't yet completed, persisting
// at each boundary. If j.Status is already StatusCompleted, Run is a
// no-op that returns the stored OutputPath (idempotence property).
func (o *Orchestrator) Run(ctx context.Context, j job.Job, tempDir string) (job.Job, error) {
	if j.Status == job.StatusCompleted {
		return j, nil
	}

	tracker := progress.New(o.OnProgress)

	stages := []struct {
		status job.Status
		run    func(context.Context, *job.Job, *progress.Tracker, string) error
	}{
		{job.StatusExtracting, o.runExtract},
		{job.StatusChunking, o.runChunk},
		{job.StatusTranscribing, o.runTranscribe},
		{job.StatusMerging, o.runMerge},
		{job.StatusDiarizing, o.runDiarize},
		{job.StatusGenerating, o.runGenerate},
	}

	startRank := stageOrder[j.Status]

	for _, st := range stages {
		if stageOrder[st.status] < startRank {
			continue
		}

		if err := ctx.Err(); err != nil {
			return o.cancel(j, err)
		}

		j.Status = st.status
		if err := o.save(j); err != nil {
			return o.fail(j, boutapp.Wrap(string(st.status), err, "check disk space and permissions for the jobs directory"))
		}

		if err := st.run(ctx, &j, tracker, tempDir); err != nil {
			if errors.Is(err, context.Canceled) {
				return o.cancel(j, err)
			}
			var be *boutapp.BoutError
			if errors.As(err, &be) {
				return o.fail(j, be)
			}
			return o.fail(j, boutapp.Wrap(string(st.status), err, "pipeline failed"))
		}

		if err := o.save(j); err != nil {
			return o.fail(j, boutapp.Wrap(string(st.status), err, "check disk space and permissions for the jobs directory"))
		}
	}

	j.Status = job.StatusCompleted
	if err := o.save(j); err != nil {
		return j, boutapp.Wrap("completed", err, "job finished but the final checkpoint failed to persist")
	}

	o.cleanup(j)
	return j, nil
}

func (o *Orchestrator) save(j job.Job) error {
	if o.Checkpoint == nil {
		return nil
	}
	return o.Checkpoint.SaveJob(j)
}

func (o *Orchestrator) cancel(j job.Job, cause error) (job.Job, error) {
	j.Status = job.StatusCancelled
	_ = o.save(j)
	_ = cause
	return j, nil
}

func (o *Orchestrator) fail(j job.Job, be *boutapp.BoutError) (job.Job, error) {
	j.Status = job.StatusFailed
	j.Error = be.Error()
	_ = o.save(j)
	return j, be
}

func (o *Orchestrator) cleanup(j job.Job) {
	if o.Checkpoint == nil {
		return
	}
	_ = o.Checkpoint.CleanupJobFiles(j)
}

func (o *Orchestrator) runExtract(ctx context.Context, j *job.Job, tracker *progress.Tracker, tempDir string) error {
	tracker.StartStage(progress.StageExtract, "extracting audio", 1)

	result, err := o.Extractor.Extract(ctx, j.VideoPath, tempDir, func(frac float64) {
		tracker.UpdateStage(progress.StageExtract, frac)
	})
	if err != nil {
		return err
	}

	j.AudioPath = result.AudioPath
	j.DurationSeconds = result.DurationSeconds
	tracker.CompleteStage(progress.StageExtract)
	return nil
}

func (o *Orchestrator) runChunk(ctx context.Context, j *job.Job, tracker *progress.Tracker, tempDir string) error {
	tracker.StartStage(progress.StageChunk, "planning chunks", 1)

	if err := ctx.Err(); err != nil {
		return err
	}

	plan := chunkplan.Plan(j.DurationSeconds, o.ChunkParams)
	j.Chunks = plan
	j.ChunkConfig = job.ChunkConfig{
		DurationSeconds: o.ChunkParams.ChunkDuration,
		OverlapSeconds:  o.ChunkParams.Overlap,
	}
	j.ChunksDir = filepath.Join(tempDir, j.ID+"_chunks")

	if err := o.Splitter.Split(ctx, j.AudioPath, j.ChunksDir, j.Chunks, func(done, total int) {
		tracker.UpdateStage(progress.StageChunk, float64(done)/float64(max(total, 1)))
	}); err != nil {
		return err
	}

	tracker.CompleteStage(progress.StageChunk)
	return nil
}

func (o *Orchestrator) runTranscribe(ctx context.Context, j *job.Job, tracker *progress.Tracker, _ string) error {
	tracker.StartStage(progress.StageTranscribe, "transcribing chunks", float64(max(len(j.Chunks), 1)))

	checkpointFn := func(c job.Chunk) error {
		if o.Checkpoint == nil {
			return nil
		}
		return o.Checkpoint.SaveChunkResult(j.ID, c)
	}
	progressFn := func(done, total int) {
		tracker.UpdateStage(progress.StageTranscribe, float64(done))
	}

	if err := o.Worker.TranscribeAll(ctx, j.Chunks, o.TranscribeOpt, checkpointFn, progressFn); err != nil {
		return err
	}

	tracker.CompleteStage(progress.StageTranscribe)
	return nil
}

func (o *Orchestrator) runMerge(ctx context.Context, j *job.Job, tracker *progress.Tracker, _ string) error {
	tracker.StartStage(progress.StageMerge, "merging chunk overlaps", 1)

	if err := ctx.Err(); err != nil {
		return err
	}

	text, segs := merge.Merge(j.Chunks, o.MergeOverlap)
	j.TranscriptionText = text
	j.Segments = segs

	tracker.CompleteStage(progress.StageMerge)
	return nil
}

func (o *Orchestrator) runDiarize(ctx context.Context, j *job.Job, tracker *progress.Tracker, _ string) error {
	tracker.StartStage(progress.StageDiarize, "assigning speakers", 1)

	if !o.EnableDiarize || o.Diarizer == nil {
		tracker.CompleteStage(progress.StageDiarize)
		return nil
	}

	intervals, err := o.Diarizer.Diarize(ctx, j.AudioPath)
	if err != nil {
		// Diarization failure is logged and non-fatal; the pipeline
		// continues without speaker labels. This is not recorded on the
		// job itself since a COMPLETED job has no error.
		o.logger().Error("diarization skipped for job %s: %v", j.ID, err)
		tracker.CompleteStage(progress.StageDiarize)
		return nil
	}

	assigned := diarize.Assign(j.Segments, intervals)
	j.Segments = diarize.Consolidate(assigned)
	j.TranscriptionText = joinSegmentText(j.Segments)

	tracker.CompleteStage(progress.StageDiarize)
	return nil
}

func (o *Orchestrator) runGenerate(ctx context.Context, j *job.Job, tracker *progress.Tracker, _ string) error {
	tracker.StartStage(progress.StageGenerate, "writing document", 1)

	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := o.DocWriter.Write(*j)
	if err != nil {
		return err
	}

	if j.OutputPath == "" {
		j.OutputPath = strings.TrimSuffix(j.VideoPath, filepath.Ext(j.VideoPath)) + ".md"
	}

	if err := os.WriteFile(j.OutputPath, []byte(body), 0o644); err != nil { // #nosec G306 -- user-specified output file
		return fmt.Errorf("write output: %w", err)
	}

	tracker.CompleteStage(progress.StageGenerate)
	return nil
}

func joinSegmentText(segs []job.Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}
