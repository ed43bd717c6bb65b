// Package job defines the data model shared by every pipeline stage: a
// Job's identity and progress fields, its chunk list, and the status
// enums that drive resume and cleanup decisions.
package job

import "time"

// Status is the lifecycle state of a Job. The zero value is the empty
// string, which is none of the named statuses; new jobs are created with
// StatusPending explicitly.
type Status string

const (
	StatusPending      Status = "pending"
	StatusExtracting   Status = "extracting"
	StatusChunking     Status = "chunking"
	StatusTranscribing Status = "transcribing"
	StatusMerging      Status = "merging"
	StatusDiarizing    Status = "diarizing"
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// resumable holds the statuses from which the orchestrator may resume.
var resumable = map[Status]bool{
	StatusExtracting:   true,
	StatusChunking:     true,
	StatusTranscribing: true,
	StatusMerging:      true,
	StatusGenerating:   true,
}

// Resumable reports whether a job in this status can be resumed rather
// than restarted from scratch.
func (s Status) Resumable() bool {
	return resumable[s]
}

// Terminal reports whether this status ends the job's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ChunkStatus is the lifecycle state of a single Chunk.
type ChunkStatus string

const (
	ChunkPending    ChunkStatus = "pending"
	ChunkProcessing ChunkStatus = "processing"
	ChunkCompleted  ChunkStatus = "completed"
	ChunkFailed     ChunkStatus = "failed"
)

// Segment is one timestamped span of transcribed text, in original-audio
// time (already rebased from chunk-relative time by the transcription
// worker).
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// ChunkConfig records the parameters the chunk planner used, so a resumed
// or re-merged job is reproducible without re-reading CLI flags.
type ChunkConfig struct {
	DurationSeconds float64 `json:"duration_seconds"`
	OverlapSeconds  float64 `json:"overlap_seconds"`
}

// Chunk is one overlapping audio interval carved from the extracted WAV.
type Chunk struct {
	Index        int         `json:"index"`
	StartTime    float64     `json:"start_time"`
	EndTime      float64     `json:"end_time"`
	OverlapStart float64     `json:"overlap_start"`
	FilePath     string      `json:"file_path,omitempty"`
	Status       ChunkStatus `json:"status"`
	Text         string      `json:"text,omitempty"`
	Segments     []Segment   `json:"segments,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Duration returns the chunk's span in the original-audio timeline.
func (c Chunk) Duration() float64 {
	return c.EndTime - c.StartTime
}

// First reports whether this is the first chunk of its job.
func (c Chunk) First() bool { return c.Index == 0 }

// Job is the complete persisted state of one transcription run.
type Job struct {
	ID                 string      `json:"job_id"`
	VideoPath          string      `json:"video_path"`
	VideoName          string      `json:"video_name"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	DurationSeconds    float64     `json:"duration_seconds"`
	Status             Status      `json:"status"`
	Error              string      `json:"error,omitempty"`
	AudioPath          string      `json:"audio_path,omitempty"`
	ChunksDir          string      `json:"chunks_dir,omitempty"`
	ChunkConfig        ChunkConfig `json:"chunk_config"`
	Chunks             []Chunk     `json:"chunks"`
	OutputPath         string      `json:"output_path,omitempty"`
	TranscriptionText  string      `json:"transcription_text,omitempty"`
	Segments           []Segment   `json:"segments,omitempty"`
}

// CompletedChunks counts chunks currently in ChunkCompleted.
func (j Job) CompletedChunks() int {
	n := 0
	for _, c := range j.Chunks {
		if c.Status == ChunkCompleted {
			n++
		}
	}
	return n
}

// Progress returns CompletedChunks()/len(Chunks), or 0 for an empty plan.
func (j Job) Progress() float64 {
	if len(j.Chunks) == 0 {
		return 0
	}
	return float64(j.CompletedChunks()) / float64(len(j.Chunks))
}

// ChunkByIndex returns the chunk at the given index, or false if absent.
func (j Job) ChunkByIndex(index int) (Chunk, bool) {
	for _, c := range j.Chunks {
		if c.Index == index {
			return c, true
		}
	}
	return Chunk{}, false
}
