// Package chunkplan computes the overlapping chunk windows a long audio
// file is split into before transcription. It is a pure function of the
// total duration and the chunking parameters: no I/O, no clock, no
// randomness, so it is directly testable and safe to re-run on resume.
package chunkplan

import "github.com/forayproject/bout/internal/job"

// Defaults mirror the values used throughout spec examples and the
// original pipeline this module's behavior is grounded on.
const (
	DefaultDuration = 300.0 // seconds per chunk before overlap
	DefaultOverlap  = 10.0  // seconds of leading overlap per non-first chunk
	DefaultMinChunk = 30.0  // trailing remainder below this is absorbed
)

// Params bounds the chunk planner's inputs. A zero Params is invalid;
// use NewParams or fall back to the Default* constants.
type Params struct {
	ChunkDuration float64
	Overlap       float64
	MinChunk      float64
}

// NewParams builds a Params value, substituting defaults for a non-positive
// ChunkDuration or MinChunk and for an Overlap that is negative or not
// smaller than ChunkDuration. A zero Overlap is kept.
func NewParams(chunkDuration, overlap, minChunk float64) Params {
	p := Params{ChunkDuration: chunkDuration, Overlap: overlap, MinChunk: minChunk}
	if p.ChunkDuration <= 0 {
		p.ChunkDuration = DefaultDuration
	}
	if p.Overlap < 0 || p.Overlap >= p.ChunkDuration {
		p.Overlap = DefaultOverlap
	}
	if p.MinChunk <= 0 {
		p.MinChunk = DefaultMinChunk
	}
	return p
}

// Plan computes the ordered, non-empty chunk windows covering
// [0, duration]. It returns nil for duration <= 0.
//
// The step between consecutive chunk starts is ChunkDuration - Overlap.
// A trailing remainder shorter than MinChunk is absorbed into the
// previous chunk's EndTime rather than becoming its own short chunk,
// per the absorption rule this planner is grounded on.
func Plan(duration float64, p Params) []job.Chunk {
	if duration <= 0 {
		return nil
	}

	if duration <= p.ChunkDuration {
		return []job.Chunk{{
			Index:     0,
			StartTime: 0,
			EndTime:   duration,
			Status:    job.ChunkPending,
		}}
	}

	step := p.ChunkDuration - p.Overlap
	var chunks []job.Chunk
	start := 0.0
	index := 0
	for start < duration {
		end := start + p.ChunkDuration
		if end > duration {
			end = duration
		}

		overlapStart := 0.0
		if index > 0 {
			overlapStart = p.Overlap
		}

		// Absorb a short trailing remainder into the previous chunk
		// rather than emitting a sub-MinChunk final window.
		if end-start < p.MinChunk && len(chunks) > 0 {
			chunks[len(chunks)-1].EndTime = duration
			break
		}

		chunks = append(chunks, job.Chunk{
			Index:        index,
			StartTime:    start,
			EndTime:      end,
			OverlapStart: overlapStart,
			Status:       job.ChunkPending,
		})

		if end >= duration {
			break
		}

		start += step
		index++
	}

	return chunks
}
