// Package progress implements the weighted multi-stage progress tracker:
// a small value type that aggregates per-stage completion fractions into
// one overall fraction, and fans updates out to a single subscriber.
package progress

import "sync"

// Stage names the pipeline phases tracked for overall progress.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageChunk      Stage = "chunk"
	StageTranscribe Stage = "transcribe"
	StageMerge      Stage = "merge"
	StageDiarize    Stage = "diarize"
	StageGenerate   Stage = "generate"
)

// stageWeights are each stage's fixed contribution to the overall
// progress fraction. They must sum to 1.0.
var stageWeights = map[Stage]float64{
	StageExtract:    0.10,
	StageChunk:      0.05,
	StageTranscribe: 0.50,
	StageMerge:      0.05,
	StageDiarize:    0.15,
	StageGenerate:   0.15,
}

// StageProgress holds one stage's completion state.
type StageProgress struct {
	Description string
	Total       float64
	Completed   float64
	started     bool
}

// Fraction returns Completed/Total in [0,1], or 0 for an unstarted or
// zero-total stage.
func (s StageProgress) Fraction() float64 {
	if !s.started || s.Total <= 0 {
		return 0
	}
	f := s.Completed / s.Total
	if f > 1 {
		return 1
	}
	return f
}

// OnUpdate is the single progress subscriber. It is invoked synchronously
// on every stage mutation; implementations must be fast and side-effect
// light, matching the spec's single-callback design.
type OnUpdate func(overall float64, stage Stage, sp StageProgress)

// Tracker aggregates weighted stage progress into one overall fraction.
type Tracker struct {
	mu       sync.Mutex
	stages   map[Stage]*StageProgress
	onUpdate OnUpdate
}

// New creates a Tracker. onUpdate may be nil.
func New(onUpdate OnUpdate) *Tracker {
	return &Tracker{
		stages:   make(map[Stage]*StageProgress),
		onUpdate: onUpdate,
	}
}

// StartStage begins tracking a stage with the given total units of work.
func (t *Tracker) StartStage(s Stage, description string, total float64) {
	t.mu.Lock()
	sp := &StageProgress{Description: description, Total: total, started: true}
	t.stages[s] = sp
	t.mu.Unlock()
	t.notify(s, *sp)
}

// UpdateStage sets a stage's completed units.
func (t *Tracker) UpdateStage(s Stage, completed float64) {
	t.mu.Lock()
	sp, ok := t.stages[s]
	if !ok {
		sp = &StageProgress{Total: 1, started: true}
		t.stages[s] = sp
	}
	sp.Completed = completed
	snapshot := *sp
	t.mu.Unlock()
	t.notify(s, snapshot)
}

// CompleteStage marks a stage fully done.
func (t *Tracker) CompleteStage(s Stage) {
	t.mu.Lock()
	sp, ok := t.stages[s]
	if !ok {
		sp = &StageProgress{Total: 1, started: true}
		t.stages[s] = sp
	}
	sp.Completed = sp.Total
	snapshot := *sp
	t.mu.Unlock()
	t.notify(s, snapshot)
}

// OverallProgress returns the weighted sum of fractions across every
// started-or-completed stage; unstarted stages contribute 0.
func (t *Tracker) OverallProgress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.overallLocked()
}

func (t *Tracker) overallLocked() float64 {
	var total float64
	for stage, sp := range t.stages {
		total += stageWeights[stage] * sp.Fraction()
	}
	return total
}

// OverallPercent returns OverallProgress scaled to [0,100].
func (t *Tracker) OverallPercent() float64 {
	return t.OverallProgress() * 100
}

func (t *Tracker) notify(s Stage, sp StageProgress) {
	if t.onUpdate == nil {
		return
	}
	t.mu.Lock()
	overall := t.overallLocked()
	t.mu.Unlock()
	t.onUpdate(overall, s, sp)
}
