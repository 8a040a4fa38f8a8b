// Package jobstore is the concurrency-safe in-memory mapping from job
// identifier to job record that every other component reports progress
// through and the delivery/status HTTP handlers read from.
package jobstore

import (
	"sync"
	"time"

	"github.com/livepeer/video-ingest/progress"
)

// Stage is one of the lifecycle states a job passes through.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageUploading   Stage = "uploading"
	StageDownloading Stage = "downloading"
	StageTranscoding Stage = "transcoding"
	StageFinalizing  Stage = "finalizing"
	StageComplete    Stage = "complete"
	StageFailed      Stage = "failed"
)

const minETASeconds = 45 * 60

type job struct {
	stage           Stage
	plan            []Stage
	stageProgress   float64
	stageETASeconds *float64
	startedAt       time.Time
	lastUpdate      time.Time
	stageStartedAt  time.Time
	errMsg          string
}

// Store is a concurrency-safe map of job id to job record. Construct one
// with New; the zero value has no map and is not usable.
type Store struct {
	mu   sync.Mutex
	jobs map[string]*job
}

// New returns an empty Store.
func New() *Store {
	return &Store{jobs: make(map[string]*job)}
}

// Snapshot is the read-only view returned by Status and List.
type Snapshot struct {
	ID                        string
	Stage                     Stage
	Progress                  float64
	StageProgress             float64
	CurrentStageIndex         int // 1-based; 0 means unset
	TotalStages               int
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
	Error                     string
	StartedAtUnixMs           int64
	LastUpdateUnixMs          int64
}

// Create inserts a fresh record in the queued stage. Callers guarantee id
// uniqueness; creating over an existing id silently replaces it.
func (s *Store) Create(id string) {
	now := progress.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = &job{
		stage:          StageQueued,
		startedAt:      now,
		lastUpdate:     now,
		stageStartedAt: now,
	}
}

// SetPlan replaces the ordered sequence of stages this job is expected to
// pass through. A no-op for unknown ids.
func (s *Store) SetPlan(id string, plan []Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.plan = plan
	j.lastUpdate = progress.Clock.Now()
}

// UpdateStage transitions the job to a new stage, resetting per-stage
// progress and ETA.
func (s *Store) UpdateStage(id string, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	now := progress.Clock.Now()
	j.stage = stage
	j.stageProgress = 0
	j.stageETASeconds = nil
	j.stageStartedAt = now
	j.lastUpdate = now
}

// UpdateProgress clamps p to [0,1] and stores it as the current stage's
// progress. Implements encoder.ProgressSink.
func (s *Store) UpdateProgress(id string, p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.stageProgress = clamp01(p)
	j.lastUpdate = progress.Clock.Now()
}

// UpdateStageETA stores an optional externally supplied ETA; nil clears it.
// Implements encoder.ProgressSink.
func (s *Store) UpdateStageETA(id string, eta *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.stageETASeconds = eta
	j.lastUpdate = progress.Clock.Now()
}

// Fail marks the job failed with the given message and clears its ETA.
func (s *Store) Fail(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.stage = StageFailed
	j.errMsg = msg
	j.stageETASeconds = nil
	j.lastUpdate = progress.Clock.Now()
}

// Complete marks the job complete with full stage progress and zero ETA.
func (s *Store) Complete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return
	}
	j.stage = StageComplete
	j.stageProgress = 1
	zero := 0.0
	j.stageETASeconds = &zero
	j.lastUpdate = progress.Clock.Now()
}

// Status returns a snapshot of the job, or ok=false if the id is unknown.
func (s *Store) Status(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(id, j), true
}

// List returns a snapshot of every job, in no particular order.
func (s *Store) List() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.jobs))
	for id, j := range s.jobs {
		out = append(out, snapshotOf(id, j))
	}
	return out
}

func snapshotOf(id string, j *job) Snapshot {
	now := progress.Clock.Now()
	snap := Snapshot{
		ID:               id,
		Stage:            j.stage,
		StageProgress:    j.stageProgress,
		TotalStages:      len(j.plan),
		Error:            j.errMsg,
		StartedAtUnixMs:  j.startedAt.UnixMilli(),
		LastUpdateUnixMs: j.lastUpdate.UnixMilli(),
		ElapsedSeconds:   now.Sub(j.startedAt).Seconds(),
	}

	snap.Progress = overallProgress(j)

	if idx := stageIndex(j); idx > 0 {
		snap.CurrentStageIndex = idx
	}

	if j.stageETASeconds != nil {
		snap.EstimatedRemainingSeconds = j.stageETASeconds
	} else if j.stage != StageFailed {
		eta := heuristicETA(j, now)
		snap.EstimatedRemainingSeconds = &eta
	}

	return snap
}

func stageIndex(j *job) int {
	if len(j.plan) == 0 {
		return 0
	}
	for i, s := range j.plan {
		if s == j.stage {
			return i + 1
		}
	}
	return 0
}

func overallProgress(j *job) float64 {
	if j.stage == StageComplete {
		return 1
	}
	if j.stage == StageFailed {
		return lastComputedProgress(j)
	}

	n := len(j.plan)
	if n > 0 {
		if idx := stageIndex(j); idx > 0 {
			return clamp01((float64(idx-1) + j.stageProgress) / float64(n))
		}
		switch j.stage {
		case StageQueued:
			return 0
		case StageFinalizing:
			return clamp01((float64(n-1) + j.stageProgress) / float64(n))
		default:
			return clamp01(j.stageProgress / float64(n))
		}
	}

	switch j.stage {
	case StageQueued:
		return 0
	default:
		return clamp01(j.stageProgress)
	}
}

func lastComputedProgress(j *job) float64 {
	n := len(j.plan)
	if n == 0 {
		return j.stageProgress
	}
	if idx := stageIndex(j); idx > 0 {
		return clamp01((float64(idx-1) + j.stageProgress) / float64(n))
	}
	return clamp01(j.stageProgress / float64(n))
}

func heuristicETA(j *job, now time.Time) float64 {
	if j.stage == StageComplete {
		return 0
	}
	elapsed := now.Sub(j.stageStartedAt).Seconds()
	if j.stageProgress < 0.02 {
		return maxFloat(minETASeconds, elapsed*6)
	}
	return elapsed * (1 - j.stageProgress) / j.stageProgress
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
