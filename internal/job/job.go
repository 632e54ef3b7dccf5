// Package job sequences one session end to end: recording, chunked
// transcription, encrypted persistence and the prompt fan-out.
package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hpungsan/scribe/internal/errors"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateRecording       State = "recording"
	StateStopped         State = "stopped"
	StateTranscribing    State = "transcribing"
	StateFailed          State = "failed"
	StateCompleted       State = "completed"
	StatePromptsRunning  State = "prompts_running"
	StatePromptsComplete State = "prompts_complete"
)

// IDPrefix starts every job id; the rest is the capture start time, plus
// a _N suffix when that second is already taken.
const IDPrefix = "session_"

// IDLayout formats the capture timestamp in a job id.
const IDLayout = "20060102_150405"

var transitions = map[State][]State{
	StateIdle:            {StateRecording},
	StateRecording:       {StateStopped},
	StateStopped:         {StateTranscribing},
	StateTranscribing:    {StateCompleted, StateFailed},
	StateFailed:          {StateTranscribing},
	StateCompleted:       {StatePromptsRunning},
	StatePromptsRunning:  {StatePromptsComplete, StateCompleted},
	StatePromptsComplete: {StatePromptsRunning},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidState reports whether s is a known state.
func ValidState(s State) bool {
	_, ok := transitions[s]
	return ok
}

// ID derives a job id from the capture start time.
func ID(t time.Time) string {
	return IDPrefix + t.Format(IDLayout)
}

// maxIDAttempts bounds the ids tried for captures started in the same second.
const maxIDAttempts = 100

// candidateID returns the n-th id for base: base itself, then base_2, base_3.
func candidateID(base string, n int) string {
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, n)
}

// Job is one recording/transcription session.
//
// ID, AudioPath, SampleRate and TotalSamples are fixed when the job is
// created at recording stop. The remaining fields track progress.
type Job struct {
	ID           string `json:"id"`
	AudioPath    string `json:"audio_path"`
	SampleRate   int    `json:"sample_rate"`
	TotalSamples int    `json:"total_samples"`
	State        State  `json:"state"`
	TranscriptID string `json:"transcript_id,omitempty"`
	Error        string `json:"error,omitempty"`

	// FailedChunk is set when the last failure was a chunk transcription error
	FailedChunk *int `json:"failed_chunk,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Transition moves j to next or returns CONFLICT.
func (j *Job) Transition(next State) error {
	if !CanTransition(j.State, next) {
		return errors.NewConflict(fmt.Sprintf("job %s cannot move from %s to %s", j.ID, j.State, next))
	}
	j.State = next
	return nil
}

// ListFilter narrows ListJobs. Zero values match everything.
type ListFilter struct {
	State  State
	Limit  int
	Offset int
}

// Store persists jobs.
type Store interface {
	InsertJob(ctx context.Context, j *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	ListJobs(ctx context.Context, f ListFilter) ([]Job, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

// InsertJob implements Store. A duplicate id is a CONFLICT.
func (m *MemoryStore) InsertJob(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return errors.NewConflict(fmt.Sprintf("job %s already exists", j.ID))
	}
	m.jobs[j.ID] = *j
	return nil
}

// GetJob implements Store.
func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, errors.NewNotFound("job", id)
	}
	return &j, nil
}

// UpdateJob implements Store.
func (m *MemoryStore) UpdateJob(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return errors.NewNotFound("job", j.ID)
	}
	m.jobs[j.ID] = *j
	return nil
}

// ListJobs implements Store, newest first.
func (m *MemoryStore) ListJobs(_ context.Context, f ListFilter) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Job
	for _, j := range m.jobs {
		if f.State == "" || j.State == f.State {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt != out[b].CreatedAt {
			return out[a].CreatedAt > out[b].CreatedAt
		}
		return out[a].ID > out[b].ID
	})

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
