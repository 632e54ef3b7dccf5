package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/prompt"
)

// ResultStore holds result slots keyed by (transcript, prompt).
//
// Claim marks the start of an explicit run and returns the generation the run
// owns. Commit writes the run's output only if the slot is still at that
// generation. Edit records user text and bumps the generation, which
// invalidates any run claimed earlier.
type ResultStore interface {
	Claim(ctx context.Context, transcriptID, name string) (int64, error)
	Commit(ctx context.Context, transcriptID, name string, generation int64, text string, isError bool) (committed bool, err error)
	Edit(ctx context.Context, transcriptID, name, text string) (*prompt.Result, error)
	Get(ctx context.Context, transcriptID, name string) (*prompt.Result, error)
	List(ctx context.Context, transcriptID string) ([]prompt.Result, error)
}

type slotKey struct {
	transcriptID string
	name         string
}

// MemoryResults is an in-process ResultStore.
type MemoryResults struct {
	mu    sync.Mutex
	slots map[slotKey]*prompt.Result
	now   func() time.Time
}

// NewMemoryResults returns an empty store.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{slots: make(map[slotKey]*prompt.Result), now: time.Now}
}

func (m *MemoryResults) slot(transcriptID, name string) *prompt.Result {
	k := slotKey{transcriptID, prompt.Normalize(name)}
	r, ok := m.slots[k]
	if !ok {
		r = &prompt.Result{TranscriptID: transcriptID, Prompt: name}
		m.slots[k] = r
	}
	return r
}

// Claim implements ResultStore.
func (m *MemoryResults) Claim(_ context.Context, transcriptID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.slot(transcriptID, name)
	r.Generation++
	r.Running = true
	r.Owner = prompt.OwnerPipeline
	r.UpdatedAt = m.now().Unix()
	return r.Generation, nil
}

// Commit implements ResultStore.
func (m *MemoryResults) Commit(_ context.Context, transcriptID, name string, generation int64, text string, isError bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.slots[slotKey{transcriptID, prompt.Normalize(name)}]
	if !ok || r.Generation != generation {
		return false, nil
	}
	r.Text = text
	r.IsError = isError
	r.IsUserEdited = false
	r.Running = false
	r.Owner = prompt.OwnerPipeline
	r.UpdatedAt = m.now().Unix()
	return true, nil
}

// Edit implements ResultStore.
func (m *MemoryResults) Edit(_ context.Context, transcriptID, name, text string) (*prompt.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.slot(transcriptID, name)
	r.Generation++
	r.Text = text
	r.IsUserEdited = true
	r.IsError = false
	r.Running = false
	r.Owner = prompt.OwnerUser
	r.UpdatedAt = m.now().Unix()
	out := *r
	return &out, nil
}

// Get implements ResultStore.
func (m *MemoryResults) Get(_ context.Context, transcriptID, name string) (*prompt.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.slots[slotKey{transcriptID, prompt.Normalize(name)}]
	if !ok {
		return nil, errors.NewNotFound("result", name)
	}
	out := *r
	return &out, nil
}

// List implements ResultStore. Results are ordered by prompt name.
func (m *MemoryResults) List(_ context.Context, transcriptID string) ([]prompt.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []prompt.Result
	for k, r := range m.slots {
		if k.transcriptID == transcriptID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prompt < out[j].Prompt })
	return out, nil
}
