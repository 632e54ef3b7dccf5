// Package events is the asynchronous channel between the processing core
// and whatever presents it (CLI progress, web UI, logs).
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event, and the miss is counted.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies an event type.
type Kind string

const (
	KindProgress        Kind = "progress"
	KindState           Kind = "state"
	KindTranscriptSaved Kind = "transcript_saved"
	KindPromptResult    Kind = "prompt_result"
	KindError           Kind = "error"
)

// Event is a single notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind         Kind      `json:"kind"`
	JobID        string    `json:"job_id,omitempty"`
	TranscriptID string    `json:"transcript_id,omitempty"`
	Prompt       string    `json:"prompt,omitempty"`
	Percent      int       `json:"percent,omitempty"`
	State        string    `json:"state,omitempty"`
	Text         string    `json:"text,omitempty"`
	Err          string    `json:"error,omitempty"`
	Code         string    `json:"code,omitempty"`
	At           time.Time `json:"at"`
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(e Event)
}

// Bus fans events out to subscribers.
type Bus struct {
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	dropped atomic.Uint64
}

// NewBus returns a bus whose subscribers each buffer up to buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{buffer: buffer, subs: make(map[uint64]chan Event)}
}

// Publish delivers e to every subscriber that has room.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events and a func that unsubscribes and
// closes it. The channel is also closed when the bus is closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}

// OrNop returns p, or a discarding publisher when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return Nop{}
	}
	return p
}
