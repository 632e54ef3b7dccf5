package audio

import "sync"

// Buffer accumulates captured samples. Safe for one producer and any number of readers.
type Buffer struct {
	mu      sync.RWMutex
	samples []int16
}

// Append adds a frame to the end of the buffer.
func (b *Buffer) Append(frame []int16) {
	b.mu.Lock()
	b.samples = append(b.samples, frame...)
	b.mu.Unlock()
}

// Samples returns a copy of everything captured so far.
func (b *Buffer) Samples() []int16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]int16(nil), b.samples...)
}

// Len returns the number of captured samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}
