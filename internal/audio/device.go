package audio

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"io"
)

// Device is a source of mono PCM16 frames. ReadFrame returns io.EOF when the
// source is exhausted.
type Device interface {
	ReadFrame(ctx context.Context) ([]int16, error)
}

// ReaderDevice reads raw little-endian PCM16 from an io.Reader, such as stdin
// piped from an external capture tool.
//
// A blocked Read cannot be interrupted; cancellation is observed between frames.
type ReaderDevice struct {
	r            io.Reader
	frameSamples int
	buf          []byte
	done         bool
}

// NewReaderDevice returns a device yielding frames of up to frameSamples samples.
func NewReaderDevice(r io.Reader, frameSamples int) *ReaderDevice {
	if frameSamples <= 0 {
		frameSamples = 1024
	}
	return &ReaderDevice{r: r, frameSamples: frameSamples, buf: make([]byte, frameSamples*bytesPerSample)}
}

// ReadFrame implements Device. A short final read yields a short frame; a
// trailing odd byte is discarded.
func (d *ReaderDevice) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(d.r, d.buf)
	if err != nil {
		if stderrors.Is(err, io.ErrUnexpectedEOF) {
			d.done = true
		} else {
			return nil, err
		}
	}

	frame := make([]int16, n/bytesPerSample)
	for i := range frame {
		frame[i] = int16(binary.LittleEndian.Uint16(d.buf[i*2:]))
	}
	if len(frame) == 0 {
		return nil, io.EOF
	}
	return frame, nil
}

// SliceDevice replays samples in fixed-size frames. Used for imports and tests.
type SliceDevice struct {
	samples      []int16
	frameSamples int
	pos          int
}

// NewSliceDevice returns a device replaying samples.
func NewSliceDevice(samples []int16, frameSamples int) *SliceDevice {
	if frameSamples <= 0 {
		frameSamples = 1024
	}
	return &SliceDevice{samples: samples, frameSamples: frameSamples}
}

// ReadFrame implements Device.
func (d *SliceDevice) ReadFrame(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.pos >= len(d.samples) {
		return nil, io.EOF
	}
	end := min(d.pos+d.frameSamples, len(d.samples))
	frame := d.samples[d.pos:end]
	d.pos = end
	return frame, nil
}
