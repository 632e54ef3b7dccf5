package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	stderrors "errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scribe/internal/errors"
)

type failingDevice struct {
	frames [][]int16
	err    error
}

func (d *failingDevice) ReadFrame(context.Context) ([]int16, error) {
	if len(d.frames) == 0 {
		return nil, d.err
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, nil
}

// blockingDevice yields one frame per call until ctx is cancelled.
type blockingDevice struct{}

func (blockingDevice) ReadFrame(ctx context.Context) ([]int16, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
		return []int16{1, 1}, nil
	}
}

func TestBuffer(t *testing.T) {
	var b Buffer
	b.Append([]int16{1, 2})
	b.Append([]int16{3})

	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}
	got := b.Samples()
	got[0] = 99
	if b.Samples()[0] != 1 {
		t.Error("Samples() returned shared storage")
	}
}

func TestReaderDevice(t *testing.T) {
	var raw bytes.Buffer
	binary.Write(&raw, binary.LittleEndian, []int16{1, 2, 3, 4, 5})
	raw.WriteByte(0x7f) // trailing odd byte

	dev := NewReaderDevice(&raw, 2)
	ctx := context.Background()

	var frames [][]int16
	for {
		f, err := dev.ReadFrame(ctx)
		if stderrors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}

	require.Equal(t, [][]int16{{1, 2}, {3, 4}, {5}}, frames)
}

func TestRecorder_RunUntilEOF(t *testing.T) {
	var buf Buffer
	err := NewRecorder(nil).Run(context.Background(), NewSliceDevice([]int16{1, 2, 3, 4, 5}, 2), &buf)
	require.NoError(t, err)
	require.Equal(t, []int16{1, 2, 3, 4, 5}, buf.Samples())
}

func TestRecorder_DeviceFailureKeepsSamples(t *testing.T) {
	dev := &failingDevice{
		frames: [][]int16{{1, 2}, {3}},
		err:    stderrors.New("device unplugged"),
	}

	var buf Buffer
	err := NewRecorder(nil).Run(context.Background(), dev, &buf)
	if !errors.Is(err, errors.ErrAudioCapture) {
		t.Fatalf("Run() error = %v, want AUDIO_CAPTURE", err)
	}
	require.Equal(t, []int16{1, 2, 3}, buf.Samples())
}

func TestRecorder_StopByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var buf Buffer
	done := make(chan error, 1)
	go func() {
		done <- NewRecorder(nil).Run(ctx, blockingDevice{}, &buf)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if buf.Len() == 0 {
		t.Error("no samples captured before stop")
	}
}

func TestRecorder_ZeroLength(t *testing.T) {
	var buf Buffer
	err := NewRecorder(nil).Run(context.Background(), NewSliceDevice(nil, 4), &buf)
	require.NoError(t, err)
	require.Equal(t, 0, buf.Len())
}
