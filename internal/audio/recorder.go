// Package audio captures PCM samples into memory and converts them to and
// from the WAV audit format.
package audio

import (
	"context"
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/logging"
)

// Recorder pulls frames from a device into a buffer until stopped.
type Recorder struct {
	logger *zap.Logger
}

// NewRecorder returns a recorder. logger may be nil.
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{logger: logging.OrNop(logger)}
}

// Run captures until ctx is cancelled (the stop action) or the device reaches
// EOF; both return nil. A device failure returns AUDIO_CAPTURE. Samples
// captured before any return stay in buf.
func (r *Recorder) Run(ctx context.Context, dev Device, buf *Buffer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := dev.ReadFrame(ctx)
		if len(frame) > 0 {
			buf.Append(frame)
		}
		if err != nil {
			switch {
			case stderrors.Is(err, io.EOF):
				r.logger.Debug("capture source exhausted", zap.Int("samples", buf.Len()))
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				r.logger.Warn("capture failed", zap.Error(err), zap.Int("samples", buf.Len()))
				return errors.NewAudioCapture(err)
			}
		}
	}
}
