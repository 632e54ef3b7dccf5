// Package engine turns a job's full sample buffer into a transcript one
// fixed-length chunk at a time, checkpointing after every chunk so an
// interrupted job resumes exactly where it stopped.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/audio"
	"github.com/hpungsan/scribe/internal/checkpoint"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/events"
	"github.com/hpungsan/scribe/internal/logging"
	"github.com/hpungsan/scribe/internal/models"
)

// Checkpoints is the persistence the engine needs. *checkpoint.Store satisfies it.
type Checkpoints interface {
	Get(jobID string) (*checkpoint.Record, error)
	Put(jobID string, index int, cumulativeText string) error
	Delete(jobID string) error
	Lock(jobID string) (unlock func())
}

// Options configures chunking.
type Options struct {
	ChunkDurationSeconds int
	ModelSampleRate      int
}

// ChunkSamples returns the number of samples per chunk.
func (o Options) ChunkSamples() int {
	return o.ChunkDurationSeconds * o.ModelSampleRate
}

// TotalChunks returns ceil(totalSamples / ChunkSamples()).
func (o Options) TotalChunks(totalSamples int) int {
	n := o.ChunkSamples()
	if n <= 0 || totalSamples <= 0 {
		return 0
	}
	return (totalSamples + n - 1) / n
}

// Result is the outcome of a completed run.
type Result struct {
	Text            string `json:"text"`
	ChunksProcessed int    `json:"chunks_processed"`
	TotalChunks     int    `json:"total_chunks"`
	Resumed         bool   `json:"resumed"`
}

// Engine runs chunked transcription.
type Engine struct {
	opts        Options
	checkpoints Checkpoints
	stt         models.SpeechToText
	events      events.Publisher
	logger      *zap.Logger
}

// New returns an engine. pub and logger may be nil.
func New(opts Options, checkpoints Checkpoints, stt models.SpeechToText, pub events.Publisher, logger *zap.Logger) (*Engine, error) {
	if opts.ChunkDurationSeconds <= 0 || opts.ModelSampleRate <= 0 {
		return nil, errors.NewInvalidRequest("chunk duration and model sample rate must be positive")
	}
	if checkpoints == nil || stt == nil {
		return nil, errors.NewInvalidRequest("checkpoint store and speech-to-text are required")
	}
	return &Engine{
		opts:        opts,
		checkpoints: checkpoints,
		stt:         stt,
		events:      events.OrNop(pub),
		logger:      logging.OrNop(logger),
	}, nil
}

// Options returns the engine's chunking parameters.
func (e *Engine) Options() Options {
	return e.opts
}

// Transcribe produces the transcript for samples, which must already be at
// the model sample rate.
//
// Chunks are processed strictly in order. After each chunk the cumulative
// text is checkpointed before progress is published. A model failure stops
// the run with TRANSCRIPTION{chunk_index} and leaves the checkpoint at the
// previous chunk, so calling Transcribe again for the same job retries from
// the failed chunk. Cancellation is honored between chunks only. Only one run
// per jobID executes at a time.
func (e *Engine) Transcribe(ctx context.Context, jobID string, samples []int16) (*Result, error) {
	unlock := e.checkpoints.Lock(jobID)
	defer unlock()

	log := e.logger.With(zap.String("job_id", jobID))

	chunkSamples := e.opts.ChunkSamples()
	totalChunks := e.opts.TotalChunks(len(samples))

	start, accumulated := 0, ""
	rec, err := e.checkpoints.Get(jobID)
	if err != nil {
		return nil, err
	}
	resumed := rec != nil
	if resumed {
		start = rec.LastProcessedChunk + 1
		accumulated = rec.Transcript
		log.Info("resuming from checkpoint",
			zap.Int("chunk", start), zap.Int("total_chunks", totalChunks))
	}

	processed := 0
	for i := start; i < totalChunks; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelled(fmt.Sprintf("transcription before chunk %d", i))
		}

		chunk := extractChunk(samples, i, chunkSamples)

		text, err := e.stt.Transcribe(ctx, audio.ToFloat32(chunk), e.opts.ModelSampleRate)
		if err != nil {
			log.Warn("chunk transcription failed", zap.Int("chunk", i), zap.Error(err))
			tErr := errors.NewTranscription(i, err)
			e.events.Publish(events.Event{
				Kind:  events.KindError,
				JobID: jobID,
				Err:   tErr.Message,
				Code:  string(tErr.Code),
			})
			return nil, tErr
		}

		accumulated += text + " "

		// The checkpoint must be durable before anyone hears about progress.
		if err := e.checkpoints.Put(jobID, i, accumulated); err != nil {
			log.Error("checkpoint write failed", zap.Int("chunk", i), zap.Error(err))
			return nil, err
		}
		processed++

		e.events.Publish(events.Event{
			Kind:    events.KindProgress,
			JobID:   jobID,
			Percent: Percent(i, totalChunks),
		})
		log.Debug("chunk transcribed", zap.Int("chunk", i), zap.Int("total_chunks", totalChunks))
	}

	if err := e.checkpoints.Delete(jobID); err != nil {
		return nil, err
	}

	log.Info("transcription complete",
		zap.Int("chunks_processed", processed), zap.Int("total_chunks", totalChunks), zap.Bool("resumed", resumed))

	return &Result{
		Text:            accumulated,
		ChunksProcessed: processed,
		TotalChunks:     totalChunks,
		Resumed:         resumed,
	}, nil
}

// Percent is floor((i+1)*100/total) for chunk index i.
func Percent(i, total int) int {
	if total <= 0 {
		return 100
	}
	return (i + 1) * 100 / total
}

// extractChunk returns chunk i, right-padded with silence to chunkSamples.
func extractChunk(samples []int16, i, chunkSamples int) []int16 {
	start := i * chunkSamples
	end := min(start+chunkSamples, len(samples))
	if end-start == chunkSamples {
		return samples[start:end]
	}
	padded := make([]int16, chunkSamples)
	copy(padded, samples[start:end])
	return padded
}
