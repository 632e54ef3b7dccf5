package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/audio"
	"github.com/hpungsan/scribe/internal/engine"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/events"
	"github.com/hpungsan/scribe/internal/fileio"
	"github.com/hpungsan/scribe/internal/logging"
	"github.com/hpungsan/scribe/internal/pipeline"
	"github.com/hpungsan/scribe/internal/transcript"
)

// Transcriber is the chunked transcription engine.
type Transcriber interface {
	Transcribe(ctx context.Context, jobID string, samples []int16) (*engine.Result, error)
	Options() engine.Options
}

// Transcripts persists finished transcripts.
type Transcripts interface {
	Save(ctx context.Context, jobID, plaintext string) (*transcript.Record, error)
	Read(ctx context.Context, id string) (string, error)
}

// Prompts fans extraction prompts out over a transcript.
type Prompts interface {
	RunAll(ctx context.Context, transcriptID, transcript string) (*pipeline.Summary, error)
}

// Config holds orchestrator settings.
type Config struct {
	// AudioDir receives the WAV audit file of every job
	AudioDir string

	CaptureSampleRate int
}

// Outcome is the result of driving a job as far as it can go.
type Outcome struct {
	Job     *Job              `json:"job"`
	Prompts *pipeline.Summary `json:"prompts,omitempty"`
}

type session struct {
	id      string
	started time.Time
	buf     *audio.Buffer
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	// stopping is set once StopRecording has claimed the session
	stopping bool
}

// Orchestrator owns the job lifecycle.
type Orchestrator struct {
	cfg         Config
	store       Store
	engine      Transcriber
	transcripts Transcripts
	prompts     Prompts
	recorder    *audio.Recorder
	events      events.Publisher
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	active   map[string]bool
}

// New returns an orchestrator. pub and logger may be nil.
func New(cfg Config, store Store, eng Transcriber, transcripts Transcripts, prompts Prompts, pub events.Publisher, logger *zap.Logger) (*Orchestrator, error) {
	if store == nil || eng == nil || transcripts == nil || prompts == nil {
		return nil, errors.NewInvalidRequest("orchestrator needs a job store, engine, transcript store and prompt pipeline")
	}
	if cfg.AudioDir == "" {
		return nil, errors.NewInvalidRequest("audio directory is required")
	}
	if cfg.CaptureSampleRate == 0 {
		cfg.CaptureSampleRate = eng.Options().ModelSampleRate
	}
	logger = logging.OrNop(logger)
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		engine:      eng,
		transcripts: transcripts,
		prompts:     prompts,
		recorder:    audio.NewRecorder(logger),
		events:      events.OrNop(pub),
		logger:      logger,
		now:         time.Now,
		sessions:    make(map[string]*session),
		active:      make(map[string]bool),
	}, nil
}

// StartRecording begins capturing from dev in its own goroutine and returns
// the id the job will have. Capture runs independently of any other job's
// transcription and of ctx; it ends at StopRecording or device EOF.
func (o *Orchestrator) StartRecording(ctx context.Context, dev audio.Device) (string, error) {
	if dev == nil {
		return "", errors.NewInvalidRequest("capture device is required")
	}
	if rate := o.engine.Options().ModelSampleRate; o.cfg.CaptureSampleRate != rate {
		return "", errors.NewInvalidRequest(fmt.Sprintf("capture sample rate %d does not match model sample rate %d", o.cfg.CaptureSampleRate, rate))
	}

	started := o.now()

	o.mu.Lock()
	id, err := o.reserveID(ctx, ID(started))
	if err != nil {
		o.mu.Unlock()
		return "", err
	}
	capCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{id: id, started: started, buf: &audio.Buffer{}, cancel: cancel, done: make(chan struct{})}
	o.sessions[id] = s
	o.mu.Unlock()

	go func() {
		defer close(s.done)
		s.err = o.recorder.Run(capCtx, dev, s.buf)
	}()

	o.logger.Info("recording started", zap.String("job_id", id))
	o.publishState(id, StateRecording)
	return id, nil
}

// RecordingDone returns a channel closed when the capture of jobID ends on
// its own (device EOF or failure).
func (o *Orchestrator) RecordingDone(jobID string) (<-chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[jobID]
	if !ok {
		return nil, errors.NewNotFound("recording", jobID)
	}
	return s.done, nil
}

// Recording returns the ids of sessions still capturing.
func (o *Orchestrator) Recording() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.sessions))
	for id, s := range o.sessions {
		if !s.stopping {
			ids = append(ids, id)
		}
	}
	return ids
}

// reserveID returns the first id derived from base that no live session,
// stored job or audio file holds. o.mu must be held.
func (o *Orchestrator) reserveID(ctx context.Context, base string) (string, error) {
	for n := 1; n <= maxIDAttempts; n++ {
		id := candidateID(base, n)
		if _, ok := o.sessions[id]; ok {
			continue
		}
		taken, err := o.idTaken(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", errors.NewConflict(fmt.Sprintf("no free job id for %s", base))
}

// idTaken reports whether a job row or an audio file already uses id.
func (o *Orchestrator) idTaken(ctx context.Context, id string) (bool, error) {
	if _, err := os.Lstat(o.audioPath(id)); err == nil {
		return true, nil
	}
	_, err := o.store.GetJob(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// heldByOtherSession reports whether a live session other than own holds id.
func (o *Orchestrator) heldByOtherSession(id, own string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.sessions[id]
	return ok && id != own
}

func (o *Orchestrator) audioPath(id string) string {
	return filepath.Join(o.cfg.AudioDir, id+".wav")
}

// StopRecording finalizes the buffer, writes the WAV audit file, creates the
// job and processes it. Whatever was captured is transcribed, including an
// empty recording. A capture failure still keeps the audio buffered before it.
func (o *Orchestrator) StopRecording(ctx context.Context, jobID string) (*Outcome, error) {
	o.mu.Lock()
	s, ok := o.sessions[jobID]
	if !ok || s.stopping {
		o.mu.Unlock()
		return nil, errors.NewNotFound("recording", jobID)
	}
	s.stopping = true
	o.mu.Unlock()

	s.cancel()
	<-s.done

	if s.err != nil {
		sErr, _ := errors.As(s.err)
		o.logger.Warn("recording ended with capture error", zap.String("job_id", jobID), zap.Error(s.err))
		ev := events.Event{Kind: events.KindError, JobID: jobID, Err: s.err.Error()}
		if sErr != nil {
			ev.Code = string(sErr.Code)
		}
		o.events.Publish(ev)
	}

	samples := s.buf.Samples()
	// The id stays reserved until its job row exists.
	j, err := o.create(ctx, jobID, jobID, s.started, samples, o.cfg.CaptureSampleRate)
	o.mu.Lock()
	delete(o.sessions, jobID)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}
	o.logger.Info("recording stopped", zap.String("job_id", j.ID), zap.Int("samples", len(samples)))
	return o.run(ctx, j, samples)
}

// ImportWAV creates a job from an existing mono or multi-channel 16-bit WAV
// file and processes it. The file's rate must equal the model rate.
func (o *Orchestrator) ImportWAV(ctx context.Context, path string) (*Outcome, error) {
	samples, rate, err := audio.ReadWAVFile(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("read %s: %v", path, err))
	}
	if want := o.engine.Options().ModelSampleRate; rate != want {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("%s has sample rate %d, model expects %d", filepath.Base(path), rate, want))
	}

	started := o.now()
	j, err := o.create(ctx, ID(started), "", started, samples, rate)
	if err != nil {
		return nil, err
	}
	o.logger.Info("audio imported", zap.String("job_id", j.ID), zap.String("source", path), zap.Int("samples", len(samples)))
	return o.run(ctx, j, samples)
}

// Process transcribes a stopped or failed job from its WAV file, resuming
// from the job's checkpoint when one exists, then runs the prompts.
func (o *Orchestrator) Process(ctx context.Context, jobID string) (*Outcome, error) {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != StateStopped && j.State != StateFailed {
		return nil, errors.NewConflict(fmt.Sprintf("job %s is %s; only stopped or failed jobs can be processed", j.ID, j.State))
	}
	samples, err := o.loadSamples(j)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, j, samples)
}

// Resume continues a job from wherever it stopped: transcription for
// stopped, failed or interrupted jobs; the prompt fan-out for completed ones.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (*Outcome, error) {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch j.State {
	case StateStopped, StateFailed:
		return o.Process(ctx, jobID)

	case StateTranscribing:
		// Only an interrupted run leaves this state behind.
		if o.isActive(jobID) {
			return nil, errors.NewConflict(fmt.Sprintf("job %s is already being processed", jobID))
		}
		o.fail(ctx, j, errors.NewInternal(fmt.Errorf("transcription interrupted")))
		return o.Process(ctx, jobID)

	case StatePromptsRunning:
		if o.isActive(jobID) {
			return nil, errors.NewConflict(fmt.Sprintf("job %s is already being processed", jobID))
		}
		if err := o.setState(ctx, j, StateCompleted); err != nil {
			return nil, err
		}
		return o.resumePrompts(ctx, j)

	case StateCompleted:
		return o.resumePrompts(ctx, j)

	default:
		return nil, errors.NewConflict(fmt.Sprintf("job %s is %s and cannot be resumed", j.ID, j.State))
	}
}

// Get returns a job.
func (o *Orchestrator) Get(ctx context.Context, jobID string) (*Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// List returns jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, f ListFilter) ([]Job, error) {
	return o.store.ListJobs(ctx, f)
}

// create stores samples under the first free id derived from base and
// inserts its job row. The audio file is created exclusively, so an existing
// job's audio is never replaced; own is the recording session whose reserved
// id base is, or empty for imports.
func (o *Orchestrator) create(ctx context.Context, base, own string, started time.Time, samples []int16, rate int) (*Job, error) {
	if err := fileio.EnsureDir(o.cfg.AudioDir); err != nil {
		return nil, errors.NewPersistence("create audio directory", err)
	}
	// Captured audio always gets a job record, even when the caller is gone.
	ctx = context.WithoutCancel(ctx)

	for n := 1; n <= maxIDAttempts; n++ {
		id := candidateID(base, n)
		if o.heldByOtherSession(id, own) {
			continue
		}

		path := o.audioPath(id)
		if err := audio.CreateWAVFile(path, samples, rate); err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.NewPersistence("write audio file", err)
		}

		now := o.now().Unix()
		j := &Job{
			ID:           id,
			AudioPath:    path,
			SampleRate:   rate,
			TotalSamples: len(samples),
			State:        StateStopped,
			CreatedAt:    started.Unix(),
			UpdatedAt:    now,
		}
		if err := o.store.InsertJob(ctx, j); err != nil {
			if errors.Is(err, errors.ErrConflict) {
				// A row without audio holds the id; the file is ours to drop.
				os.Remove(path)
				continue
			}
			return nil, err
		}
		if id != base {
			o.logger.Warn("job id taken, using suffixed id", zap.String("wanted", base), zap.String("job_id", id))
		}
		o.publishState(j.ID, StateStopped)
		return j, nil
	}
	return nil, errors.NewConflict(fmt.Sprintf("no free job id for %s", base))
}

func (o *Orchestrator) loadSamples(j *Job) ([]int16, error) {
	samples, rate, err := audio.ReadWAVFile(j.AudioPath)
	if err != nil {
		return nil, errors.NewPersistence("read audio file", err)
	}
	if want := o.engine.Options().ModelSampleRate; rate != want {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("job %s has sample rate %d, model expects %d", j.ID, rate, want))
	}
	if len(samples) != j.TotalSamples {
		o.logger.Warn("audio length differs from job record",
			zap.String("job_id", j.ID), zap.Int("file_samples", len(samples)), zap.Int("job_samples", j.TotalSamples))
	}
	return samples, nil
}

// run drives a stopped or failed job through transcription, persistence and
// the prompt fan-out. One run per job at a time.
func (o *Orchestrator) run(ctx context.Context, j *Job, samples []int16) (*Outcome, error) {
	release, err := o.acquire(j.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	j.Error = ""
	j.FailedChunk = nil
	if err := o.setState(ctx, j, StateTranscribing); err != nil {
		return nil, err
	}

	res, err := o.engine.Transcribe(ctx, j.ID, samples)
	if err != nil {
		o.fail(ctx, j, err)
		return &Outcome{Job: j}, err
	}

	// The checkpoint is gone once the engine returns; the text must be kept
	// even if the caller has given up.
	rec, err := o.transcripts.Save(context.WithoutCancel(ctx), j.ID, res.Text)
	if err != nil {
		o.fail(ctx, j, err)
		return &Outcome{Job: j}, err
	}
	j.TranscriptID = rec.ID
	if err := o.setState(context.WithoutCancel(ctx), j, StateCompleted); err != nil {
		return &Outcome{Job: j}, err
	}
	o.events.Publish(events.Event{Kind: events.KindTranscriptSaved, JobID: j.ID, TranscriptID: rec.ID})

	return o.runPrompts(ctx, j, res.Text)
}

func (o *Orchestrator) resumePrompts(ctx context.Context, j *Job) (*Outcome, error) {
	release, err := o.acquire(j.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	text, err := o.transcripts.Read(ctx, j.TranscriptID)
	if err != nil {
		return nil, err
	}
	return o.runPrompts(ctx, j, text)
}

func (o *Orchestrator) runPrompts(ctx context.Context, j *Job, text string) (*Outcome, error) {
	if err := o.setState(ctx, j, StatePromptsRunning); err != nil {
		return &Outcome{Job: j}, err
	}

	summary, err := o.prompts.RunAll(ctx, j.TranscriptID, text)
	if err != nil {
		o.logger.Error("prompt fan-out failed", zap.String("job_id", j.ID), zap.Error(err))
		j.Error = err.Error()
		_ = o.setState(context.WithoutCancel(ctx), j, StateCompleted)
		return &Outcome{Job: j}, err
	}

	if err := o.setState(ctx, j, StatePromptsComplete); err != nil {
		return &Outcome{Job: j, Prompts: summary}, err
	}
	return &Outcome{Job: j, Prompts: summary}, nil
}

// fail records err on the job. The store write ignores cancellation so an
// interrupted run still leaves a resumable record.
func (o *Orchestrator) fail(ctx context.Context, j *Job, err error) {
	j.Error = err.Error()
	if idx, ok := errors.ChunkIndex(err); ok {
		j.FailedChunk = &idx
	}
	if sErr := o.setState(context.WithoutCancel(ctx), j, StateFailed); sErr != nil {
		o.logger.Error("record job failure", zap.String("job_id", j.ID), zap.Error(sErr))
	}
	o.logger.Warn("job failed", zap.String("job_id", j.ID), zap.Error(err))
}

func (o *Orchestrator) setState(ctx context.Context, j *Job, next State) error {
	prev := j.State
	if err := j.Transition(next); err != nil {
		return err
	}
	j.UpdatedAt = o.now().Unix()
	if err := o.store.UpdateJob(ctx, j); err != nil {
		j.State = prev
		return err
	}
	o.publishState(j.ID, next)
	return nil
}

func (o *Orchestrator) publishState(jobID string, s State) {
	o.events.Publish(events.Event{Kind: events.KindState, JobID: jobID, State: string(s)})
}

func (o *Orchestrator) acquire(jobID string) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[jobID] {
		return nil, errors.NewConflict(fmt.Sprintf("job %s is already being processed", jobID))
	}
	o.active[jobID] = true
	return func() {
		o.mu.Lock()
		delete(o.active, jobID)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) isActive(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active[jobID]
}
