package ops

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/audio"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/job"
)

// ListJobsInput contains parameters for the ListJobs operation.
type ListJobsInput struct {
	State  string // optional filter
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// ListJobsOutput contains the result of the ListJobs operation.
type ListJobsOutput struct {
	Items      []job.Job  `json:"items"`
	Pagination Pagination `json:"pagination"`
	Sort       string     `json:"sort"`
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs(ctx context.Context, input ListJobsInput) (*ListJobsOutput, error) {
	state := job.State(input.State)
	if state != "" && !job.ValidState(state) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown job state: %q", input.State))
	}

	limit, offset := page(input.Limit, input.Offset)

	// Fetch one extra row to learn whether another page exists.
	jobs, err := s.Jobs.List(ctx, job.ListFilter{State: state, Limit: limit + 1, Offset: offset})
	if err != nil {
		return nil, err
	}
	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	if jobs == nil {
		jobs = []job.Job{}
	}

	return &ListJobsOutput{
		Items: jobs,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: hasMore,
			Total:   offset + len(jobs),
		},
		Sort: "created_at_desc",
	}, nil
}

// GetJob returns one job.
func (s *Service) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	id, err := requireField("job_id", jobID)
	if err != nil {
		return nil, err
	}
	return s.Jobs.Get(ctx, id)
}

// ResumeJob continues a job from its checkpoint or re-runs its prompts.
func (s *Service) ResumeJob(ctx context.Context, jobID string) (*job.Outcome, error) {
	id, err := requireField("job_id", jobID)
	if err != nil {
		return nil, err
	}
	return s.Jobs.Resume(ctx, id)
}

// Transcribe imports a WAV file as a new job and processes it.
func (s *Service) Transcribe(ctx context.Context, path string) (*job.Outcome, error) {
	path, err := requireField("path", path)
	if err != nil {
		return nil, err
	}
	return s.Jobs.ImportWAV(ctx, path)
}

// RecordInput contains parameters for the Record operation.
type RecordInput struct {
	Device audio.Device

	// Stop ends the recording; device EOF ends it too
	Stop <-chan struct{}
}

// Record captures from a device until stopped, then transcribes what was
// captured and runs the prompts. Cancelling ctx stops the recording; the
// captured audio is still processed.
func (s *Service) Record(ctx context.Context, input RecordInput) (*job.Outcome, error) {
	if input.Device == nil {
		return nil, errors.NewInvalidRequest("capture device is required")
	}

	id, err := s.Jobs.StartRecording(ctx, input.Device)
	if err != nil {
		return nil, err
	}
	done, err := s.Jobs.RecordingDone(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-input.Stop:
	case <-ctx.Done():
	}

	// With ctx already cancelled the job is still created; transcription
	// then stops before its first chunk and the job can be resumed.
	return s.Jobs.StopRecording(ctx, id)
}

// SweepInput contains parameters for the Sweep operation.
type SweepInput struct {
	OlderThan time.Duration // default: checkpoint_ttl_days
}

// SweepOutput contains the result of the Sweep operation.
type SweepOutput struct {
	Removed []string `json:"removed"`
	Message string   `json:"message"`
}

// Sweep deletes checkpoints of abandoned jobs that have not advanced within
// OlderThan.
func (s *Service) Sweep(input SweepInput) (*SweepOutput, error) {
	olderThan := input.OlderThan
	if olderThan == 0 && s.Config != nil {
		olderThan = s.Config.CheckpointTTL()
	}
	if olderThan <= 0 {
		return nil, errors.NewInvalidRequest("older_than must be positive (checkpoint_ttl_days is 0)")
	}

	removed, err := s.Checkpoints.Sweep(olderThan)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		removed = []string{}
	}
	if len(removed) > 0 {
		s.logger().Info("swept orphaned checkpoints", zap.Strings("job_ids", removed))
	}

	return &SweepOutput{
		Removed: removed,
		Message: formatSweepMessage(len(removed), olderThan),
	}, nil
}

// formatSweepMessage creates a human-readable message for the sweep result.
func formatSweepMessage(count int, olderThan time.Duration) string {
	age := olderThan.String()
	if olderThan%(24*time.Hour) == 0 {
		age = fmt.Sprintf("%dd", olderThan/(24*time.Hour))
	}
	switch count {
	case 0:
		return fmt.Sprintf("No checkpoints older than %s", age)
	case 1:
		return fmt.Sprintf("Removed 1 checkpoint older than %s", age)
	default:
		return fmt.Sprintf("Removed %d checkpoints older than %s", count, age)
	}
}
