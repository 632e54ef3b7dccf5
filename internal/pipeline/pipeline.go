// Package pipeline runs extraction prompts against a finished transcript.
//
// Every enabled prompt is an independent task in a bounded pool. A task that
// fails writes visible error text into its own slot and never affects the
// others. User edits and explicit re-runs are reconciled per slot through
// generations held by the ResultStore.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/events"
	"github.com/hpungsan/scribe/internal/logging"
	"github.com/hpungsan/scribe/internal/models"
	"github.com/hpungsan/scribe/internal/prompt"
)

// Prompts is the prompt source. *prompt.Registry satisfies it.
type Prompts interface {
	Enabled() []prompt.Definition
	Get(name string) (prompt.Definition, error)
}

// Completions hands out the completion capability. *models.Provider satisfies it.
type Completions interface {
	TextCompletion() (models.TextCompletion, error)
}

// Options bounds the pool and the model output.
type Options struct {
	Workers   int
	MaxTokens int
}

// Outcome reports what happened to one prompt in a run.
type Outcome struct {
	Prompt     string `json:"prompt"`
	Text       string `json:"text"`
	IsError    bool   `json:"is_error"`
	Committed  bool   `json:"committed"`
	Generation int64  `json:"generation"`
	DurationMS int64  `json:"duration_ms"`
}

// Summary aggregates a RunAll.
type Summary struct {
	TranscriptID string    `json:"transcript_id"`
	Outcomes     []Outcome `json:"outcomes"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`

	// Superseded counts runs whose slot was edited before they finished
	Superseded int `json:"superseded"`
}

// Pipeline dispatches prompt tasks.
type Pipeline struct {
	opts        Options
	prompts     Prompts
	completions Completions
	results     ResultStore
	events      events.Publisher
	logger      *zap.Logger
}

// New returns a pipeline. pub and logger may be nil.
func New(opts Options, prompts Prompts, completions Completions, results ResultStore, pub events.Publisher, logger *zap.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	return &Pipeline{
		opts:        opts,
		prompts:     prompts,
		completions: completions,
		results:     results,
		events:      events.OrNop(pub),
		logger:      logging.OrNop(logger),
	}
}

// Results returns the pipeline's result store.
func (p *Pipeline) Results() ResultStore {
	return p.results
}

// RunAll runs every enabled prompt against transcript. Task failures are
// recorded in their slots; RunAll itself does not fail because of them.
func (p *Pipeline) RunAll(ctx context.Context, transcriptID, transcript string) (*Summary, error) {
	if transcriptID == "" {
		return nil, errors.NewInvalidRequest("transcript id is required")
	}
	defs := p.prompts.Enabled()

	// Claim every slot up front: an edit made while a task waits for a
	// worker still wins over that task.
	gens := make([]int64, len(defs))
	claimErrs := make([]error, len(defs))
	for i, def := range defs {
		gens[i], claimErrs[i] = p.results.Claim(ctx, transcriptID, def.Name)
	}

	outcomes := make([]Outcome, len(defs))
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, def := range defs {
		if claimErrs[i] != nil {
			p.logger.Error("claim result slot failed", zap.String("prompt", def.Name), zap.Error(claimErrs[i]))
			outcomes[i] = Outcome{Prompt: def.Name, Text: prompt.ErrorText(claimErrs[i]), IsError: true}
			continue
		}
		g.Go(func() error {
			outcomes[i] = p.execute(ctx, transcriptID, def, transcript, gens[i])
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{TranscriptID: transcriptID, Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case !o.Committed && !o.IsError:
			summary.Superseded++
		case o.IsError:
			summary.Failed++
		default:
			summary.Succeeded++
		}
	}

	p.logger.Info("prompt run complete",
		zap.String("transcript_id", transcriptID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("superseded", summary.Superseded))

	return summary, nil
}

// RunOne re-runs a single prompt, overwriting only its slot (including a
// user edit). Disabled prompts may be run explicitly.
func (p *Pipeline) RunOne(ctx context.Context, transcriptID, name, transcript string) (*Outcome, error) {
	if transcriptID == "" {
		return nil, errors.NewInvalidRequest("transcript id is required")
	}
	def, err := p.prompts.Get(name)
	if err != nil {
		return nil, err
	}

	gen, err := p.results.Claim(ctx, transcriptID, def.Name)
	if err != nil {
		return nil, err
	}
	out := p.execute(ctx, transcriptID, def, transcript, gen)
	return &out, nil
}

// Edit stores user text in a slot. The slot then belongs to the user until
// the next explicit run of that prompt.
func (p *Pipeline) Edit(ctx context.Context, transcriptID, name, text string) (*prompt.Result, error) {
	if transcriptID == "" {
		return nil, errors.NewInvalidRequest("transcript id is required")
	}

	// Results of a prompt that was since removed stay editable.
	if def, err := p.prompts.Get(name); err == nil {
		name = def.Name
	} else if existing, getErr := p.results.Get(ctx, transcriptID, name); getErr == nil {
		name = existing.Prompt
	} else {
		return nil, err
	}

	res, err := p.results.Edit(ctx, transcriptID, name, text)
	if err != nil {
		return nil, err
	}

	p.events.Publish(events.Event{
		Kind:         events.KindPromptResult,
		TranscriptID: transcriptID,
		Prompt:       name,
		Text:         text,
		State:        string(prompt.OwnerUser),
	})
	return res, nil
}

// List returns the result slots of a transcript.
func (p *Pipeline) List(ctx context.Context, transcriptID string) ([]prompt.Result, error) {
	return p.results.List(ctx, transcriptID)
}

func (p *Pipeline) execute(ctx context.Context, transcriptID string, def prompt.Definition, transcript string, gen int64) Outcome {
	log := p.logger.With(zap.String("transcript_id", transcriptID), zap.String("prompt", def.Name))
	start := time.Now()

	text, err := p.complete(ctx, def, transcript)
	isError := err != nil
	if isError {
		pErr := errors.NewPromptExecution(def.Name, err)
		text = prompt.ErrorText(err)
		log.Warn("prompt failed", zap.Error(err))
		p.events.Publish(events.Event{
			Kind:         events.KindError,
			TranscriptID: transcriptID,
			Prompt:       def.Name,
			Err:          pErr.Message,
			Code:         string(pErr.Code),
		})
	}

	out := Outcome{
		Prompt:     def.Name,
		Text:       text,
		IsError:    isError,
		Generation: gen,
		DurationMS: time.Since(start).Milliseconds(),
	}

	// Commit with a fresh context: a cancelled run still releases its slot.
	committed, err := p.results.Commit(context.WithoutCancel(ctx), transcriptID, def.Name, gen, text, isError)
	if err != nil {
		log.Error("commit result failed", zap.Error(err))
		out.IsError = true
		out.Text = prompt.ErrorText(err)
		return out
	}
	out.Committed = committed
	if !committed {
		log.Info("result superseded by a newer edit or run", zap.Int64("generation", gen))
		return out
	}

	p.events.Publish(events.Event{
		Kind:         events.KindPromptResult,
		TranscriptID: transcriptID,
		Prompt:       def.Name,
		Text:         text,
		State:        string(prompt.OwnerPipeline),
	})
	return out
}

// complete renders and runs one prompt, turning a panic in the model
// adapter into an error confined to this task.
func (p *Pipeline) complete(ctx context.Context, def prompt.Definition, transcript string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	completion, err := p.completions.TextCompletion()
	if err != nil {
		return "", err
	}
	return completion.Complete(ctx, prompt.Render(def.Template, transcript), p.opts.MaxTokens)
}
