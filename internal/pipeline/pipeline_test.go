package pipeline

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/events"
	"github.com/hpungsan/scribe/internal/models"
	"github.com/hpungsan/scribe/internal/prompt"
)

type staticPrompts []prompt.Definition

func (s staticPrompts) Enabled() []prompt.Definition {
	var out []prompt.Definition
	for _, d := range s {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

func (s staticPrompts) Get(name string) (prompt.Definition, error) {
	for _, d := range s {
		if prompt.Normalize(d.Name) == prompt.Normalize(name) {
			return d, nil
		}
	}
	return prompt.Definition{}, errors.NewNotFound("prompt", name)
}

// defs builds enabled prompts whose rendered text starts with "<name>|".
func defs(names ...string) staticPrompts {
	out := make(staticPrompts, len(names))
	for i, n := range names {
		out[i] = prompt.Definition{Name: n, Template: n + "|" + prompt.Placeholder, Enabled: true}
	}
	return out
}

func promptName(rendered string) string {
	name, _, _ := strings.Cut(rendered, "|")
	return name
}

// echo answers "<name>: <transcript>" and fails for names in failing.
func echo(failing map[string]error) models.CompleteFunc {
	return func(_ context.Context, rendered string, _ int) (string, error) {
		name, transcript, _ := strings.Cut(rendered, "|")
		if err := failing[name]; err != nil {
			return "", err
		}
		return name + ": " + transcript, nil
	}
}

func newPipeline(p Prompts, c models.TextCompletion, workers int) (*Pipeline, *MemoryResults) {
	results := NewMemoryResults()
	return New(Options{Workers: workers}, p, models.NewStaticProvider(nil, c), results, nil, nil), results
}

func TestRunAll_FailureIsolated(t *testing.T) {
	p, results := newPipeline(defs("A", "B", "C"), echo(map[string]error{"B": stderrors.New("rate limited")}), 4)
	ctx := context.Background()

	summary, err := p.RunAll(ctx, "t1", "hello")
	require.NoError(t, err)

	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 2 succeeded and 1 failed", summary)
	}

	a, err := results.Get(ctx, "t1", "A")
	require.NoError(t, err)
	if a.Text != "A: hello" || a.IsError {
		t.Errorf("A = %+v, want successful text", a)
	}

	b, err := results.Get(ctx, "t1", "B")
	require.NoError(t, err)
	if b.Text != "Error: rate limited" {
		t.Errorf("B.Text = %q, want %q", b.Text, "Error: rate limited")
	}
	if !b.IsError || b.Running {
		t.Errorf("B = %+v, want is_error and not running", b)
	}

	c, err := results.Get(ctx, "t1", "C")
	require.NoError(t, err)
	if c.Text != "C: hello" {
		t.Errorf("C.Text = %q, want %q", c.Text, "C: hello")
	}
}

func TestRunAll_SkipsDisabled(t *testing.T) {
	ps := defs("A", "B")
	ps[1].Enabled = false
	p, results := newPipeline(ps, echo(nil), 2)
	ctx := context.Background()

	summary, err := p.RunAll(ctx, "t1", "x")
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)

	list, err := results.List(ctx, "t1")
	require.NoError(t, err)
	if len(list) != 1 || list[0].Prompt != "A" {
		t.Errorf("List() = %+v, want only A", list)
	}
}

func TestRunAll_PanicConfinedToTask(t *testing.T) {
	completion := models.CompleteFunc(func(_ context.Context, rendered string, _ int) (string, error) {
		if promptName(rendered) == "boom" {
			panic("adapter bug")
		}
		return "ok", nil
	})
	p, results := newPipeline(defs("boom", "fine"), completion, 2)
	ctx := context.Background()

	summary, err := p.RunAll(ctx, "t1", "x")
	require.NoError(t, err)
	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 failed and 1 succeeded", summary)
	}

	r, err := results.Get(ctx, "t1", "boom")
	require.NoError(t, err)
	if !strings.HasPrefix(r.Text, "Error: panic") {
		t.Errorf("boom.Text = %q, want panic error text", r.Text)
	}
}

func TestRunAll_ModelUnavailable(t *testing.T) {
	p, results := newPipeline(defs("A", "B"), nil, 2)
	ctx := context.Background()

	summary, err := p.RunAll(ctx, "t1", "x")
	require.NoError(t, err)
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, want 2", summary.Failed)
	}

	r, err := results.Get(ctx, "t1", "A")
	require.NoError(t, err)
	if !strings.Contains(r.Text, "MODEL_UNAVAILABLE") {
		t.Errorf("A.Text = %q, want MODEL_UNAVAILABLE", r.Text)
	}
}

func TestRunAll_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	completion := models.CompleteFunc(func(context.Context, string, int) (string, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	})

	p, _ := newPipeline(defs("a", "b", "c", "d", "e", "f"), completion, 2)
	summary, err := p.RunAll(context.Background(), "t1", "x")
	require.NoError(t, err)

	if summary.Succeeded != 6 {
		t.Errorf("Succeeded = %d, want 6", summary.Succeeded)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestRunAll_RequiresTranscriptID(t *testing.T) {
	p, _ := newPipeline(defs("A"), echo(nil), 1)
	_, err := p.RunAll(context.Background(), "", "x")
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("RunAll(\"\") error = %v, want INVALID_REQUEST", err)
	}
}

func TestEditThenRerunOverwrites(t *testing.T) {
	p, results := newPipeline(defs("A"), echo(nil), 1)
	ctx := context.Background()

	_, err := p.RunAll(ctx, "t1", "first")
	require.NoError(t, err)

	edited, err := p.Edit(ctx, "t1", "A", "my notes")
	require.NoError(t, err)
	if !edited.IsUserEdited || edited.Owner != prompt.OwnerUser {
		t.Errorf("edited = %+v, want user-owned edit", edited)
	}

	out, err := p.RunOne(ctx, "t1", "A", "second")
	require.NoError(t, err)
	if !out.Committed {
		t.Error("RunOne Committed = false, want true")
	}

	r, err := results.Get(ctx, "t1", "A")
	require.NoError(t, err)
	if r.Text != "A: second" {
		t.Errorf("Text = %q, want %q", r.Text, "A: second")
	}
	if r.IsUserEdited {
		t.Error("IsUserEdited = true after explicit re-run, want false")
	}
}

func TestEditSurvivesOtherPromptRuns(t *testing.T) {
	p, results := newPipeline(defs("A", "B"), echo(nil), 2)
	ctx := context.Background()

	_, err := p.RunAll(ctx, "t1", "x")
	require.NoError(t, err)
	_, err = p.Edit(ctx, "t1", "A", "kept")
	require.NoError(t, err)

	_, err = p.RunOne(ctx, "t1", "B", "y")
	require.NoError(t, err)

	a, err := results.Get(ctx, "t1", "A")
	require.NoError(t, err)
	if a.Text != "kept" || !a.IsUserEdited {
		t.Errorf("A = %+v, want edit preserved", a)
	}
}

func TestStaleRunDoesNotClobberEdit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	completion := models.CompleteFunc(func(context.Context, string, int) (string, error) {
		close(started)
		<-release
		return "late model output", nil
	})

	p, results := newPipeline(defs("A"), completion, 1)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		out *Outcome
		err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		out, err = p.RunOne(ctx, "t1", "A", "x")
	}()

	<-started
	_, editErr := p.Edit(ctx, "t1", "A", "doctor's correction")
	require.NoError(t, editErr)
	close(release)
	wg.Wait()

	require.NoError(t, err)
	if out.Committed {
		t.Error("Committed = true, want false for a run that lost to an edit")
	}

	r, getErr := results.Get(ctx, "t1", "A")
	require.NoError(t, getErr)
	if r.Text != "doctor's correction" {
		t.Errorf("Text = %q, want the user edit", r.Text)
	}
	if r.Running {
		t.Error("Running = true, want false")
	}
}

func TestRunOne_UnknownPrompt(t *testing.T) {
	p, _ := newPipeline(defs("A"), echo(nil), 1)
	_, err := p.RunOne(context.Background(), "t1", "Missing", "x")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("RunOne() error = %v, want NOT_FOUND", err)
	}
}

func TestRunOne_DisabledPrompt(t *testing.T) {
	ps := defs("A")
	ps[0].Enabled = false
	p, _ := newPipeline(ps, echo(nil), 1)

	out, err := p.RunOne(context.Background(), "t1", "a", "x")
	require.NoError(t, err)
	if out.Text != "A: x" {
		t.Errorf("Text = %q, want %q", out.Text, "A: x")
	}
}

func TestEdit_UnknownPromptWithoutSlot(t *testing.T) {
	p, _ := newPipeline(defs("A"), echo(nil), 1)
	_, err := p.Edit(context.Background(), "t1", "Missing", "x")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Edit() error = %v, want NOT_FOUND", err)
	}
}

func TestEdit_RemovedPromptWithSlot(t *testing.T) {
	results := NewMemoryResults()
	ctx := context.Background()
	gen, err := results.Claim(ctx, "t1", "Old")
	require.NoError(t, err)
	_, err = results.Commit(ctx, "t1", "Old", gen, "old text", false)
	require.NoError(t, err)

	p := New(Options{}, defs("A"), models.NewStaticProvider(nil, echo(nil)), results, nil, nil)
	r, err := p.Edit(ctx, "t1", "old", "new text")
	require.NoError(t, err)
	if r.Text != "new text" {
		t.Errorf("Text = %q, want %q", r.Text, "new text")
	}
}

func TestRunAll_PublishesEvents(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	results := NewMemoryResults()
	p := New(Options{Workers: 1}, defs("A", "B"), models.NewStaticProvider(nil, echo(map[string]error{"B": stderrors.New("nope")})), results, bus, nil)

	_, err := p.RunAll(context.Background(), "t1", "x")
	require.NoError(t, err)

	kinds := map[events.Kind]int{}
	for i := 0; i < 3; i++ {
		select {
		case e := <-ch:
			kinds[e.Kind]++
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	if kinds[events.KindPromptResult] != 2 || kinds[events.KindError] != 1 {
		t.Errorf("events = %v, want 2 prompt_result and 1 error", kinds)
	}
}
