package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scribe/internal/audio"
	"github.com/hpungsan/scribe/internal/checkpoint"
	"github.com/hpungsan/scribe/internal/config"
	"github.com/hpungsan/scribe/internal/db"
	"github.com/hpungsan/scribe/internal/engine"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/job"
	"github.com/hpungsan/scribe/internal/models"
	"github.com/hpungsan/scribe/internal/pipeline"
	"github.com/hpungsan/scribe/internal/prompt"
	"github.com/hpungsan/scribe/internal/transcript"
	"github.com/hpungsan/scribe/internal/vault"
)

const testRate = 10

// newTestService wires every store against a temp base directory. Chunks are
// one second of 10 samples and every chunk transcribes to "words".
func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	base := t.TempDir()

	database, err := db.Init(base)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.ChunkDurationSeconds = 1
	cfg.ModelSampleRate = testRate
	cfg.CaptureSampleRate = testRate

	audioDir := filepath.Join(base, db.AudioDir)
	cps, err := checkpoint.New(audioDir)
	require.NoError(t, err)

	stt := models.TranscribeFunc(func(context.Context, []float32, int) (string, error) {
		return "words", nil
	})
	eng, err := engine.New(engine.Options{ChunkDurationSeconds: 1, ModelSampleRate: testRate}, cps, stt, nil, nil)
	require.NoError(t, err)

	cipher, err := vault.NewCipher(vault.NewKeyProvider(filepath.Join(base, "key.key")))
	require.NoError(t, err)
	ts, err := transcript.NewStore(filepath.Join(base, db.TranscriptsDir), cipher, db.NewTranscriptIndex(database))
	require.NoError(t, err)

	reg, err := prompt.Open(filepath.Join(base, "prompts.json"), cfg.PromptMaxChars)
	require.NoError(t, err)

	completion := models.CompleteFunc(func(_ context.Context, rendered string, _ int) (string, error) {
		return "extract of " + strings.Fields(rendered)[0], nil
	})
	pipe := pipeline.New(pipeline.Options{Workers: 2}, reg, models.NewStaticProvider(stt, completion), db.NewResultStore(database), nil, nil)

	orch, err := job.New(job.Config{AudioDir: audioDir, CaptureSampleRate: testRate}, db.NewJobStore(database), eng, ts, pipe, nil, nil)
	require.NoError(t, err)

	return &Service{
		Config:      cfg,
		Transcripts: ts,
		Prompts:     reg,
		Pipeline:    pipe,
		Jobs:        orch,
		Checkpoints: cps,
		ExportsDir:  filepath.Join(base, "exports"),
	}, base
}

func writeWAV(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "visit.wav")
	require.NoError(t, audio.WriteWAVFile(path, make([]int16, n), testRate))
	return path
}

// TestFullWorkflow exercises the complete session lifecycle:
// transcribe → list → fetch → edit → rerun → add prompt → run → export
func TestFullWorkflow(t *testing.T) {
	svc, base := newTestService(t)
	ctx := context.Background()

	// 1. Transcribe an imported recording (25 samples → 3 chunks)
	out, err := svc.Transcribe(ctx, writeWAV(t, base, 25))
	require.NoError(t, err)
	require.Equal(t, job.StatePromptsComplete, out.Job.State)
	tid := out.Job.TranscriptID
	require.NotEmpty(t, tid)

	// 2. List transcripts
	listOut, err := svc.ListTranscripts(ctx, ListTranscriptsInput{})
	require.NoError(t, err)
	require.Len(t, listOut.Items, 1)
	require.Equal(t, tid, listOut.Items[0].ID)

	// 3. Fetch with results
	fetchOut, err := svc.FetchTranscript(ctx, FetchTranscriptInput{ID: tid, IncludeResults: true})
	require.NoError(t, err)
	require.Equal(t, "words words words ", fetchOut.Text)
	require.Len(t, fetchOut.Results, 3)

	// 4. Edit the summary
	edited, err := svc.EditResult(ctx, EditResultInput{TranscriptID: tid, Prompt: "summary", Text: "my summary"})
	require.NoError(t, err)
	require.True(t, edited.IsUserEdited)

	// 5. Re-running another prompt leaves the edit alone
	_, err = svc.RerunPrompt(ctx, RerunPromptInput{TranscriptID: tid, Prompt: "Medications"})
	require.NoError(t, err)
	results, err := svc.ListResults(ctx, tid)
	require.NoError(t, err)
	for _, r := range results.Items {
		if r.Prompt == "Summary" {
			require.Equal(t, "my summary", r.Text)
		}
	}

	// 6. Re-running the edited prompt overwrites the edit
	rerun, err := svc.RerunPrompt(ctx, RerunPromptInput{TranscriptID: tid, Prompt: "Summary"})
	require.NoError(t, err)
	require.True(t, rerun.Committed)
	require.Equal(t, "extract of Summarize", rerun.Text)

	// 7. Enable the disabled default and run all prompts again
	enabled := true
	_, err = svc.UpdatePrompt(UpdatePromptInput{Name: "follow-up plan", Enabled: &enabled})
	require.NoError(t, err)
	summary, err := svc.RunPrompts(ctx, tid)
	require.NoError(t, err)
	require.Equal(t, 4, summary.Succeeded)

	// 8. Jobs list and resume of a finished job
	jobsOut, err := svc.ListJobs(ctx, ListJobsInput{})
	require.NoError(t, err)
	require.Len(t, jobsOut.Items, 1)
	_, err = svc.ResumeJob(ctx, out.Job.ID)
	require.True(t, errors.Is(err, errors.ErrConflict), "ResumeJob error = %v, want CONFLICT", err)

	// 9. Export
	exportOut, err := svc.Export(ctx, ExportInput{TranscriptID: tid, IncludeResults: true})
	require.NoError(t, err)
	data, err := os.ReadFile(exportOut.Path)
	require.NoError(t, err)
	require.Contains(t, string(data), "words words words")
	require.Contains(t, string(data), "## Follow-up Plan")
	require.Equal(t, 4, exportOut.Results)
}

func TestFetchTranscript_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.FetchTranscript(context.Background(), FetchTranscriptInput{ID: "01MISSING"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("FetchTranscript error = %v, want NOT_FOUND", err)
	}
}

func TestFetchTranscript_Tampered(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Transcripts.Save(ctx, "session_x", "private words")
	require.NoError(t, err)

	path := filepath.Join(svc.Transcripts.Dir(), rec.FileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = svc.FetchTranscript(ctx, FetchTranscriptInput{ID: rec.ID})
	if !errors.Is(err, errors.ErrDecryption) {
		t.Errorf("FetchTranscript error = %v, want DECRYPTION", err)
	}
}

func TestFetchTranscript_ExcludeText(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Transcripts.Save(ctx, "session_x", "héllo")
	require.NoError(t, err)

	noText := false
	out, err := svc.FetchTranscript(ctx, FetchTranscriptInput{ID: rec.ID, IncludeText: &noText})
	require.NoError(t, err)
	if out.Text != "" {
		t.Errorf("Text = %q, want empty", out.Text)
	}
	if out.Chars != 5 {
		t.Errorf("Chars = %d, want 5", out.Chars)
	}
}

func TestPromptOps(t *testing.T) {
	svc, _ := newTestService(t)

	listOut := svc.ListPrompts()
	require.Len(t, listOut.Items, 4)

	def, err := svc.AddPrompt(AddPromptInput{Name: "  Allergies ", Template: "List allergies: {transcript}"})
	require.NoError(t, err)
	require.Equal(t, "Allergies", def.Name)
	require.True(t, def.Enabled)

	_, err = svc.AddPrompt(AddPromptInput{Name: "allergies", Template: "again"})
	require.True(t, errors.Is(err, errors.ErrNameAlreadyExists), "AddPrompt error = %v", err)

	_, err = svc.AddPrompt(AddPromptInput{Name: "", Template: "x"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = svc.UpdatePrompt(UpdatePromptInput{Name: "Allergies"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "UpdatePrompt with no fields should fail")

	removed, err := svc.RemovePrompt("allergies")
	require.NoError(t, err)
	require.True(t, removed.Removed)

	_, err = svc.RemovePrompt("allergies")
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestRerunPrompt_UnknownPrompt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Transcripts.Save(ctx, "session_x", "hello")
	require.NoError(t, err)

	_, err = svc.RerunPrompt(ctx, RerunPromptInput{TranscriptID: rec.ID, Prompt: "Nope"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("RerunPrompt error = %v, want NOT_FOUND", err)
	}
}

func TestListJobs_InvalidState(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ListJobs(context.Background(), ListJobsInput{State: "sleeping"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ListJobs error = %v, want INVALID_REQUEST", err)
	}
}

func TestRecord(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := svc.Record(context.Background(), RecordInput{Device: audio.NewSliceDevice(make([]int16, 15), 4)})
	require.NoError(t, err)
	require.Equal(t, job.StatePromptsComplete, out.Job.State)
	require.Equal(t, 15, out.Job.TotalSamples)
}

func TestSweep(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.Checkpoints.Put("session_old", 0, "partial "))
	time.Sleep(20 * time.Millisecond)

	out, err := svc.Sweep(SweepInput{OlderThan: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, []string{"session_old"}, out.Removed)

	out, err = svc.Sweep(SweepInput{})
	require.NoError(t, err)
	require.Empty(t, out.Removed)
	require.Equal(t, "No checkpoints older than 30d", out.Message)
}

func TestExport_RejectsOutsidePath(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Export(context.Background(), ExportInput{TranscriptID: "x", Path: filepath.Join(t.TempDir(), "a.md")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Export error = %v, want INVALID_REQUEST", err)
	}
}
