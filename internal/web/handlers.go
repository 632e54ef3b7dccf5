package web

import (
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	svc      *ops.Service
	renderer *Renderer
	logger   *zap.Logger
}

// notices are the banners a redirect may ask the detail page to show.
var notices = map[string]string{
	"edited": "Result saved. It will be kept until this prompt is run again.",
	"rerun":  "Prompt re-run.",
	"ran":    "All enabled prompts ran.",
}

// HandleList handles GET /transcripts: list transcripts, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListTranscripts(r.Context(), ops.ListTranscriptsInput{
		Limit:  parseIntParam(r, "limit", 20),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData:   h.renderer.page("Transcripts", "transcripts"),
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleDetail handles GET /transcripts/{id}: the decrypted transcript and its results.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("transcript ID is required"))
		return
	}

	out, err := h.svc.FetchTranscript(r.Context(), ops.FetchTranscriptInput{ID: id, IncludeResults: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}

	data := DetailPageData{
		PageData:   h.renderer.page(out.ID, "transcripts"),
		Transcript: out,
		Results:    resultViews(out.Results),
		Prompts:    h.svc.ListPrompts().Items,
	}
	data.Flash = notices[r.URL.Query().Get("notice")]
	h.renderer.renderPage(w, "detail", data)
}

// HandleRunAll handles POST /transcripts/{id}/run: run every enabled prompt.
func (h *Handlers) HandleRunAll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	summary, err := h.svc.RunPrompts(r.Context(), id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.logger.Info("prompts run from ui", zap.String("transcript_id", id), zap.String("summary", summaryFlash(summary)))

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, summary)
		return
	}
	redirectToDetail(w, r, id, "ran")
}

// HandleRerun handles POST /transcripts/{id}/rerun: run one prompt again.
func (h *Handlers) HandleRerun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	id := r.PathValue("id")

	outcome, err := h.svc.RerunPrompt(r.Context(), ops.RerunPromptInput{
		TranscriptID: id,
		Prompt:       r.FormValue("prompt"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, outcome)
		return
	}
	redirectToDetail(w, r, id, "rerun")
}

// HandleEdit handles POST /transcripts/{id}/edit: replace a result with user text.
func (h *Handlers) HandleEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	id := r.PathValue("id")

	result, err := h.svc.EditResult(r.Context(), ops.EditResultInput{
		TranscriptID: id,
		Prompt:       r.FormValue("prompt"),
		Text:         r.FormValue("text"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	redirectToDetail(w, r, id, "edited")
}

// HandleJobs handles GET /jobs: list jobs, optionally filtered by state.
func (h *Handlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")

	result, err := h.svc.ListJobs(r.Context(), ops.ListJobsInput{
		State:  state,
		Limit:  parseIntParam(r, "limit", 20),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "jobs", JobsPageData{
		PageData:   h.renderer.page("Jobs", "jobs"),
		Items:      result.Items,
		Pagination: result.Pagination,
		State:      state,
	})
}

// redirectToDetail sends the browser back to the detail page after a POST.
func redirectToDetail(w http.ResponseWriter, r *http.Request, id, notice string) {
	target := "/transcripts/" + url.PathEscape(id) + "?notice=" + url.QueryEscape(notice)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
