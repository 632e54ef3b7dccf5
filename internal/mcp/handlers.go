package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Request types for each tool

// TranscriptListRequest represents the arguments for transcript_list.
type TranscriptListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// TranscriptFetchRequest represents the arguments for transcript_fetch.
type TranscriptFetchRequest struct {
	ID             string `json:"id"`
	IncludeText    *bool  `json:"include_text,omitempty"`
	IncludeResults bool   `json:"include_results,omitempty"`
}

// TranscriptExportRequest represents the arguments for transcript_export.
type TranscriptExportRequest struct {
	ID             string `json:"id"`
	Path           string `json:"path,omitempty"`
	IncludeResults bool   `json:"include_results,omitempty"`
}

// PromptRunRequest represents the arguments for prompt_run and result_list.
type PromptRunRequest struct {
	TranscriptID string `json:"transcript_id"`
}

// PromptRerunRequest represents the arguments for prompt_rerun.
type PromptRerunRequest struct {
	TranscriptID string `json:"transcript_id"`
	Prompt       string `json:"prompt"`
}

// ResultEditRequest represents the arguments for result_edit.
type ResultEditRequest struct {
	TranscriptID string `json:"transcript_id"`
	Prompt       string `json:"prompt"`
	Text         string `json:"text"`
}

// JobListRequest represents the arguments for job_list.
type JobListRequest struct {
	State  string `json:"state,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// JobResumeRequest represents the arguments for job_resume.
type JobResumeRequest struct {
	JobID string `json:"job_id"`
}

// Handler implementations

// HandleTranscriptList handles the transcript_list tool call.
func (h *Handlers) HandleTranscriptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TranscriptListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ListTranscripts(ctx, ops.ListTranscriptsInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTranscriptFetch handles the transcript_fetch tool call.
func (h *Handlers) HandleTranscriptFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TranscriptFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.FetchTranscript(ctx, ops.FetchTranscriptInput{
		ID:             input.ID,
		IncludeText:    input.IncludeText,
		IncludeResults: input.IncludeResults,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTranscriptExport handles the transcript_export tool call.
func (h *Handlers) HandleTranscriptExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TranscriptExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.Export(ctx, ops.ExportInput{
		TranscriptID:   input.ID,
		Path:           input.Path,
		IncludeResults: input.IncludeResults,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePromptList handles the prompt_list tool call.
func (h *Handlers) HandlePromptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := decode[struct{}](req); err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return successResult(h.svc.ListPrompts())
}

// HandlePromptRun handles the prompt_run tool call.
func (h *Handlers) HandlePromptRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptRunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.RunPrompts(ctx, input.TranscriptID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePromptRerun handles the prompt_rerun tool call.
func (h *Handlers) HandlePromptRerun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptRerunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.RerunPrompt(ctx, ops.RerunPromptInput{
		TranscriptID: input.TranscriptID,
		Prompt:       input.Prompt,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleResultEdit handles the result_edit tool call.
func (h *Handlers) HandleResultEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ResultEditRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.EditResult(ctx, ops.EditResultInput{
		TranscriptID: input.TranscriptID,
		Prompt:       input.Prompt,
		Text:         input.Text,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleResultList handles the result_list tool call.
func (h *Handlers) HandleResultList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptRunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ListResults(ctx, input.TranscriptID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleJobList handles the job_list tool call.
func (h *Handlers) HandleJobList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JobListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ListJobs(ctx, ops.ListJobsInput{
		State:  input.State,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleJobResume handles the job_resume tool call.
func (h *Handlers) HandleJobResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JobResumeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ResumeJob(ctx, input.JobID)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if sErr, ok := errors.As(err); ok {
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": err.Error(),
			"status":  sErr.Status,
		}
		// Wrapping adds context to the message; the bare ScribeError keeps its own.
		if err == error(sErr) {
			errorObj["message"] = sErr.Message
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
