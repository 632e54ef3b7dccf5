package mcp

import "github.com/mark3labs/mcp-go/mcp"

var transcriptListToolDef = mcp.NewTool("transcript_list",
	mcp.WithDescription("List stored transcripts, newest first. Returns metadata only."),
	mcp.WithNumber("limit", mcp.Description("Maximum items to return (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var transcriptFetchToolDef = mcp.NewTool("transcript_fetch",
	mcp.WithDescription("Decrypt and return one transcript, optionally with its prompt results."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Transcript ID")),
	mcp.WithBoolean("include_text", mcp.Description("Include the transcript text (default true)")),
	mcp.WithBoolean("include_results", mcp.Description("Include prompt results")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var transcriptExportToolDef = mcp.NewTool("transcript_export",
	mcp.WithDescription("Write a transcript and its prompt results to a markdown file in the exports directory."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Transcript ID")),
	mcp.WithString("path", mcp.Description("Output file (.md or .txt) inside the exports directory")),
	mcp.WithBoolean("include_results", mcp.Description("Append prompt results")),
)

var promptListToolDef = mcp.NewTool("prompt_list",
	mcp.WithDescription("List configured prompts in execution order."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var promptRunToolDef = mcp.NewTool("prompt_run",
	mcp.WithDescription("Run every enabled prompt against a transcript. Replaces all result slots, including user edits."),
	mcp.WithString("transcript_id", mcp.Required(), mcp.Description("Transcript ID")),
)

var promptRerunToolDef = mcp.NewTool("prompt_rerun",
	mcp.WithDescription("Run one prompt again against a transcript. Only that prompt's result is replaced."),
	mcp.WithString("transcript_id", mcp.Required(), mcp.Description("Transcript ID")),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt name (case-insensitive)")),
)

var resultEditToolDef = mcp.NewTool("result_edit",
	mcp.WithDescription("Replace a prompt result with user text. The edit survives runs of other prompts."),
	mcp.WithString("transcript_id", mcp.Required(), mcp.Description("Transcript ID")),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt name")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Replacement text")),
)

var resultListToolDef = mcp.NewTool("result_list",
	mcp.WithDescription("List the prompt results of a transcript."),
	mcp.WithString("transcript_id", mcp.Required(), mcp.Description("Transcript ID")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var jobListToolDef = mcp.NewTool("job_list",
	mcp.WithDescription("List recording jobs, newest first."),
	mcp.WithString("state", mcp.Description("Filter by state (e.g. failed, prompts_complete)")),
	mcp.WithNumber("limit", mcp.Description("Maximum items to return (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var jobResumeToolDef = mcp.NewTool("job_resume",
	mcp.WithDescription("Resume an interrupted or failed job from its last checkpoint."),
	mcp.WithString("job_id", mcp.Required(), mcp.Description("Job ID (session_YYYYmmdd_HHMMSS, with _N appended when several jobs start in one second)")),
)
