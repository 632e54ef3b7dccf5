// Package mcp exposes scribe's transcripts, prompts and jobs as MCP tools
// served over stdio.
package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/scribe/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"transcript_list": {
		def:     transcriptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTranscriptList },
	},
	"transcript_fetch": {
		def:     transcriptFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTranscriptFetch },
	},
	"transcript_export": {
		def:     transcriptExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTranscriptExport },
	},
	"prompt_list": {
		def:     promptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptList },
	},
	"prompt_run": {
		def:     promptRunToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptRun },
	},
	"prompt_rerun": {
		def:     promptRerunToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptRerun },
	},
	"result_edit": {
		def:     resultEditToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResultEdit },
	},
	"result_list": {
		def:     resultListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResultList },
	},
	"job_list": {
		def:     jobListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobList },
	},
	"job_resume": {
		def:     jobResumeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJobResume },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with scribe tools registered.
// Tools listed in svc.Config.DisabledTools are excluded from registration.
func NewServer(svc *ops.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"scribe",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(svc)

	disabled := make(map[string]bool)
	if svc.Config != nil {
		for _, name := range svc.Config.DisabledTools {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(svc *ops.Service, version string) error {
	return server.ServeStdio(NewServer(svc, version))
}
