package mcp

import (
	"net/http"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imgprompt/imgprompt/internal/history"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
// No tool creates entries: new history only comes from copy actions.
var toolRegistry = map[string]toolEntry{
	"history_pages": {
		def:     pagesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePages },
	},
	"history_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"history_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"history_overwrite": {
		def:     overwriteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOverwrite },
	},
	"history_delete": {
		def:     deleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
}

// AllToolNames returns every registered tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewServer creates an MCP server with the history tools registered.
func NewServer(store *history.Store, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"imgprompt",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("Read and edit the image prompt history. Entries are addressed by id and, optionally, by page (\"live\" or an archive date YYYYMMDD)."),
		server.WithRecovery(),
	)

	h := NewHandlers(store)
	for _, entry := range toolRegistry {
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Handler returns the streamable HTTP transport for s, for mounting at /mcp
// on the local history server.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}
