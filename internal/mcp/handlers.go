package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/history"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store *history.Store
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *history.Store) *Handlers {
	return &Handlers{store: store}
}

// ListRequest represents the arguments for history_list.
type ListRequest struct {
	Page string `json:"page,omitempty"`
}

// EntryRequest represents the arguments for history_get and history_delete.
type EntryRequest struct {
	ID   string `json:"id"`
	Page string `json:"page,omitempty"`
}

// OverwriteRequest represents the arguments for history_overwrite.
type OverwriteRequest struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Page   string `json:"page,omitempty"`
}

// PagesOutput is the history_pages result.
type PagesOutput struct {
	Pages []history.PageInfo `json:"pages"`
}

// ListOutput is the history_list result.
type ListOutput struct {
	Page    history.Page    `json:"page"`
	Entries []history.Entry `json:"entries"`
}

// HandlePages handles the history_pages tool call.
func (h *Handlers) HandlePages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pages, err := h.store.Pages(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(PagesOutput{Pages: pages})
}

// HandleList handles the history_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	page, err := history.ParsePage(input.Page)
	if err != nil {
		return errorResult(err), nil
	}
	if page == history.AnyPage {
		page = history.Live
	}

	entries, err := h.store.List(ctx, page)
	if err != nil {
		return errorResult(err), nil
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return successResult(ListOutput{Page: page, Entries: entries})
}

// HandleGet handles the history_get tool call.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	page, err := history.ParsePage(input.Page)
	if err != nil {
		return errorResult(err), nil
	}

	got, err := h.store.Get(ctx, page, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(got)
}

// HandleOverwrite handles the history_overwrite tool call.
func (h *Handlers) HandleOverwrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[OverwriteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	page, err := history.ParsePage(input.Page)
	if err != nil {
		return errorResult(err), nil
	}

	got, err := h.store.Overwrite(ctx, page, input.ID, input.Prompt)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(got)
}

// HandleDelete handles the history_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EntryRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	page, err := history.ParsePage(input.Page)
	if err != nil {
		return errorResult(err), nil
	}

	got, err := h.store.Delete(ctx, page, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(got)
}

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Store and I/O failures are reported generically: their messages carry
// file paths.
func errorResult(err error) *mcp.CallToolResult {
	hErr := errors.As(err)

	errorObj := map[string]any{
		"code":   hErr.Code,
		"status": hErr.Status,
	}
	if hErr.Public() {
		errorObj["message"] = hErr.Message
		if hErr.Details != nil {
			errorObj["details"] = hErr.Details
		}
	} else {
		errorObj["message"] = "an internal error occurred"
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
