package mcp

import "github.com/mark3labs/mcp-go/mcp"

const pageArgDescription = `Page holding the entry: "live" or an archive date YYYYMMDD. Omit to search live first, then archives newest first.`

var pagesToolDef = mcp.NewTool(
	"history_pages",
	mcp.WithDescription("List history pages: the live page first, then archive pages newest first, with entry counts."),
)

var listToolDef = mcp.NewTool(
	"history_list",
	mcp.WithDescription("List the entries of one history page, in stored order (oldest first)."),
	mcp.WithString("page",
		mcp.Description(`Page to list: "live" (default) or an archive date YYYYMMDD.`),
	),
)

var getToolDef = mcp.NewTool(
	"history_get",
	mcp.WithDescription("Fetch one history entry by id."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Entry id, YYYYMMDD_HHMMSS_NNNN."),
	),
	mcp.WithString("page",
		mcp.Description(pageArgDescription),
	),
)

var overwriteToolDef = mcp.NewTool(
	"history_overwrite",
	mcp.WithDescription("Replace the prompt text of a history entry. The id, timestamp and image are kept."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Entry id, YYYYMMDD_HHMMSS_NNNN."),
	),
	mcp.WithString("prompt",
		mcp.Required(),
		mcp.Description("New prompt text. Must not be blank."),
	),
	mcp.WithString("page",
		mcp.Description(pageArgDescription),
	),
)

var deleteToolDef = mcp.NewTool(
	"history_delete",
	mcp.WithDescription("Delete a history entry and its image. Archive pages are never refilled."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Entry id, YYYYMMDD_HHMMSS_NNNN."),
	),
	mcp.WithString("page",
		mcp.Description(pageArgDescription),
	),
)
