package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imgprompt/imgprompt/internal/errors"
)

// decode binds MCP request arguments into a typed struct. Missing
// arguments leave the zero value.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	if req.GetArguments() == nil {
		return result, nil
	}
	if err := req.BindArguments(&result); err != nil {
		return result, errors.NewInvalidRequest("invalid arguments: " + err.Error())
	}
	return result, nil
}
