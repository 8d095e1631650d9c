package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// createJSONResponse creates a standardized JSON response for MCP tools
func createJSONResponse(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
	}, nil
}

// createErrorResponse reports a tool failure as a structured payload so
// clients can render it without parsing free text. A request that lost its
// snapshot to an edit gets a cancelled payload instead; clients retry on a
// fresh snapshot.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, context.Canceled) {
		return createJSONResponse(map[string]interface{}{
			"cancelled": true,
			"operation": operation,
		})
	}
	return createJSONResponse(map[string]interface{}{
		"error":     err.Error(),
		"operation": operation,
	})
}
