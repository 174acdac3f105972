package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/refract/internal/refactorerr"
)

// createJSONResponse marshals data into a single text content block.
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

// createErrorResponse reports a tool failure inside the result with
// IsError set, so the caller sees the error rather than a protocol fault.
// Structured refactoring errors keep their kind, suggestions and
// candidate list on the wire.
func createErrorResponse(operation string, err error) (*mcp.CallToolResult, error) {
	errorData := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"operation": operation,
	}
	if re, ok := refactorerr.As(err); ok {
		errorData["error_kind"] = string(re.Kind)
		errorData["suggestions"] = re.Suggestions
		if len(re.Candidates) > 0 {
			errorData["candidates"] = re.Candidates
		}
	}

	response, marshalErr := createJSONResponse(errorData)
	if marshalErr != nil {
		return nil, marshalErr
	}
	response.IsError = true
	return response, nil
}
