// Package mcp exposes the refactoring engine over the Model Context
// Protocol on stdio. Each tool maps to one engine operation and returns
// the operation's result object as JSON text; operation failures travel
// inside the result with success=false, never as protocol errors.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/engine"
)

const serverVersion = "0.1.0"

// Server wraps the engine behind an MCP stdio server.
type Server struct {
	server *mcp.Server
	engine *engine.Engine
	log    *zap.Logger
}

// NewServer builds the MCP server and registers the refactoring tools.
func NewServer(eng *engine.Engine, log *zap.Logger) *Server {
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "refract",
			Version: serverVersion,
		}, nil),
		engine: eng,
		log:    log,
	}
	s.registerTools()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting", zap.String("version", serverVersion))
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "analyze_symbol",
		Description: "Resolve a symbol by plain or qualified name and report its definition, scope, docstring and every reference location. Ambiguous names fail with the candidate qualified names to retry with.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"symbol_name": {
					Type:        "string",
					Description: "Symbol name, bare ('login') or qualified ('auth.login')",
				},
			},
			Required: []string{"symbol_name"},
		},
	}, s.handleAnalyzeSymbol)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_symbols",
		Description: "Case-insensitive symbol search. Patterns with *, ? or [ are matched as globs against names and qualified names; anything else matches as a substring. Results are capped but total_count is not.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern": {
					Type:        "string",
					Description: "Search pattern, e.g. 'handle*' or 'login'",
				},
			},
			Required: []string{"pattern"},
		},
	}, s.handleFindSymbols)

	s.server.AddTool(&mcp.Tool{
		Name:        "show_function",
		Description: "List the anonymous elements of a function (lambdas, extractable expressions, blocks) with stable IDs like 'auth.login.lambda_1'. Run this before extract_element; the IDs it returns are what extract_element accepts.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"function_name": {
					Type:        "string",
					Description: "Function name, bare or qualified",
				},
			},
			Required: []string{"function_name"},
		},
	}, s.handleShowFunction)

	s.server.AddTool(&mcp.Tool{
		Name:        "rename_symbol",
		Description: "Rename a symbol and every reference to it across the project, imports included. Conflicts with existing bindings abort the rename before any file is touched. A backup is taken first; the result carries its id.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"symbol_name": {
					Type:        "string",
					Description: "Current symbol name, bare or qualified",
				},
				"new_name": {
					Type:        "string",
					Description: "Replacement identifier",
				},
			},
			Required: []string{"symbol_name", "new_name"},
		},
	}, s.handleRenameSymbol)

	s.server.AddTool(&mcp.Tool{
		Name:        "extract_element",
		Description: "Extract an anonymous element (by id from show_function) or a whole function body into a new named function. Free variables become parameters and the original site becomes a call. Element ids go stale when the file changes; re-run show_function to refresh them.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"source": {
					Type:        "string",
					Description: "Element id such as 'auth.login.lambda_1', or a function name for whole-body extraction",
				},
				"new_name": {
					Type:        "string",
					Description: "Name for the extracted function",
				},
			},
			Required: []string{"source", "new_name"},
		},
	}, s.handleExtractElement)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_backups",
		Description: "List stored backups, newest first, with the files each one covers.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleListBackups)

	s.server.AddTool(&mcp.Tool{
		Name:        "restore_backup",
		Description: "Restore every file recorded in a backup to its backed-up content.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"backup_id": {
					Type:        "string",
					Description: "Backup id from list_backups or a mutation result",
				},
			},
			Required: []string{"backup_id"},
		},
	}, s.handleRestoreBackup)

	s.server.AddTool(&mcp.Tool{
		Name:        "capabilities",
		Description: "Report which operations each registered language backend supports.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleCapabilities)
}

func (s *Server) handleAnalyzeSymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		SymbolName string `json:"symbol_name"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("analyze_symbol", fmt.Errorf("invalid parameters: %v", err))
	}
	return createJSONResponse(s.engine.AnalyzeSymbol(ctx, params.SymbolName))
}

func (s *Server) handleFindSymbols(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("find_symbols", fmt.Errorf("invalid parameters: %v", err))
	}
	return createJSONResponse(s.engine.FindSymbols(ctx, params.Pattern))
}

func (s *Server) handleShowFunction(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		FunctionName string `json:"function_name"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("show_function", fmt.Errorf("invalid parameters: %v", err))
	}
	return createJSONResponse(s.engine.ShowFunction(ctx, params.FunctionName))
}

func (s *Server) handleRenameSymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		SymbolName string `json:"symbol_name"`
		NewName    string `json:"new_name"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("rename_symbol", fmt.Errorf("invalid parameters: %v", err))
	}
	return createJSONResponse(s.engine.RenameSymbol(ctx, params.SymbolName, params.NewName))
}

func (s *Server) handleExtractElement(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		Source  string `json:"source"`
		NewName string `json:"new_name"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("extract_element", fmt.Errorf("invalid parameters: %v", err))
	}
	return createJSONResponse(s.engine.ExtractElement(ctx, params.Source, params.NewName))
}

func (s *Server) handleListBackups(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	backups, err := s.engine.ListBackups()
	if err != nil {
		return createErrorResponse("list_backups", err)
	}
	return createJSONResponse(map[string]interface{}{
		"success": true,
		"backups": backups,
	})
}

func (s *Server) handleRestoreBackup(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params struct {
		BackupID string `json:"backup_id"`
	}
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("restore_backup", fmt.Errorf("invalid parameters: %v", err))
	}
	if err := s.engine.RestoreBackup(params.BackupID); err != nil {
		return createErrorResponse("restore_backup", err)
	}
	return createJSONResponse(map[string]interface{}{
		"success":   true,
		"backup_id": params.BackupID,
	})
}

func (s *Server) handleCapabilities(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return createJSONResponse(map[string]interface{}{
		"success":   true,
		"languages": s.engine.Capabilities(),
	})
}
