package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/stepbox/config"
	"github.com/isdmx/stepbox/sandbox"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  sandbox.StepExecutor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor sandbox.StepExecutor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("server.metrics_port", s.config.Server.MetricsPort),
		zap.Strings("security.denylist", s.config.Security.Denylist),
		zap.Strings("security.allowlist", s.config.Security.Allowlist),
		zap.Int("runtime.js_deadline_ms", s.config.Runtime.JSDeadlineMs),
		zap.String("runtime.python_bin", s.config.Runtime.PythonBin),
		zap.String("runtime.pip_bin", s.config.Runtime.PipBin),
		zap.Int("runtime.default_timeout_ms", s.config.Runtime.DefaultTimeoutMs),
		zap.String("remote.endpoint", s.config.Remote.Endpoint),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("stepbox-executor", "A sandboxed code-step execution server")

	// Register the execute_code_step tool
	s.registerExecuteCodeStepTool()

	return s, nil
}

// registerExecuteCodeStepTool registers the execute_code_step tool
func (s *MCPServer) registerExecuteCodeStepTool() {
	tool := mcp.Tool{
		Name:        "execute_code_step",
		Description: "Execute an untrusted code snippet as a single workflow step",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "User-provided source code",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        []string{"javascript", "python"},
				},
				"input": map[string]any{
					"type":        "object",
					"description": "Input payload exposed to the code as 'input' (optional)",
				},
				"packages": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Third-party packages to install before execution (optional)",
				},
				"timeout_ms": map[string]any{
					"type":        "number",
					"description": "Execution timeout in milliseconds (optional)",
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCodeStep)
}

// handleExecuteCodeStep handles the execute_code_step tool
func (s *MCPServer) handleExecuteCodeStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	args := request.GetArguments()

	var input map[string]any
	if raw, ok := args["input"].(map[string]any); ok {
		input = raw
	}

	var packages []string
	if raw, ok := args["packages"].([]any); ok {
		for _, item := range raw {
			if pkg, ok := item.(string); ok {
				packages = append(packages, pkg)
			}
		}
	}

	timeoutMs := request.GetInt("timeout_ms", 0)

	s.logger.Info("executing code step",
		zap.String("language", language),
		zap.Int("timeout_ms", timeoutMs),
		zap.Int("packages", len(packages)))

	outcome := s.executor.Execute(ctx, sandbox.ExecuteRequest{
		Language:  sandbox.Language(language),
		Code:      code,
		Input:     input,
		Packages:  packages,
		TimeoutMs: timeoutMs,
	})

	if outcome.Success {
		s.logger.Info("code step completed", zap.String("language", language))
	} else {
		s.logger.Info("code step failed",
			zap.String("language", language),
			zap.String("error_kind", string(outcome.Error.Kind)),
			zap.String("error_message", outcome.Error.Message))
	}

	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		// A step result that cannot be serialized still yields a typed outcome.
		outcomeJSON, _ = json.Marshal(sandbox.Outcome{
			Success: false,
			Error: &sandbox.StepError{
				Kind:    sandbox.ErrRuntimeFault,
				Message: fmt.Sprintf("result not serializable: %v", err),
			},
		})
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(outcomeJSON),
			},
		},
		IsError: !outcome.Success,
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
