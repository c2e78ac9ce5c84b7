package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/stepbox/config"
	"github.com/isdmx/stepbox/sandbox"
)

// MockStepExecutor implements sandbox.StepExecutor for testing
type MockStepExecutor struct {
	outcome     sandbox.Outcome
	lastRequest sandbox.ExecuteRequest
}

func (m *MockStepExecutor) Execute(_ context.Context, req sandbox.ExecuteRequest) sandbox.Outcome {
	m.lastRequest = req
	return m.outcome
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Logging: config.LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Security: config.SecurityConfig{
			Denylist: []string{"socket"},
		},
		Runtime: config.RuntimeConfig{
			JSDeadlineMs:      3000,
			PythonBin:         "python3",
			PipBin:            "pip3",
			InstallTimeoutSec: 30,
			DefaultTimeoutMs:  30000,
		},
	}
}

func TestNewMCPServer(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	mockExecutor := &MockStepExecutor{}

	server, err := New(cfg, logger, mockExecutor)
	require.NoError(t, err)
	require.NotNil(t, server)
	assert.Equal(t, cfg, server.config)
	assert.Equal(t, logger, server.logger)
	assert.Equal(t, mockExecutor, server.executor)
	assert.NotNil(t, server.GetMCPServer())
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = "execute_code_step"
	req.Params.Arguments = args
	return req
}

func TestHandleExecuteCodeStep(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()

	t.Run("SuccessfulStep", func(t *testing.T) {
		mockExecutor := &MockStepExecutor{
			outcome: sandbox.Outcome{
				Success: true,
				Output:  map[string]any{"output": map[string]any{"sum": 30}},
			},
		}
		server, err := New(cfg, logger, mockExecutor)
		require.NoError(t, err)

		result, err := server.handleExecuteCodeStep(context.Background(), toolRequest(map[string]any{
			"code":       "return input.a + input.b;",
			"language":   "javascript",
			"input":      map[string]any{"a": 10, "b": 20},
			"timeout_ms": 5000,
		}))
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.False(t, result.IsError)

		// The request reaches the executor intact.
		assert.Equal(t, sandbox.LanguageJavaScript, mockExecutor.lastRequest.Language)
		assert.Equal(t, "return input.a + input.b;", mockExecutor.lastRequest.Code)
		assert.Equal(t, 5000, mockExecutor.lastRequest.TimeoutMs)

		text, ok := result.Content[0].(mcp.TextContent)
		require.True(t, ok)

		var outcome sandbox.Outcome
		require.NoError(t, json.Unmarshal([]byte(text.Text), &outcome))
		assert.True(t, outcome.Success)
	})

	t.Run("FailedStepCarriesErrorKind", func(t *testing.T) {
		mockExecutor := &MockStepExecutor{
			outcome: sandbox.Outcome{
				Success: false,
				Error: &sandbox.StepError{
					Kind:    sandbox.ErrSecurityViolation,
					Message: "import of denylisted module \"socket\"",
				},
			},
		}
		server, err := New(cfg, logger, mockExecutor)
		require.NoError(t, err)

		result, err := server.handleExecuteCodeStep(context.Background(), toolRequest(map[string]any{
			"code":     "import socket",
			"language": "python",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)

		text, ok := result.Content[0].(mcp.TextContent)
		require.True(t, ok)

		var outcome sandbox.Outcome
		require.NoError(t, json.Unmarshal([]byte(text.Text), &outcome))
		require.NotNil(t, outcome.Error)
		assert.Equal(t, sandbox.ErrSecurityViolation, outcome.Error.Kind)
	})

	t.Run("PackagesForwarded", func(t *testing.T) {
		mockExecutor := &MockStepExecutor{outcome: sandbox.Outcome{Success: true}}
		server, err := New(cfg, logger, mockExecutor)
		require.NoError(t, err)

		_, err = server.handleExecuteCodeStep(context.Background(), toolRequest(map[string]any{
			"code":     "import numpy",
			"language": "python",
			"packages": []any{"numpy", "pandas"},
		}))
		require.NoError(t, err)
		assert.Equal(t, []string{"numpy", "pandas"}, mockExecutor.lastRequest.Packages)
	})

	t.Run("MissingCodeParameter", func(t *testing.T) {
		mockExecutor := &MockStepExecutor{}
		server, err := New(cfg, logger, mockExecutor)
		require.NoError(t, err)

		_, err = server.handleExecuteCodeStep(context.Background(), toolRequest(map[string]any{
			"language": "python",
		}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code parameter is required")
	})
}
