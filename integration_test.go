package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/stepbox/config"
	"github.com/isdmx/stepbox/logger"
	"github.com/isdmx/stepbox/mcpserver"
	"github.com/isdmx/stepbox/sandbox"
)

func integrationConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Transport: "stdio",
			HTTPPort:  8080,
		},
		Logging: config.LoggingConfig{
			Mode:  "development",
			Level: "debug",
		},
		Security: config.SecurityConfig{
			Denylist: []string{"os", "sys", "subprocess", "socket"},
		},
		Runtime: config.RuntimeConfig{
			JSDeadlineMs:      3000,
			PythonBin:         "python3",
			PipBin:            "pip3",
			InstallTimeoutSec: 10,
			DefaultTimeoutMs:  10000,
		},
	}
}

func sandboxConfig(cfg *config.Config) *sandbox.Config {
	return &sandbox.Config{
		Denylist:         cfg.Security.Denylist,
		Allowlist:        cfg.Security.Allowlist,
		JSDeadline:       cfg.GetJSDeadline(),
		PythonBin:        cfg.Runtime.PythonBin,
		PipBin:           cfg.Runtime.PipBin,
		InstallTimeout:   cfg.GetInstallTimeout(),
		DefaultTimeoutMs: cfg.Runtime.DefaultTimeoutMs,
		RemoteEndpoint:   cfg.Remote.Endpoint,
	}
}

// TestIntegrationConfigLoggerDispatcher tests the wiring between the
// config, logger, and sandbox packages
func TestIntegrationConfigLoggerDispatcher(t *testing.T) {
	t.Run("ConfigAndLoggerIntegration", func(t *testing.T) {
		cfg := integrationConfig()

		testLogger, err := logger.NewFromConfig(cfg)
		require.NoError(t, err)
		require.NotNil(t, testLogger)

		testLogger.Info("integration test started")
		_ = testLogger.Sync()
	})

	t.Run("DispatcherFromConfig", func(t *testing.T) {
		cfg := integrationConfig()
		dispatcher := sandbox.NewDispatcher(zaptest.NewLogger(t), sandboxConfig(cfg), nil)
		require.NotNil(t, dispatcher)

		outcome := dispatcher.Execute(context.Background(), sandbox.ExecuteRequest{
			Language: sandbox.LanguageJavaScript,
			Code:     "return {sum: input.a + input.b};",
			Input:    map[string]any{"a": 10, "b": 20},
		})
		require.True(t, outcome.Success)

		result, ok := outcome.Output["output"].(map[string]any)
		require.True(t, ok)
		assert.EqualValues(t, 30, result["sum"])
	})

	t.Run("SecurityGateEndToEnd", func(t *testing.T) {
		cfg := integrationConfig()
		dispatcher := sandbox.NewDispatcher(zaptest.NewLogger(t), sandboxConfig(cfg), nil)

		outcome := dispatcher.Execute(context.Background(), sandbox.ExecuteRequest{
			Language: sandbox.LanguagePython,
			Code:     "import socket",
		})
		require.False(t, outcome.Success)
		assert.Equal(t, sandbox.ErrSecurityViolation, outcome.Error.Kind)
	})

	t.Run("MCPServerFromDispatcher", func(t *testing.T) {
		cfg := integrationConfig()
		testLogger := zaptest.NewLogger(t)
		dispatcher := sandbox.NewDispatcher(testLogger, sandboxConfig(cfg), nil)

		server, err := mcpserver.New(cfg, testLogger, dispatcher)
		require.NoError(t, err)
		require.NotNil(t, server)
		assert.NotNil(t, server.GetMCPServer())
	})
}
