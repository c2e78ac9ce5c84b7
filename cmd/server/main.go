// Package main is the entry point for the stepbox MCP server.
package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/stepbox/config"
	"github.com/isdmx/stepbox/logger"
	"github.com/isdmx/stepbox/mcpserver"
	"github.com/isdmx/stepbox/sandbox"
)

// newSandboxConfig maps the application configuration onto the sandbox's
// own configuration type.
func newSandboxConfig(cfg *config.Config) *sandbox.Config {
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

func newMetrics() *sandbox.Metrics {
	return sandbox.NewMetrics(prometheus.DefaultRegisterer)
}

func newExecutor(log *zap.Logger, cfg *sandbox.Config, metrics *sandbox.Metrics) sandbox.StepExecutor {
	return sandbox.NewDispatcher(log, cfg, metrics)
}

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox dispatcher with metrics
			newSandboxConfig,
			newMetrics,
			newExecutor,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, log *zap.Logger) {
				if cfg.Server.MetricsPort <= 0 {
					return
				}
				go func() {
					addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
					log.Info("serving prometheus metrics", zap.String("addr", addr))
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(addr, mux); err != nil {
						log.Error("metrics server stopped", zap.Error(err))
					}
				}()
			},
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
