package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Dispatcher is the single public entry point for code-step execution.
// It holds no mutable state after construction, so arbitrarily many
// Execute calls may run concurrently without coordination.
type Dispatcher struct {
	logger  *zap.Logger
	config  *Config
	policy  PolicySet
	metrics *Metrics
	js      *JavaScriptExecutor
	python  *PythonExecutor
	remote  *RemoteExecutor
}

// NewDispatcher creates a Dispatcher and its executors from the sandbox
// configuration. A remote executor is only wired when an endpoint is
// configured; otherwise Python steps run in a local child process.
func NewDispatcher(logger *zap.Logger, config *Config, metrics *Metrics) *Dispatcher {
	d := &Dispatcher{
		logger:  logger,
		config:  config,
		policy:  NewPolicySet(config.Denylist, config.Allowlist),
		metrics: metrics,
		js:      NewJavaScriptExecutor(logger, config.JSDeadline),
		python:  NewPythonExecutor(logger, config, metrics),
	}
	if config.RemoteEndpoint != "" {
		d.remote = NewRemoteExecutor(logger, config.RemoteEndpoint)
	}
	return d
}

// Execute validates the request, routes it to an executor, and returns
// the normalized Outcome. It never panics outward: any unexpected
// internal failure is caught at this boundary and classified as a
// runtime fault.
func (d *Dispatcher) Execute(ctx context.Context, req ExecuteRequest) (outcome Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic during step execution",
				zap.String("language", string(req.Language)),
				zap.Any("panic", r))
			outcome = failureOutcome(ErrRuntimeFault, fmt.Sprintf("internal error: %v", r))
		}
		d.metrics.ObserveExecution(req.Language, outcome, time.Since(start))
	}()

	if req.Code == "" {
		return failureOutcome(ErrMissingCode, "no code provided for execution")
	}

	input := req.Input
	if input == nil {
		input = map[string]any{}
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = d.config.DefaultTimeoutMs
	}

	switch req.Language {
	case LanguageJavaScript:
		// The interpreter scope is already capability-restricted, so the
		// static gate does not apply here.
		return d.js.Run(req.Code, input)

	case LanguagePython:
		verdict := Validate(req.Code, req.Packages, d.policy)
		if !verdict.Allowed {
			d.logger.Warn("step rejected by security gate",
				zap.String("symbol", verdict.ViolatingSymbol),
				zap.String("reason", verdict.Reason))
			return failureOutcome(ErrSecurityViolation, verdict.Reason)
		}
		if d.remote != nil {
			return d.remote.Run(ctx, req.Code, input, req.Packages, timeoutMs)
		}
		return d.python.Run(ctx, req.Code, input, req.Packages, timeoutMs)

	default:
		return failureOutcome(ErrUnsupportedLanguage,
			fmt.Sprintf("unsupported language: %q, must be one of: javascript, python", req.Language))
	}
}
