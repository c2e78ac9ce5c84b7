package sandbox

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

const jsDeadlineMsg = "execution deadline exceeded"

// matches a return statement, not identifiers like "returned"
var returnStmtRe = regexp.MustCompile(`\breturn\b`)

// JavaScriptExecutor runs JavaScript inside an in-process goja interpreter.
// The interpreter's global scope exposes exactly the step input and a
// restricted console.log; no filesystem, network, or process primitives
// are reachable from sandboxed code. Its only resource is CPU time within
// the host process, bounded by a fixed short deadline.
type JavaScriptExecutor struct {
	logger   *zap.Logger
	deadline time.Duration
}

// NewJavaScriptExecutor creates a new JavaScriptExecutor
func NewJavaScriptExecutor(logger *zap.Logger, deadline time.Duration) *JavaScriptExecutor {
	return &JavaScriptExecutor{
		logger:   logger,
		deadline: deadline,
	}
}

// Run executes the code synchronously. A fresh interpreter instance is
// created per call and discarded afterwards, so a fired deadline can never
// leave a poisoned instance behind for a later request.
func (e *JavaScriptExecutor) Run(code string, input map[string]any) Outcome {
	vm := goja.New()

	// The VM only ever sees a private deep copy: the request is immutable
	// from the orchestrator's point of view, so sandboxed code must not be
	// able to reach the caller's map through the scope.
	scopedInput, err := deepCopyInput(input)
	if err != nil {
		return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to copy input: %v", err))
	}

	if err := vm.Set("input", scopedInput); err != nil {
		return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to inject input: %v", err))
	}

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		e.logger.Debug("sandboxed console.log", zap.String("message", strings.Join(parts, " ")))
		return goja.Undefined()
	}
	if err := console.Set("log", logFn); err != nil {
		return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to build console: %v", err))
	}
	if err := vm.Set("console", console); err != nil {
		return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to inject console: %v", err))
	}

	timer := time.AfterFunc(e.deadline, func() {
		vm.Interrupt(jsDeadlineMsg)
	})
	defer timer.Stop()

	value, err := vm.RunString(wrapJS(code))
	if err != nil {
		if _, interrupted := err.(*goja.InterruptedError); interrupted {
			return failureOutcome(ErrRuntimeFault, jsDeadlineMsg)
		}
		if ex, ok := err.(*goja.Exception); ok {
			return failureOutcome(ErrRuntimeFault, ex.Value().String())
		}
		return failureOutcome(ErrRuntimeFault, err.Error())
	}

	// Only an undefined completion means "nothing returned"; an explicit
	// `return null` is a deliberate null result, not a pass-through.
	if goja.IsUndefined(value) {
		return successOutcome(scopedInput)
	}

	return successOutcome(value.Export())
}

// deepCopyInput clones the payload through a JSON round-trip so untrusted
// code and the returned Outcome never alias the caller's map.
func deepCopyInput(input map[string]any) (map[string]any, error) {
	if len(input) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	clone := make(map[string]any, len(input))
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// wrapJS prepares user code for evaluation. Code with an explicit return
// is wrapped in a function so the returned value is captured without
// re-exposing an unconstrained top-level scope; code without one is
// evaluated directly so the last expression's value becomes the result.
func wrapJS(code string) string {
	if returnStmtRe.MatchString(code) {
		return "(function (input) {\n" + code + "\n})(input)"
	}
	return code
}
