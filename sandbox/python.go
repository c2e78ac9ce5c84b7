package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	userCodeFileName     = "user_code.py"
	wrapperFileName      = "step.py"
	requirementsFileName = "requirements.txt"
)

// pythonWrapperTemplate is the generated script the child process runs.
// It reads the user code from a sibling file and executes the compiled
// source, so user code with multi-line strings or unconventional
// indentation survives intact; the input payload travels as a JSON
// string literal, never via argv or stdin. The success path prints the
// JSON-serialized result as the only line of stdout; the failure path
// prints a structured error object to stderr and exits non-zero.
const pythonWrapperTemplate = `import json
import sys
import traceback

input = json.loads(%s)

try:
    with open("user_code.py", "r") as _code_file:
        _user_code = _code_file.read()
    _scope = {"input": input}
    exec(compile(_user_code, "user_code.py", "exec"), _scope)
    # Only a missing binding means "nothing assigned"; an explicit
    # 'result = None' is a deliberate null result, not a pass-through.
    if "result" in _scope:
        result = _scope["result"]
    else:
        result = input
    sys.stdout.write(json.dumps(result, default=str) + "\n")
except Exception as exc:
    sys.stderr.write(json.dumps({
        "error": str(exc),
        "type": type(exc).__name__,
        "traceback": traceback.format_exc(),
    }))
    sys.exit(1)
`

// PythonExecutor runs Python code in a supervised child process. Each
// invocation owns a fresh temporary directory keyed by a random execution
// identifier; the directory is removed on every exit path, including
// timeout and spawn failure.
type PythonExecutor struct {
	logger    *zap.Logger
	config    *Config
	metrics   *Metrics
	cmdRunner CommandRunner
	fs        FileSystem
}

// PythonExecutorOption defines a functional option for PythonExecutor
type PythonExecutorOption func(*PythonExecutor)

// WithCommandRunner sets the CommandRunner for PythonExecutor
func WithCommandRunner(cmdRunner CommandRunner) PythonExecutorOption {
	return func(p *PythonExecutor) {
		p.cmdRunner = cmdRunner
	}
}

// WithFileSystem sets the FileSystem for PythonExecutor
func WithFileSystem(fs FileSystem) PythonExecutorOption {
	return func(p *PythonExecutor) {
		p.fs = fs
	}
}

// NewPythonExecutor creates a new PythonExecutor with default implementations and optional interfaces
func NewPythonExecutor(logger *zap.Logger, config *Config, metrics *Metrics, opts ...PythonExecutorOption) *PythonExecutor {
	executor := &PythonExecutor{
		logger:    logger,
		config:    config,
		metrics:   metrics,
		cmdRunner: &RealCommandRunner{},
		fs:        &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Run stages the code into an isolated temporary directory, optionally
// installs requested packages, spawns the interpreter, supervises it
// against the timeout, and parses the result. The staged artifacts are
// deleted before Run returns, whichever branch terminates the pipeline.
func (p *PythonExecutor) Run(ctx context.Context, code string, input map[string]any, packages []string, timeoutMs int) Outcome {
	executionID := uuid.NewString()

	tempDir, err := p.fs.MkdirTemp("", "stepbox-exec-*")
	if err != nil {
		return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to create temp dir: %v", err))
	}
	// Best-effort cleanup is attempted unconditionally; a failed delete is
	// logged, never propagated.
	defer func() {
		if rmErr := p.fs.RemoveAll(tempDir); rmErr != nil {
			p.logger.Warn("failed to remove execution directory",
				zap.String("execution_id", executionID),
				zap.String("path", tempDir),
				zap.Error(rmErr))
		}
	}()

	scriptPath, err := p.stageArtifacts(tempDir, code, input)
	if err != nil {
		return failureOutcome(ErrRuntimeFault, err.Error())
	}

	if len(packages) > 0 {
		p.installPackages(ctx, executionID, tempDir, packages)
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // Running the staged wrapper is the intended functionality
	cmd := exec.CommandContext(runCtx, p.config.PythonBin, "-u", "-B", scriptPath)
	cmd.Dir = tempDir
	// Restricted environment: an emptied module search path prevents
	// imports from attacker-controlled locations, and output stays
	// unbuffered so a killed process does not lose its last line.
	cmd.Env = []string{
		"PYTHONPATH=",
		"PYTHONUNBUFFERED=1",
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + tempDir,
		"LANG=C.UTF-8",
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	p.logger.Debug("spawning python step",
		zap.String("execution_id", executionID),
		zap.Int("timeout_ms", timeoutMs),
		zap.Int("packages", len(packages)))

	err = cmd.Run()

	// The context deadline and the process exit race; CommandContext kills
	// the child when the deadline wins, so no zombie survives this call.
	if runCtx.Err() == context.DeadlineExceeded {
		p.logger.Info("python step timed out",
			zap.String("execution_id", executionID),
			zap.Int("timeout_ms", timeoutMs))
		return failureOutcome(ErrTimeout, fmt.Sprintf("execution exceeded %dms", timeoutMs))
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			return parseScriptError(stderrBuf.String(), stdoutBuf.String())
		case errors.Is(err, exec.ErrNotFound):
			return failureOutcome(ErrProcessNotFound, fmt.Sprintf("interpreter %q not found", p.config.PythonBin))
		default:
			return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to start interpreter: %v", err))
		}
	}

	return successOutcome(parseScriptOutput(stdoutBuf.String()))
}

// stageArtifacts writes the user code and the generated wrapper script
// into the execution directory and returns the wrapper path.
func (p *PythonExecutor) stageArtifacts(tempDir, code string, input map[string]any) (string, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to serialize input: %w", err)
	}

	userCodePath := filepath.Join(tempDir, userCodeFileName)
	if err := p.fs.WriteFile(userCodePath, []byte(code), FilePermission); err != nil {
		return "", fmt.Errorf("failed to write user code: %w", err)
	}

	// %q yields a double-quoted literal whose escapes Python reads the
	// same way Go wrote them.
	wrapper := fmt.Sprintf(pythonWrapperTemplate, fmt.Sprintf("%q", string(inputJSON)))
	scriptPath := filepath.Join(tempDir, wrapperFileName)
	if err := p.fs.WriteFile(scriptPath, []byte(wrapper), FilePermission); err != nil {
		return "", fmt.Errorf("failed to write wrapper script: %w", err)
	}

	return scriptPath, nil
}

// installPackages writes the requirements manifest and runs the package
// installer as a bounded, best-effort sub-step. Install failure degrades
// gracefully: the packages may already be present on the host, so the
// execution proceeds and the failure is only logged and counted.
func (p *PythonExecutor) installPackages(ctx context.Context, executionID, tempDir string, packages []string) {
	manifestPath := filepath.Join(tempDir, requirementsFileName)
	manifest := strings.Join(packages, "\n") + "\n"
	if err := p.fs.WriteFile(manifestPath, []byte(manifest), FilePermission); err != nil {
		p.logger.Warn("failed to write requirements manifest",
			zap.String("execution_id", executionID),
			zap.Error(err))
		p.metrics.ObserveInstallFailure()
		return
	}

	installCtx, cancel := context.WithTimeout(ctx, p.config.InstallTimeout)
	defer cancel()

	args := []string{p.config.PipBin, "install", "--quiet", "--disable-pip-version-check", "-r", manifestPath}
	_, stderr, exitCode, err := p.cmdRunner.RunCommand(installCtx, args)
	if err != nil || exitCode != 0 {
		p.logger.Warn("dependency install failed, proceeding anyway",
			zap.String("execution_id", executionID),
			zap.Strings("packages", packages),
			zap.Int("exit_code", exitCode),
			zap.String("stderr", strings.TrimSpace(stderr)),
			zap.Error(err))
		p.metrics.ObserveInstallFailure()
	}
}

// parseScriptOutput reads the single stdout line of a zero-exit run.
// Scripts that print non-JSON are still successful executions: the raw
// trimmed text is carried through instead of failing the request.
func parseScriptOutput(stdout string) any {
	trimmed := strings.TrimSpace(stdout)
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return trimmed
	}
	return parsed
}

// parseScriptError extracts the structured error object a failed wrapper
// writes to stderr, falling back to the raw process output when the
// extraction fails.
func parseScriptError(stderr, stdout string) Outcome {
	trimmed := strings.TrimSpace(stderr)

	// Interpreter noise may precede the structured object.
	if idx := strings.Index(trimmed, "{"); idx >= 0 {
		var structured map[string]any
		if err := json.Unmarshal([]byte(trimmed[idx:]), &structured); err == nil {
			if msg, ok := structured["error"].(string); ok {
				return failureOutcomeDetails(ErrRuntimeFault, msg, structured)
			}
		}
	}

	message := trimmed
	if message == "" {
		message = strings.TrimSpace(stdout)
	}
	if message == "" {
		message = "script exited with a non-zero status"
	}
	return failureOutcomeDetails(ErrRuntimeFault, message, map[string]any{
		"stderr": stderr,
		"stdout": stdout,
	})
}
