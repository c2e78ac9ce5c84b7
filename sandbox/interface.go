package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Language identifies the runtime a code step targets
type Language string

// Supported languages
const (
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
)

// ExecuteRequest represents the parameters for one code-step execution.
// It is constructed by the caller per workflow step and never reused.
type ExecuteRequest struct {
	Language  Language
	Code      string
	Input     map[string]any
	Packages  []string
	TimeoutMs int
}

// ErrorKind classifies step failures so the calling orchestrator can
// branch on a stable reason instead of parsing error text.
type ErrorKind string

// The closed set of failure classifications
const (
	ErrMissingCode         ErrorKind = "missing_code"
	ErrUnsupportedLanguage ErrorKind = "unsupported_language"
	ErrSecurityViolation   ErrorKind = "security_violation"
	ErrRuntimeFault        ErrorKind = "runtime_fault"
	ErrProcessNotFound     ErrorKind = "process_not_found"
	ErrTimeout             ErrorKind = "timeout"
	ErrServiceUnavailable  ErrorKind = "service_unavailable"
)

// StepError describes a failed execution
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Outcome is the sole result shape returned to the orchestrator.
// It is immutable and fully JSON-serializable.
type Outcome struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   *StepError     `json:"error,omitempty"`
}

// successOutcome wraps an execution result value in the success shape
func successOutcome(value any) Outcome {
	return Outcome{
		Success: true,
		Output:  map[string]any{"output": value},
	}
}

// failureOutcome builds a failed Outcome with the given classification
func failureOutcome(kind ErrorKind, message string) Outcome {
	return Outcome{
		Success: false,
		Error:   &StepError{Kind: kind, Message: message},
	}
}

// failureOutcomeDetails builds a failed Outcome carrying structured details
func failureOutcomeDetails(kind ErrorKind, message string, details any) Outcome {
	return Outcome{
		Success: false,
		Error:   &StepError{Kind: kind, Message: message, Details: details},
	}
}

// StepExecutor defines the interface for code-step execution.
// Implementations never return Go errors outward: every failure is
// normalized into the Outcome error taxonomy.
type StepExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) Outcome
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0600
)

// Config holds configuration for the sandbox executors
type Config struct {
	Denylist         []string
	Allowlist        []string
	JSDeadline       time.Duration
	PythonBin        string
	PipBin           string
	InstallTimeout   time.Duration
	DefaultTimeoutMs int
	RemoteEndpoint   string
}
