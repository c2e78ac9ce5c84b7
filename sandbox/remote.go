package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// remoteTimeoutBuffer pads the client-side timeout past the requested
// execution timeout so network latency cannot misclassify a slow-but-live
// remote run.
const remoteTimeoutBuffer = 10 * time.Second

// remotePayload is the wire request sent to the runner service
type remotePayload struct {
	Code      string         `json:"code"`
	Input     map[string]any `json:"input"`
	Packages  []string       `json:"packages,omitempty"`
	TimeoutMs int            `json:"timeout_ms"`
}

// remoteResult is the wire response of a successful remote run
type remoteResult struct {
	Result any `json:"result"`
}

// RemoteExecutor forwards execution to a configured runner service.
// It performs no local staging, install, or supervision; all of that is
// the remote service's responsibility.
type RemoteExecutor struct {
	logger   *zap.Logger
	endpoint string
	client   *http.Client
}

// NewRemoteExecutor creates a new RemoteExecutor for the given endpoint.
// The client is shared across calls so connections are pooled; per-call
// deadlines come from the request context, not a client timeout.
func NewRemoteExecutor(logger *zap.Logger, endpoint string) *RemoteExecutor {
	return &RemoteExecutor{
		logger:   logger,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

// Run sends the payload as a single POST call and maps the response.
// Transport failures and non-2xx statuses become service_unavailable,
// carrying through any structured error body the service returned.
func (r *RemoteExecutor) Run(ctx context.Context, code string, input map[string]any, packages []string, timeoutMs int) Outcome {
	body, err := json.Marshal(remotePayload{
		Code:      code,
		Input:     input,
		Packages:  packages,
		TimeoutMs: timeoutMs,
	})
	if err != nil {
		return failureOutcome(ErrRuntimeFault, fmt.Sprintf("failed to serialize remote payload: %v", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond+remoteTimeoutBuffer)
	defer cancel()

	url := r.endpoint + "/execute"
	req, err := http.NewRequestWithContext(runCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failureOutcome(ErrServiceUnavailable, fmt.Sprintf("invalid runner endpoint: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("runner service unreachable", zap.String("endpoint", r.endpoint), zap.Error(err))
		return failureOutcome(ErrServiceUnavailable, fmt.Sprintf("runner service unreachable: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failureOutcome(ErrServiceUnavailable, fmt.Sprintf("failed to read runner response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var details any
		if err := json.Unmarshal(respBody, &details); err != nil {
			details = string(respBody)
		}
		r.logger.Warn("runner service returned error",
			zap.String("endpoint", r.endpoint),
			zap.Int("status", resp.StatusCode))
		return failureOutcomeDetails(ErrServiceUnavailable,
			fmt.Sprintf("runner service returned status %d", resp.StatusCode), details)
	}

	var result remoteResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return failureOutcome(ErrServiceUnavailable, fmt.Sprintf("malformed runner response: %v", err))
	}

	return successOutcome(result.Result)
}
