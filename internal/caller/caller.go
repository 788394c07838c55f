// Package caller performs the outbound call to the user-supplied endpoint
// for one rendered prompt: inject credentials, POST, extract the answer.
package caller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"bias-eval-service/internal/credential"
	"bias-eval-service/internal/entity"
	"bias-eval-service/internal/extract"
)

// Error kinds for call failures, recorded verbatim into prompt errors.
// Extraction failures pass through the kinds from the extract package.
const (
	KindTimeout          = "timeout"
	KindConnectionError  = "connection_error"
	KindNonSuccessStatus = "non_success_status"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseSize = 4 << 20 // 4 MiB is plenty for a model answer
)

// CallError is a typed per-prompt failure. Kind is machine-readable,
// Message is the human text stored on the job.
type CallError struct {
	Kind    string
	Message string
}

func (e *CallError) Error() string { return e.Message }

type Caller struct {
	client *http.Client
}

func New(timeout time.Duration) *Caller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Caller{client: &http.Client{Timeout: timeout}}
}

// Call issues a single POST with the rendered body and returns the answer
// extracted at cfg.ResponseKeyPath. No retries: a failed call is reported
// once and the worker moves on.
func (c *Caller) Call(ctx context.Context, cfg entity.JobConfig, renderedBody string) (string, *CallError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL, nil)
	if err != nil {
		return "", &CallError{Kind: KindConnectionError, Message: "invalid request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := credential.Apply(req, []byte(renderedBody), cfg.APIKeyPlacement, cfg.APIKey, cfg.APIKeyFieldName)
	if err != nil {
		return "", &CallError{Kind: KindConnectionError, Message: "credential injection failed: " + err.Error()}
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &CallError{Kind: KindTimeout, Message: "request to target endpoint timed out"}
		}
		return "", &CallError{Kind: KindConnectionError, Message: "request to target endpoint failed"}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", &CallError{Kind: KindConnectionError, Message: "reading response body failed"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &CallError{
			Kind:    KindNonSuccessStatus,
			Message: fmt.Sprintf("target endpoint returned status %d", resp.StatusCode),
		}
	}

	answer, exErr := extract.Extract(respBody, cfg.ResponseKeyPath)
	if exErr != nil {
		return "", &CallError{Kind: exErr.Kind, Message: exErr.Message}
	}
	return answer, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
