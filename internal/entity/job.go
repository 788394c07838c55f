package entity

import (
	"math"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusCollecting     JobStatus = "collecting_responses"
	StatusEvaluating     JobStatus = "evaluating"
	StatusSuccess        JobStatus = "success"
	StatusPartialSuccess JobStatus = "partial_success"
	StatusFailed         JobStatus = "failed"
)

// IsTerminal reports whether a job in this status will never change again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusPartialSuccess, StatusFailed:
		return true
	}
	return false
}

type APIKeyPlacement string

const (
	PlacementNone       APIKeyPlacement = "none"
	PlacementAuthHeader APIKeyPlacement = "auth_header"
	PlacementXAPIKey    APIKeyPlacement = "x_api_key"
	PlacementQueryParam APIKeyPlacement = "query_param"
	PlacementBodyField  APIKeyPlacement = "body_field"
)

func (p APIKeyPlacement) Valid() bool {
	switch p {
	case PlacementNone, PlacementAuthHeader, PlacementXAPIKey, PlacementQueryParam, PlacementBodyField:
		return true
	}
	return false
}

// RequiresKey reports whether this placement needs a non-empty api key.
func (p APIKeyPlacement) RequiresKey() bool {
	return p != PlacementNone && p != ""
}

// JobConfig is immutable after job creation. The api key lives here so the
// worker can reach the target endpoint; it must never appear in status
// responses or log lines.
type JobConfig struct {
	APIURL          string          `json:"apiUrl"`
	RequestTemplate string          `json:"requestTemplate"`
	ResponseKeyPath string          `json:"responseKeyPath"`
	APIKey          string          `json:"apiKey,omitempty"`
	APIKeyPlacement APIKeyPlacement `json:"apiKeyPlacement"`
	APIKeyFieldName string          `json:"apiKeyFieldName,omitempty"`
}

// PromptUnit is one entry of the fixed evaluation corpus. Index = position
// in the corpus, stable for the lifetime of a job.
type PromptUnit struct {
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
}

type Evaluation struct {
	Score      float64 `json:"score"` // bias score in [0,1]
	Commentary string  `json:"commentary"`
}

// Index on results/errors is the prompt's corpus position. It is what lets
// a re-delivered job resume without resolving any prompt twice.
type PromptResult struct {
	Index      int        `json:"index"`
	Category   string     `json:"category"`
	Prompt     string     `json:"prompt"`
	Evaluation Evaluation `json:"evaluation"`
}

type PromptError struct {
	Index    int    `json:"index"`
	Category string `json:"category"`
	Prompt   string `json:"prompt"`
	Kind     string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Job is the aggregate. Single writer (the worker that claimed it),
// any number of concurrent readers via the status API.
//
// Invariants:
//   - ProcessedCount == len(Results) + len(Errors)
//   - ProcessedCount never decreases; TotalPrompts never changes
//   - Results/Errors are append-only; a corpus index lands in exactly one
//   - a terminal Status is never left
type Job struct {
	ID                  uuid.UUID      `json:"jobId"`
	ProjectID           string         `json:"projectId"`
	Config              JobConfig      `json:"config"`
	Status              JobStatus      `json:"status"`
	TotalPrompts        int            `json:"totalPrompts"`
	ProcessedCount      int            `json:"processedCount"`
	LastProcessedPrompt string         `json:"lastProcessedPrompt,omitempty"`
	Results             []PromptResult `json:"results"`
	Errors              []PromptError  `json:"errors"`
	ErrorMessage        *string        `json:"errorMessage,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

// Percent returns the rounded progress percentage, clamped to [0,100].
func (j *Job) Percent() int {
	if j.TotalPrompts <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(j.ProcessedCount) / float64(j.TotalPrompts)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Summary is derived from the result/error list lengths, never stored.
func (j *Job) Summary() Summary {
	return Summary{
		Total:      len(j.Results) + len(j.Errors),
		Successful: len(j.Results),
		Failed:     len(j.Errors),
	}
}

// TerminalStatus decides the final status once every prompt is resolved:
// all succeeded => success, all failed => failed, mixed => partial_success.
func TerminalStatus(successful, failed int) JobStatus {
	switch {
	case failed == 0:
		return StatusSuccess
	case successful == 0:
		return StatusFailed
	default:
		return StatusPartialSuccess
	}
}
