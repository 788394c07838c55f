// Package evaluator scores extracted answers for fairness/bias.
//
// The scoring model itself is a sidecar service (LangFair) reached over
// HTTP; this package only speaks its /evaluate contract and folds the
// returned metrics into a single score plus commentary.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// KindEvalError marks a per-prompt evaluation failure on the job.
const KindEvalError = "eval_error"

type Evaluation struct {
	Score      float64
	Commentary string
}

// Evaluator scores one answer. Implementations must be safe for concurrent
// use: prompts are evaluated in any order, possibly in parallel.
type Evaluator interface {
	Evaluate(ctx context.Context, projectID, category, prompt, answer string) (Evaluation, error)
}

// Client talks to the LangFair evaluation sidecar.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type evaluateRequest struct {
	ProjectID    string `json:"project_id"`
	Category     string `json:"category"`
	QuestionText string `json:"question_text"`
	UserResponse string `json:"user_response"`
}

type toxicityMetrics struct {
	ToxicFraction       float64 `json:"toxic_fraction"`
	ExpectedMaxToxicity float64 `json:"expected_max_toxicity"`
	ToxicityProbability float64 `json:"toxicity_probability"`
}

type stereotypeMetrics struct {
	StereotypeAssociation float64 `json:"stereotype_association"`
	CooccurrenceBias      float64 `json:"cooccurrence_bias"`
	StereotypeFraction    float64 `json:"stereotype_fraction"`
}

type evaluateResponse struct {
	Success bool `json:"success"`
	Metrics struct {
		Toxicity   toxicityMetrics   `json:"toxicity"`
		Stereotype stereotypeMetrics `json:"stereotype"`
	} `json:"metrics"`
	Error string `json:"error,omitempty"`
}

// Evaluate posts one answer to the sidecar and folds the toxicity and
// stereotype metrics into a bias score in [0,1] (higher = more biased).
func (c *Client) Evaluate(ctx context.Context, projectID, category, prompt, answer string) (Evaluation, error) {
	if strings.TrimSpace(answer) == "" {
		return Evaluation{}, fmt.Errorf("answer is empty, nothing to evaluate")
	}

	reqBody, err := json.Marshal(evaluateRequest{
		ProjectID:    projectID,
		Category:     normalizeCategory(category),
		QuestionText: prompt,
		UserResponse: answer,
	})
	if err != nil {
		return Evaluation{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", bytes.NewReader(reqBody))
	if err != nil {
		return Evaluation{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluation service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Evaluation{}, fmt.Errorf("reading evaluation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Evaluation{}, fmt.Errorf("evaluation service returned status %d", resp.StatusCode)
	}

	var out evaluateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Evaluation{}, fmt.Errorf("invalid evaluation response: %w", err)
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "evaluation failed"
		}
		return Evaluation{}, fmt.Errorf("evaluation service: %s", msg)
	}

	return Evaluation{
		Score:      scoreFrom(out.Metrics.Toxicity, out.Metrics.Stereotype),
		Commentary: commentaryFrom(out.Metrics.Toxicity, out.Metrics.Stereotype),
	}, nil
}

// scoreFrom takes the worst of the individual signals. All sidecar metrics
// already live in [0,1] with higher = worse.
func scoreFrom(tox toxicityMetrics, st stereotypeMetrics) float64 {
	score := 0.0
	for _, v := range []float64{
		tox.ToxicFraction,
		tox.ExpectedMaxToxicity,
		tox.ToxicityProbability,
		st.StereotypeAssociation,
		st.CooccurrenceBias,
		st.StereotypeFraction,
	} {
		if v > score {
			score = v
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

func commentaryFrom(tox toxicityMetrics, st stereotypeMetrics) string {
	return fmt.Sprintf(
		"toxicity: fraction=%.3f max=%.3f probability=%.3f; stereotype: association=%.3f cooccurrence=%.3f fraction=%.3f",
		tox.ToxicFraction, tox.ExpectedMaxToxicity, tox.ToxicityProbability,
		st.StereotypeAssociation, st.CooccurrenceBias, st.StereotypeFraction,
	)
}

// normalizeCategory maps corpus categories onto the attribute set the
// sidecar understands. Unknown categories fall back to gender, its default.
func normalizeCategory(category string) string {
	switch strings.ToLower(category) {
	case "gender":
		return "gender"
	case "race", "ethnicity":
		return "race"
	case "religion":
		return "religion"
	case "age":
		return "age"
	default:
		return "gender"
	}
}
