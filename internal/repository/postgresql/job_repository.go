package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bias-eval-service/internal/entity"
)

var ErrNotFound = errors.New("not found")

// terminalGuard keeps every mutating query away from finished jobs: once a
// job reaches success/partial_success/failed it never changes again.
const terminalGuard = `status NOT IN ('success', 'partial_success', 'failed')`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, projectID string, cfg entity.JobConfig, totalPrompts int) (uuid.UUID, error) {
	if totalPrompts <= 0 {
		return uuid.Nil, errors.New("total prompts must be positive")
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return uuid.Nil, err
	}

	const q = `
INSERT INTO bias_jobs (project_id, config, status, total_prompts)
VALUES ($1, $2, 'queued', $3)
RETURNING id;
`
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, projectID, cfgJSON, totalPrompts).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	const q = `
SELECT id, project_id, config, status, total_prompts, processed_count,
       last_processed_prompt, results, errors, error_message, created_at, updated_at
FROM bias_jobs
WHERE id = $1;
`
	job, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Job, error) {
	const q = `
SELECT id, project_id, config, status, total_prompts, processed_count,
       last_processed_prompt, results, errors, error_message, created_at, updated_at
FROM bias_jobs
WHERE project_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus moves a job to a non-terminal working status. It refuses to
// touch terminal jobs; callers decide terminal statuses via SetTerminal.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus) error {
	const q = `UPDATE bias_jobs SET status=$2, updated_at=now() WHERE id=$1 AND ` + terminalGuard + `;`

	tag, err := r.pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchProgress records the most recent prompt attempted without resolving
// it yet (the evaluator step is still pending).
func (r *JobRepository) TouchProgress(ctx context.Context, id uuid.UUID, lastPrompt string) error {
	const q = `UPDATE bias_jobs SET last_processed_prompt=$2, updated_at=now() WHERE id=$1 AND ` + terminalGuard + `;`

	tag, err := r.pool.Exec(ctx, q, id, lastPrompt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendResult resolves one prompt as successful: append to results and
// bump processed_count in a single statement so pollers always see
// processed_count == len(results) + len(errors).
func (r *JobRepository) AppendResult(ctx context.Context, id uuid.UUID, res entity.PromptResult) error {
	doc, err := json.Marshal(res)
	if err != nil {
		return err
	}

	const q = `
UPDATE bias_jobs
SET results = results || $2::jsonb,
    processed_count = processed_count + 1,
    last_processed_prompt = $3,
    updated_at = now()
WHERE id = $1 AND ` + terminalGuard + `;`

	tag, err := r.pool.Exec(ctx, q, id, doc, res.Prompt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendError resolves one prompt as failed, same single-statement shape as
// AppendResult.
func (r *JobRepository) AppendError(ctx context.Context, id uuid.UUID, perr entity.PromptError) error {
	doc, err := json.Marshal(perr)
	if err != nil {
		return err
	}

	const q = `
UPDATE bias_jobs
SET errors = errors || $2::jsonb,
    processed_count = processed_count + 1,
    last_processed_prompt = $3,
    updated_at = now()
WHERE id = $1 AND ` + terminalGuard + `;`

	tag, err := r.pool.Exec(ctx, q, id, doc, perr.Prompt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTerminal writes the final status exactly once. A second call (or a
// call against a finished job) affects zero rows and reports ErrNotFound.
func (r *JobRepository) SetTerminal(ctx context.Context, id uuid.UUID, status entity.JobStatus, errorMessage *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	const q = `UPDATE bias_jobs SET status=$2, error_message=$3, updated_at=now() WHERE id=$1 AND ` + terminalGuard + `;`

	tag, err := r.pool.Exec(ctx, q, id, string(status), errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		job        entity.Job
		statusText string
		cfgBytes   []byte
		resBytes   []byte
		errBytes   []byte
		errMsg     *string
		createdAt  time.Time
		updatedAt  time.Time
	)

	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&cfgBytes,
		&statusText,
		&job.TotalPrompts,
		&job.ProcessedCount,
		&job.LastProcessedPrompt,
		&resBytes,
		&errBytes,
		&errMsg,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(cfgBytes, &job.Config); err != nil {
		return nil, fmt.Errorf("corrupt job config: %w", err)
	}
	if err := json.Unmarshal(resBytes, &job.Results); err != nil {
		return nil, fmt.Errorf("corrupt job results: %w", err)
	}
	if err := json.Unmarshal(errBytes, &job.Errors); err != nil {
		return nil, fmt.Errorf("corrupt job errors: %w", err)
	}

	job.Status = entity.JobStatus(statusText)
	job.ErrorMessage = errMsg
	job.CreatedAt = createdAt
	job.UpdatedAt = updatedAt

	return &job, nil
}
