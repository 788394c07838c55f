package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bias-eval-service/internal/caller"
	"bias-eval-service/internal/entity"
	"bias-eval-service/internal/evaluator"
	"bias-eval-service/internal/template"
)

// Port to the job store, only what a run needs.
type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status entity.JobStatus) error
	TouchProgress(ctx context.Context, id uuid.UUID, lastPrompt string) error
	AppendResult(ctx context.Context, id uuid.UUID, res entity.PromptResult) error
	AppendError(ctx context.Context, id uuid.UUID, perr entity.PromptError) error
	SetTerminal(ctx context.Context, id uuid.UUID, status entity.JobStatus, errorMessage *string) error
}

type Caller interface {
	Call(ctx context.Context, cfg entity.JobConfig, renderedBody string) (string, *caller.CallError)
}

// Runner drives one claimed job end to end through the state machine:
// queued -> collecting_responses -> evaluating -> terminal.
//
// Two passes. The collection pass POSTs every corpus prompt to the target
// endpoint; call failures are resolved immediately as prompt errors,
// answers are buffered. The evaluation pass scores the buffered answers.
// A prompt counts as processed once its evaluator step (if any) resolved.
type Runner struct {
	repo            JobRepo
	caller          Caller
	eval            evaluator.Evaluator
	corpus          []entity.PromptUnit
	callConcurrency int
}

func NewRunner(repo JobRepo, c Caller, eval evaluator.Evaluator, corpus []entity.PromptUnit, callConcurrency int) *Runner {
	if callConcurrency <= 0 {
		callConcurrency = 3
	}
	return &Runner{
		repo:            repo,
		caller:          c,
		eval:            eval,
		corpus:          corpus,
		callConcurrency: callConcurrency,
	}
}

// Run executes the job with the given id. The claim on the queue guarantees
// no other worker writes to this job while Run is in flight.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	start := time.Now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		log.Printf("[worker] job_id=%s parse_error=%v", jobID, err)
		return err
	}

	job, err := r.repo.GetByID(ctx, id)
	if err != nil {
		log.Printf("[worker] job_id=%s get_job error=%v", id, err)
		return err
	}
	if job.Status.IsTerminal() {
		// requeued by the reaper after a crash between finishing and acking
		log.Printf("[worker] job_id=%s status=%s already_terminal skip", id, job.Status)
		return nil
	}

	if err := r.repo.UpdateStatus(ctx, id, entity.StatusCollecting); err != nil {
		log.Printf("[worker] job_id=%s update_status=%s error=%v", id, entity.StatusCollecting, err)
		return err
	}
	log.Printf("[worker] job_id=%s status=%s prompts=%d", id, entity.StatusCollecting, len(r.corpus))

	state := newRunState(len(r.corpus), job)
	if n := job.ProcessedCount; n > 0 {
		log.Printf("[worker] job_id=%s resume processed=%d total=%d", id, n, job.TotalPrompts)
	}

	if err := r.collect(ctx, id, job.Config, state); err != nil {
		return r.abort(ctx, id, start, err)
	}

	if err := r.repo.UpdateStatus(ctx, id, entity.StatusEvaluating); err != nil {
		return r.abort(ctx, id, start, err)
	}
	log.Printf("[worker] job_id=%s status=%s answers=%d call_errors=%d",
		id, entity.StatusEvaluating, state.answerCount(), state.failed)

	if err := r.evaluate(ctx, id, job.ProjectID, state); err != nil {
		return r.abort(ctx, id, start, err)
	}

	final := entity.TerminalStatus(state.successful, state.failed)
	if err := r.repo.SetTerminal(ctx, id, final, nil); err != nil {
		log.Printf("[worker] job_id=%s set_terminal=%s error=%v", id, final, err)
		return err
	}

	log.Printf("[worker] job_id=%s status=%s successful=%d failed=%d duration_ms=%d",
		id, final, state.successful, state.failed, time.Since(start).Milliseconds())
	return nil
}

// runState accumulates per-run progress. mu serializes every job mutation:
// callers run concurrently, appends do not.
type runState struct {
	mu         sync.Mutex
	answers    []string
	got        []bool
	resolved   []bool
	successful int
	failed     int
}

// newRunState seeds the state with whatever a previous delivery of the same
// job already resolved, keyed by each entry's corpus index. A redelivered job
// then only works the prompts still missing from both lists.
func newRunState(total int, job *entity.Job) *runState {
	s := &runState{
		answers:  make([]string, total),
		got:      make([]bool, total),
		resolved: make([]bool, total),
	}
	for _, res := range job.Results {
		if res.Index >= 0 && res.Index < total && !s.resolved[res.Index] {
			s.resolved[res.Index] = true
			s.successful++
		}
	}
	for _, perr := range job.Errors {
		if perr.Index >= 0 && perr.Index < total && !s.resolved[perr.Index] {
			s.resolved[perr.Index] = true
			s.failed++
		}
	}
	return s
}

func (s *runState) answerCount() int {
	n := 0
	for _, ok := range s.got {
		if ok {
			n++
		}
	}
	return n
}

// collect runs the collection pass: one call per corpus prompt, at most
// callConcurrency in flight. Per-prompt failures are recorded and the pass
// continues; only store failures or cancellation abort.
func (r *Runner) collect(ctx context.Context, id uuid.UUID, cfg entity.JobConfig, state *runState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.callConcurrency)

	// calls started before a cancellation are left to finish; their writes
	// must not be cut off mid-append
	writeCtx := context.WithoutCancel(ctx)

	for i, unit := range r.corpus {
		if state.resolved[i] {
			continue
		}
		i, unit := i, unit
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rendered := template.Render(cfg.RequestTemplate, unit.Prompt)
			answer, callErr := r.caller.Call(writeCtx, cfg, rendered)

			state.mu.Lock()
			defer state.mu.Unlock()

			if callErr != nil {
				state.failed++
				return r.repo.AppendError(writeCtx, id, entity.PromptError{
					Index:    i,
					Category: unit.Category,
					Prompt:   unit.Prompt,
					Kind:     callErr.Kind,
					Message:  callErr.Message,
				})
			}

			state.answers[i] = answer
			state.got[i] = true
			return r.repo.TouchProgress(writeCtx, id, unit.Prompt)
		})
	}

	return g.Wait()
}

// evaluate runs the evaluation pass over the buffered answers. A prompt
// whose evaluation fails becomes a prompt error; the pass continues.
func (r *Runner) evaluate(ctx context.Context, id uuid.UUID, projectID string, state *runState) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.callConcurrency)

	writeCtx := context.WithoutCancel(ctx)

	for i, unit := range r.corpus {
		if !state.got[i] {
			continue // resolved earlier, or already a call error
		}
		answer := state.answers[i]

		i, unit := i, unit
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			// same rule as the collection pass: an evaluation already in
			// flight when the run is cancelled finishes and lands in a list
			ev, evalErr := r.eval.Evaluate(writeCtx, projectID, unit.Category, unit.Prompt, answer)

			state.mu.Lock()
			defer state.mu.Unlock()

			if evalErr != nil {
				state.failed++
				return r.repo.AppendError(writeCtx, id, entity.PromptError{
					Index:    i,
					Category: unit.Category,
					Prompt:   unit.Prompt,
					Kind:     evaluator.KindEvalError,
					Message:  evalErr.Error(),
				})
			}

			state.successful++
			return r.repo.AppendResult(writeCtx, id, entity.PromptResult{
				Index:    i,
				Category: unit.Category,
				Prompt:   unit.Prompt,
				Evaluation: entity.Evaluation{
					Score:      ev.Score,
					Commentary: ev.Commentary,
				},
			})
		})
	}

	return g.Wait()
}

// abort handles job-fatal conditions: the run stops where it is and the job
// goes to failed with an error message, so no poller is left watching a job
// stuck in a non-terminal state.
func (r *Runner) abort(ctx context.Context, id uuid.UUID, start time.Time, cause error) error {
	msg := "internal error: " + cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = "job cancelled before completion"
	} else if errors.Is(cause, context.DeadlineExceeded) {
		msg = "job aborted: deadline exceeded"
	}

	// the cause may be the cancellation itself, so don't let it stop the write
	if err := r.repo.SetTerminal(context.WithoutCancel(ctx), id, entity.StatusFailed, &msg); err != nil {
		log.Printf("[worker] job_id=%s set_terminal=failed error=%v", id, err)
	}

	log.Printf("[worker] job_id=%s status=failed duration_ms=%d error=%v",
		id, time.Since(start).Milliseconds(), cause)
	return fmt.Errorf("job %s aborted: %w", id, cause)
}
