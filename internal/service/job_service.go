package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"bias-eval-service/internal/credential"
	"bias-eval-service/internal/entity"
	"bias-eval-service/internal/extract"
	"bias-eval-service/internal/template"
)

// ErrValidation wraps every submission-time rejection so the transport
// layer can answer 400 instead of 500.
var ErrValidation = errors.New("validation")

// Port to the job store (implementation: postgresql.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, projectID string, cfg entity.JobConfig, totalPrompts int) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByProject(ctx context.Context, projectID string) ([]*entity.Job, error)
}

// Small port of the queue, only what submission needs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type JobService struct {
	repo     JobRepository
	queue    JobQueue
	corpus   []entity.PromptUnit
	validate *validator.Validate
}

// NewJobService wires the service to its store, queue and the fixed prompt
// corpus. The corpus length becomes totalPrompts for every job created.
func NewJobService(repo JobRepository, queue JobQueue, corpus []entity.PromptUnit) (*JobService, error) {
	if len(corpus) == 0 {
		return nil, errors.New("prompt corpus is empty")
	}
	return &JobService{
		repo:     repo,
		queue:    queue,
		corpus:   corpus,
		validate: validator.New(),
	}, nil
}

type CreateJobRequest struct {
	ProjectID       string `validate:"required"`
	APIURL          string `validate:"required,url"`
	RequestTemplate string `validate:"required"`
	ResponseKeyPath string `validate:"required"`
	APIKey          string
	APIKeyPlacement entity.APIKeyPlacement
	APIKeyFieldName string
}

// CreateJob validates the submission and, only if everything passes,
// creates the job (status queued) and enqueues its id. Validation failures
// never leave a job behind.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (uuid.UUID, error) {
	if req.APIKeyPlacement == "" {
		req.APIKeyPlacement = entity.PlacementNone
	}

	if err := s.validate.Struct(req); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrValidation, validationMessage(err))
	}
	if err := validateAPIURL(req.APIURL); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if err := template.Validate(req.RequestTemplate); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if err := extract.ValidatePath(req.ResponseKeyPath); err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid response key path: %s", ErrValidation, err)
	}
	if err := credential.Validate(req.APIKeyPlacement, req.APIKey); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	cfg := entity.JobConfig{
		APIURL:          req.APIURL,
		RequestTemplate: req.RequestTemplate,
		ResponseKeyPath: req.ResponseKeyPath,
		APIKey:          req.APIKey,
		APIKeyPlacement: req.APIKeyPlacement,
		APIKeyFieldName: req.APIKeyFieldName,
	}

	id, err := s.repo.Create(ctx, req.ProjectID, cfg, len(s.corpus))
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.queue.Enqueue(ctx, id.String()); err != nil {
		return uuid.Nil, err
	}

	return id, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *JobService) ListProjectJobs(ctx context.Context, projectID string) ([]*entity.Job, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// Corpus returns the fixed prompt corpus the service was built with.
func (s *JobService) Corpus() []entity.PromptUnit {
	return s.corpus
}

func validateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid api url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("api url must be absolute")
	}
	return nil
}

// validationMessage flattens validator's error list into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "url":
		return fmt.Sprintf("%s must be a valid url", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
