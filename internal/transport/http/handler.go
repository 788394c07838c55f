package httptransport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bias-eval-service/internal/entity"
	"bias-eval-service/internal/repository/postgresql"
	"bias-eval-service/internal/service"
)

type Handler struct {
	jobSvc *service.JobService
}

func NewHandler(jobSvc *service.JobService) *Handler {
	return &Handler{jobSvc: jobSvc}
}

type createJobDTO struct {
	ProjectID       string `json:"projectId"`
	APIURL          string `json:"apiUrl"`
	RequestTemplate string `json:"requestTemplate"`
	ResponseKey     string `json:"responseKey"`
	APIKey          string `json:"apiKey,omitempty"`
	APIKeyPlacement string `json:"apiKeyPlacement,omitempty"`
	APIKeyFieldName string `json:"apiKeyFieldName,omitempty"`
}

type createJobResp struct {
	JobID string `json:"jobId"`
}

// jobStatusResp is the full poll projection of one job. The job config
// (and with it the api key) is deliberately absent.
type jobStatusResp struct {
	JobID               string                `json:"jobId"`
	Status              entity.JobStatus      `json:"status"`
	Progress            string                `json:"progress"`
	Percent             int                   `json:"percent"`
	LastProcessedPrompt string                `json:"lastProcessedPrompt,omitempty"`
	TotalPrompts        int                   `json:"totalPrompts"`
	Results             []entity.PromptResult `json:"results"`
	Errors              []entity.PromptError  `json:"errors"`
	Summary             entity.Summary        `json:"summary"`
	ErrorMessage        *string               `json:"errorMessage,omitempty"`
}

// jobListItemResp is the reduced projection for the project dashboard.
type jobListItemResp struct {
	JobID               string           `json:"jobId"`
	Status              entity.JobStatus `json:"status"`
	Progress            string           `json:"progress"`
	Percent             int              `json:"percent"`
	LastProcessedPrompt string           `json:"lastProcessedPrompt,omitempty"`
	TotalPrompts        int              `json:"totalPrompts"`
	CreatedAt           string           `json:"createdAt"`
	UpdatedAt           string           `json:"updatedAt"`
}

func progressOf(j *entity.Job) string {
	return fmt.Sprintf("%d/%d", j.ProcessedCount, j.TotalPrompts)
}

// CreateJob godoc
// @Summary Submit a bias evaluation job
// @Description Validates the endpoint config (template, url, credentials) and, if valid, creates a job in queued state and enqueues it for background processing.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body createJobDTO true "job submission"
// @Success 201 {object} createJobResp
// @Failure 400 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs [post]
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var dto createJobDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := h.jobSvc.CreateJob(r.Context(), service.CreateJobRequest{
		ProjectID:       dto.ProjectID,
		APIURL:          dto.APIURL,
		RequestTemplate: dto.RequestTemplate,
		ResponseKeyPath: dto.ResponseKey,
		APIKey:          dto.APIKey,
		APIKeyPlacement: entity.APIKeyPlacement(dto.APIKeyPlacement),
		APIKeyFieldName: dto.APIKeyFieldName,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, "could not create job")
		return
	}

	writeJSON(w, http.StatusCreated, createJobResp{JobID: id.String()})
}

// GetJobStatus godoc
// @Summary Get status of one job
// @Description Read-only poll endpoint: latest committed snapshot including partial results. Safe to call repeatedly; terminal jobs keep serving their final snapshot.
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobStatusResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			writeErr(w, http.StatusNotFound, "job not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, "could not load job")
		return
	}

	resp := jobStatusResp{
		JobID:               j.ID.String(),
		Status:              j.Status,
		Progress:            progressOf(j),
		Percent:             j.Percent(),
		LastProcessedPrompt: j.LastProcessedPrompt,
		TotalPrompts:        j.TotalPrompts,
		Results:             j.Results,
		Errors:              j.Errors,
		Summary:             j.Summary(),
		ErrorMessage:        j.ErrorMessage,
	}
	if resp.Results == nil {
		resp.Results = []entity.PromptResult{}
	}
	if resp.Errors == nil {
		resp.Errors = []entity.PromptError{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListProjectJobs godoc
// @Summary List jobs of a project
// @Description Reduced projection for the dashboard view, newest first.
// @Tags jobs
// @Produce json
// @Param projectId path string true "project id"
// @Success 200 {array} jobListItemResp
// @Failure 500 {object} apiError
// @Router /projects/{projectId}/jobs [get]
func (h *Handler) ListProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectId")
	if projectID == "" {
		writeErr(w, http.StatusBadRequest, "project id is required")
		return
	}

	jobs, err := h.jobSvc.ListProjectJobs(r.Context(), projectID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "could not list jobs")
		return
	}

	items := make([]jobListItemResp, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobListItemResp{
			JobID:               j.ID.String(),
			Status:              j.Status,
			Progress:            progressOf(j),
			Percent:             j.Percent(),
			LastProcessedPrompt: j.LastProcessedPrompt,
			TotalPrompts:        j.TotalPrompts,
			CreatedAt:           j.CreatedAt.Format(time.RFC3339),
			UpdatedAt:           j.UpdatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, items)
}
