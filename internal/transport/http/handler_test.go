package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"bias-eval-service/internal/entity"
	"bias-eval-service/internal/repository/postgresql"
	"bias-eval-service/internal/service"
	httptransport "bias-eval-service/internal/transport/http"
)

// ---- fakes ----

type repoWithJobs struct {
	createID uuid.UUID
	jobs     map[uuid.UUID]*entity.Job
}

func (r *repoWithJobs) Create(ctx context.Context, projectID string, cfg entity.JobConfig, totalPrompts int) (uuid.UUID, error) {
	now := time.Now().UTC()

	j := &entity.Job{
		ID:           r.createID,
		ProjectID:    projectID,
		Config:       cfg,
		Status:       entity.StatusQueued,
		TotalPrompts: totalPrompts,
		Results:      []entity.PromptResult{},
		Errors:       []entity.PromptError{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if r.jobs == nil {
		r.jobs = map[uuid.UUID]*entity.Job{}
	}
	r.jobs[r.createID] = j
	return r.createID, nil
}

func (r *repoWithJobs) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return j, nil
}

func (r *repoWithJobs) ListByProject(ctx context.Context, projectID string) ([]*entity.Job, error) {
	var out []*entity.Job
	for _, j := range r.jobs {
		if j.ProjectID == projectID {
			out = append(out, j)
		}
	}
	return out, nil
}

type queueStub struct {
	enqueuedIDs []string
}

func (q *queueStub) Enqueue(ctx context.Context, jobID string) error {
	q.enqueuedIDs = append(q.enqueuedIDs, jobID)
	return nil
}

// ---- helpers ----

var testCorpus = []entity.PromptUnit{
	{Category: "gender", Prompt: "p1"},
	{Category: "race", Prompt: "p2"},
	{Category: "age", Prompt: "p3"},
	{Category: "age", Prompt: "p4"},
}

func newTestRouter(t *testing.T, repo service.JobRepository, queue service.JobQueue) http.Handler {
	t.Helper()
	svc, err := service.NewJobService(repo, queue, testCorpus)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	h := httptransport.NewHandler(svc)
	return httptransport.Routes(h)
}

func validSubmission() string {
	return `{
		"projectId": "project-1",
		"apiUrl": "https://api.example.com/v1/chat",
		"requestTemplate": "{\"prompt\": \"{{prompt}}\"}",
		"responseKey": "choices[0].message.content",
		"apiKey": "sk-123",
		"apiKeyPlacement": "auth_header"
	}`
}

func postJob(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// ---- tests ----

func TestHTTP_CreateJob_201_AndEnqueued(t *testing.T) {
	id := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	repo := &repoWithJobs{createID: id, jobs: map[uuid.UUID]*entity.Job{}}
	queue := &queueStub{}
	router := newTestRouter(t, repo, queue)

	rr := postJob(router, validSubmission())
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
	if resp.JobID != id.String() {
		t.Fatalf("expected job id %s, got %s", id, resp.JobID)
	}
	if len(queue.enqueuedIDs) != 1 || queue.enqueuedIDs[0] != id.String() {
		t.Fatalf("expected job enqueued once, got %v", queue.enqueuedIDs)
	}

	j := repo.jobs[id]
	if j.Status != entity.StatusQueued {
		t.Fatalf("expected queued status, got %s", j.Status)
	}
	if j.TotalPrompts != len(testCorpus) {
		t.Fatalf("expected totalPrompts=%d, got %d", len(testCorpus), j.TotalPrompts)
	}
}

func TestHTTP_CreateJob_400_MissingPlaceholder_NoJobCreated(t *testing.T) {
	repo := &repoWithJobs{createID: uuid.New(), jobs: map[uuid.UUID]*entity.Job{}}
	queue := &queueStub{}
	router := newTestRouter(t, repo, queue)

	body := `{
		"projectId": "project-1",
		"apiUrl": "https://api.example.com/v1/chat",
		"requestTemplate": "{\"text\": \"hello\"}",
		"responseKey": "answer"
	}`
	rr := postJob(router, body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "placeholder") {
		t.Fatalf("expected placeholder message, got %s", rr.Body.String())
	}
	if len(repo.jobs) != 0 || len(queue.enqueuedIDs) != 0 {
		t.Fatal("rejected submission must not create or enqueue a job")
	}
}

func TestHTTP_CreateJob_400_Cases(t *testing.T) {
	cases := map[string]string{
		"invalid url": `{
			"projectId": "p", "apiUrl": "not a url",
			"requestTemplate": "{\"q\": \"{{prompt}}\"}", "responseKey": "a"
		}`,
		"template not json": `{
			"projectId": "p", "apiUrl": "https://x.example.com",
			"requestTemplate": "{\"q\": \"{{prompt}}\"", "responseKey": "a"
		}`,
		"missing key for placement": `{
			"projectId": "p", "apiUrl": "https://x.example.com",
			"requestTemplate": "{\"q\": \"{{prompt}}\"}", "responseKey": "a",
			"apiKeyPlacement": "query_param"
		}`,
		"unknown placement": `{
			"projectId": "p", "apiUrl": "https://x.example.com",
			"requestTemplate": "{\"q\": \"{{prompt}}\"}", "responseKey": "a",
			"apiKey": "k", "apiKeyPlacement": "cookie"
		}`,
		"bad response key": `{
			"projectId": "p", "apiUrl": "https://x.example.com",
			"requestTemplate": "{\"q\": \"{{prompt}}\"}", "responseKey": "a[x]"
		}`,
		"missing project": `{
			"apiUrl": "https://x.example.com",
			"requestTemplate": "{\"q\": \"{{prompt}}\"}", "responseKey": "a"
		}`,
	}

	for name, body := range cases {
		repo := &repoWithJobs{createID: uuid.New(), jobs: map[uuid.UUID]*entity.Job{}}
		queue := &queueStub{}
		router := newTestRouter(t, repo, queue)

		rr := postJob(router, body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d, body=%s", name, rr.Code, rr.Body.String())
		}
		if len(repo.jobs) != 0 {
			t.Fatalf("%s: job must not be created", name)
		}
	}
}

func TestHTTP_GetJobStatus_200(t *testing.T) {
	id := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	errMsg := "target endpoint returned status 500"

	repo := &repoWithJobs{
		jobs: map[uuid.UUID]*entity.Job{
			id: {
				ID:                  id,
				ProjectID:           "project-1",
				Config:              entity.JobConfig{APIKey: "sk-super-secret"},
				Status:              entity.StatusCollecting,
				TotalPrompts:        4,
				ProcessedCount:      1,
				LastProcessedPrompt: "p1",
				Results:             []entity.PromptResult{},
				Errors: []entity.PromptError{
					{Category: "gender", Prompt: "p1", Kind: "non_success_status", Message: errMsg},
				},
			},
		},
	}
	router := newTestRouter(t, repo, &queueStub{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		JobID        string               `json:"jobId"`
		Status       string               `json:"status"`
		Progress     string               `json:"progress"`
		Percent      int                  `json:"percent"`
		TotalPrompts int                  `json:"totalPrompts"`
		Errors       []entity.PromptError `json:"errors"`
		Summary      entity.Summary       `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}

	if resp.Progress != "1/4" || resp.Percent != 25 {
		t.Fatalf("expected progress 1/4 (25%%), got %s (%d%%)", resp.Progress, resp.Percent)
	}
	if resp.Summary.Total != 1 || resp.Summary.Failed != 1 || resp.Summary.Successful != 0 {
		t.Fatalf("unexpected summary: %+v", resp.Summary)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Message != errMsg {
		t.Fatalf("unexpected errors: %+v", resp.Errors)
	}

	// the job config, api key included, must never appear in a status response
	if strings.Contains(rr.Body.String(), "sk-super-secret") || strings.Contains(rr.Body.String(), "config") {
		t.Fatalf("status response leaks job config: %s", rr.Body.String())
	}
}

func TestHTTP_GetJobStatus_NotFoundAndBadID(t *testing.T) {
	router := newTestRouter(t, &repoWithJobs{jobs: map[uuid.UUID]*entity.Job{}}, &queueStub{})

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHTTP_ListProjectJobs(t *testing.T) {
	id1 := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	id2 := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	repo := &repoWithJobs{
		jobs: map[uuid.UUID]*entity.Job{
			id1: {ID: id1, ProjectID: "project-1", Status: entity.StatusSuccess, TotalPrompts: 4, ProcessedCount: 4},
			id2: {ID: id2, ProjectID: "other-project", Status: entity.StatusQueued, TotalPrompts: 4},
		},
	}
	router := newTestRouter(t, repo, &queueStub{})

	req := httptest.NewRequest(http.MethodGet, "/projects/project-1/jobs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var items []struct {
		JobID    string `json:"jobId"`
		Status   string `json:"status"`
		Progress string `json:"progress"`
		Percent  int    `json:"percent"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(items) != 1 || items[0].JobID != id1.String() {
		t.Fatalf("expected only project-1 jobs, got %+v", items)
	}
	if items[0].Progress != "4/4" || items[0].Percent != 100 {
		t.Fatalf("unexpected progress: %+v", items[0])
	}

	// full projection fields stay off the list view
	if strings.Contains(rr.Body.String(), "results") {
		t.Fatalf("list projection should not embed results: %s", rr.Body.String())
	}
}
