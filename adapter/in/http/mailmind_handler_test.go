package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailmind_server/core/domain"
	"mailmind_server/core/service/job"
	"mailmind_server/core/service/skill"
	"mailmind_server/infra/middleware"
	"mailmind_server/internal/memstore"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	jobs []*domain.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, j *domain.Job) error {
	q.jobs = append(q.jobs, j)
	return nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    *struct {
		Total int `json:"total"`
	} `json:"meta"`
	Error struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testServer struct {
	app   *fiber.App
	jobs  *job.Service
	queue *recordingQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := memstore.NewSkills()
	skills := skill.NewService(repo, repo, &memstore.Snapshots{}, nil, zerolog.Nop())

	queue := &recordingQueue{}
	jobs := job.NewService(memstore.NewJobs(), time.Minute, zerolog.Nop())
	jobs.Register(domain.JobSnapshotExport, func(context.Context, *domain.Job, domain.ProgressFunc) (any, error) {
		return nil, nil
	})
	jobs.UseQueue(queue)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	app.Use(middleware.RequestID(), middleware.RequestLogger())
	NewHealthHandler().Register(app)
	api := app.Group("/api/v1")
	NewSkillHandler(skills).Register(api)
	NewJobHandler(jobs).Register(api)

	return &testServer{app: app, jobs: jobs, queue: queue}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env
}

func TestSkillRoutes(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, "POST", "/api/v1/skills", `{"name":"Refunds","name_en":"refund-handling","category":"refund_cancellation","trigger_keywords":["refund"]}`)
	require.Equal(t, fiber.StatusCreated, status)

	var created domain.Skill
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "refund-handling", created.NameEn)
	assert.True(t, created.IsActive)

	status, env = s.do(t, "GET", "/api/v1/skills", "")
	require.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)

	status, env = s.do(t, "GET", "/api/v1/skills/"+created.ID, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, env.Success)

	status, env = s.do(t, "GET", "/api/v1/skills/categories", "")
	assert.Equal(t, fiber.StatusOK, status)
	var categories []string
	require.NoError(t, json.Unmarshal(env.Data, &categories))
	assert.Equal(t, []string{"refund_cancellation"}, categories)
}

func TestSkillRouteErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing field", "POST", "/api/v1/skills", `{"name":"Refunds","category":"x"}`, fiber.StatusBadRequest, "MISSING_FIELD"},
		{"malformed body", "POST", "/api/v1/skills", `{"name":`, fiber.StatusBadRequest, "BAD_REQUEST"},
		{"unknown skill", "GET", "/api/v1/skills/nope", "", fiber.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, status)
			}
			if env.Success {
				t.Errorf("expected success false")
			}
			if env.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, env.Error.Code)
			}
		})
	}
}

func TestJobRoutes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	submitted, err := s.jobs.Submit(ctx, domain.JobSnapshotExport, struct{}{})
	require.NoError(t, err)
	require.Len(t, s.queue.jobs, 1)

	status, env := s.do(t, "GET", "/api/v1/jobs/"+submitted.ID, "")
	require.Equal(t, fiber.StatusOK, status)
	var got domain.Job
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, submitted.ID, got.ID)
	assert.Equal(t, domain.JobStarted, got.Status)

	status, _ = s.do(t, "POST", "/api/v1/jobs/"+submitted.ID+"/cancel", "")
	assert.Equal(t, fiber.StatusAccepted, status)

	status, env = s.do(t, "POST", "/api/v1/jobs/"+submitted.ID+"/cancel", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, _ = s.do(t, "GET", "/api/v1/jobs/missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, env = s.do(t, "GET", "/api/v1/jobs", "")
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = s.app.Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReadyReportsFailingCheck(t *testing.T) {
	app := fiber.New()
	NewHealthHandler().
		WithCheck("redis", HealthCheckerFunc(func(context.Context) error { return io.ErrUnexpectedEOF })).
		Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not ready", body.Status)
	assert.Contains(t, body.Checks["redis"], "unhealthy")
}
