package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/agenthub/internal/models"
	"github.com/ternarybob/arbor"
)

// MockTaskService is a mock implementation of interfaces.TaskService
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) Create(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	args := m.Called(ctx, req)
	task, _ := args.Get(0).(*models.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) Get(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*models.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) List(ctx context.Context) ([]*models.Task, error) {
	args := m.Called(ctx)
	tasks, _ := args.Get(0).([]*models.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskService) Cancel(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*models.Task)
	return task, args.Error(1)
}

// MockSubscriptionService is a mock implementation of interfaces.SubscriptionService
type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Create(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	args := m.Called(ctx, req)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func (m *MockSubscriptionService) Get(ctx context.Context, id string) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func (m *MockSubscriptionService) List(ctx context.Context) ([]*models.Subscription, error) {
	args := m.Called(ctx)
	subs, _ := args.Get(0).([]*models.Subscription)
	return subs, args.Error(1)
}

func (m *MockSubscriptionService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSubscriptionService) SetActive(ctx context.Context, id string, active bool) (*models.Subscription, error) {
	args := m.Called(ctx, id, active)
	sub, _ := args.Get(0).(*models.Subscription)
	return sub, args.Error(1)
}

func (m *MockSubscriptionService) Refresh(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockDownloadService is a mock implementation of interfaces.DownloadService
type MockDownloadService struct {
	mock.Mock
}

func (m *MockDownloadService) Analyze(ctx context.Context, url string) ([]models.DownloadCandidate, error) {
	args := m.Called(ctx, url)
	c, _ := args.Get(0).([]models.DownloadCandidate)
	return c, args.Error(1)
}

func (m *MockDownloadService) Start(ctx context.Context, req models.StartDownloadRequest) (*models.Download, error) {
	args := m.Called(ctx, req)
	d, _ := args.Get(0).(*models.Download)
	return d, args.Error(1)
}

func (m *MockDownloadService) List(ctx context.Context) ([]*models.Download, error) {
	args := m.Called(ctx)
	d, _ := args.Get(0).([]*models.Download)
	return d, args.Error(1)
}

// MockTrackService is a mock implementation of interfaces.TrackService
type MockTrackService struct {
	mock.Mock
}

func (m *MockTrackService) Create(ctx context.Context, req models.CreateTrackRequest) (*models.Track, error) {
	args := m.Called(ctx, req)
	track, _ := args.Get(0).(*models.Track)
	return track, args.Error(1)
}

func (m *MockTrackService) Get(ctx context.Context, id string) (*models.Track, error) {
	args := m.Called(ctx, id)
	track, _ := args.Get(0).(*models.Track)
	return track, args.Error(1)
}

func (m *MockTrackService) List(ctx context.Context) ([]*models.Track, error) {
	args := m.Called(ctx)
	tracks, _ := args.Get(0).([]*models.Track)
	return tracks, args.Error(1)
}

func (m *MockTrackService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTrackService) SetActive(ctx context.Context, id string, active bool) (*models.Track, error) {
	args := m.Called(ctx, id, active)
	track, _ := args.Get(0).(*models.Track)
	return track, args.Error(1)
}

func (m *MockTrackService) Refresh(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func serve(t *testing.T, pattern string, handler http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForError(common.NewValidationError("name", "is required")))
	assert.Equal(t, http.StatusNotFound, StatusForError(common.NotFoundError("task", "x")))
	assert.Equal(t, http.StatusConflict, StatusForError(common.ConflictError("already %s", "done")))
	assert.Equal(t, http.StatusBadGateway, StatusForError(&common.UpstreamError{Kind: common.UpstreamNetwork, Err: errors.New("x")}))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForError(fmt.Errorf("task engine: %w", common.ErrClosed)))
	assert.Equal(t, http.StatusInternalServerError, StatusForError(errors.New("disk full")))
}

func TestTaskHandler_Create(t *testing.T) {
	tasks := new(MockTaskService)
	tasks.On("Create", mock.Anything, models.CreateTaskRequest{Type: "download", Name: "x"}).
		Return(&models.Task{ID: "t1", Type: "download", Name: "x", Status: models.TaskStatusPending}, nil)

	h := NewTaskHandler(tasks, arbor.NewLogger())
	rec, body := serve(t, "POST /api/task/create", h.CreateHandler, http.MethodPost, "/api/task/create", `{"type":"download","name":"x"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, true, body["success"])
	task := body["task"].(map[string]interface{})
	assert.Equal(t, "t1", task["id"])
	assert.Equal(t, "pending", task["status"])
	tasks.AssertExpectations(t)
}

func TestTaskHandler_CreateRejectsBadBody(t *testing.T) {
	h := NewTaskHandler(new(MockTaskService), arbor.NewLogger())

	rec, body := serve(t, "POST /api/task/create", h.CreateHandler, http.MethodPost, "/api/task/create", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])

	rec, _ = serve(t, "POST /api/task/create", h.CreateHandler, http.MethodPost, "/api/task/create", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTaskHandler_GetAndCancelErrors(t *testing.T) {
	tasks := new(MockTaskService)
	tasks.On("Get", mock.Anything, "missing").Return(nil, common.NotFoundError("task", "missing"))
	tasks.On("Cancel", mock.Anything, "done").Return(nil, common.ConflictError("task %s is already completed", "done"))

	h := NewTaskHandler(tasks, arbor.NewLogger())

	rec, body := serve(t, "GET /api/task/{id}", h.GetHandler, http.MethodGet, "/api/task/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = serve(t, "POST /api/task/{id}/cancel", h.CancelHandler, http.MethodPost, "/api/task/done/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTaskHandler_InternalErrorIsOpaque(t *testing.T) {
	tasks := new(MockTaskService)
	tasks.On("List", mock.Anything).Return(nil, errors.New("badger: corrupted value log"))

	h := NewTaskHandler(tasks, arbor.NewLogger())
	rec, body := serve(t, "GET /api/task/list", h.ListHandler, http.MethodGet, "/api/task/list", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])
}

func TestTrackHandler_CreateRejectsUnknownPlatform(t *testing.T) {
	tracks := new(MockTrackService)
	req := models.CreateTrackRequest{Keyword: "go", Platforms: []string{"myspace"}}
	tracks.On("Create", mock.Anything, req).
		Return(nil, common.NewValidationError("platforms", `unknown platform "myspace" (known: baidu, weibo, zhihu)`))

	h := NewTrackHandler(tracks, arbor.NewLogger())
	rec, body := serve(t, "POST /api/track/create", h.CreateHandler, http.MethodPost, "/api/track/create", `{"keyword":"go","platforms":["myspace"]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "myspace")
	tracks.AssertExpectations(t)
}

func TestSubscriptionHandler_RefreshSwallowsUpstreamFailure(t *testing.T) {
	subs := new(MockSubscriptionService)
	subs.On("Refresh", mock.Anything, "s1").Return(&common.UpstreamError{Kind: common.UpstreamTimeout, Err: context.DeadlineExceeded})
	subs.On("Get", mock.Anything, "s1").Return(&models.Subscription{ID: "s1", LastError: "timeout", Items: []models.SubscriptionItem{}}, nil)

	h := NewSubscriptionHandler(subs, arbor.NewLogger())
	rec, body := serve(t, "POST /api/subscribe/{id}/refresh", h.RefreshHandler, http.MethodPost, "/api/subscribe/s1/refresh", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	sub := body["subscription"].(map[string]interface{})
	assert.Equal(t, "s1", sub["id"])
	subs.AssertExpectations(t)
}

func TestSubscriptionHandler_DeleteAndSetActive(t *testing.T) {
	subs := new(MockSubscriptionService)
	subs.On("Delete", mock.Anything, "s1").Return(nil)
	subs.On("SetActive", mock.Anything, "s1", false).Return(&models.Subscription{ID: "s1", Active: false}, nil)

	h := NewSubscriptionHandler(subs, arbor.NewLogger())

	rec, body := serve(t, "DELETE /api/subscribe/{id}", h.DeleteHandler, http.MethodDelete, "/api/subscribe/s1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"success": true}, body)

	rec, body = serve(t, "PUT /api/subscribe/{id}/active", h.SetActiveHandler, http.MethodPut, "/api/subscribe/s1/active", `{"active":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["subscription"].(map[string]interface{})["active"])

	rec, _ = serve(t, "PUT /api/subscribe/{id}/active", h.SetActiveHandler, http.MethodPut, "/api/subscribe/s1/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	subs.AssertExpectations(t)
}

func TestDownloadHandler_AnalyzeUpstreamIs502(t *testing.T) {
	downloads := new(MockDownloadService)
	downloads.On("Analyze", mock.Anything, "https://down.example").
		Return(nil, &common.UpstreamError{Kind: common.UpstreamNetwork, URL: "https://down.example", Err: errors.New("refused")})
	downloads.On("Analyze", mock.Anything, "https://ok.example").
		Return([]models.DownloadCandidate{{ID: "c1", URL: "https://ok.example/a.zip", Filename: "a.zip", Size: "unknown", Type: "zip"}}, nil)

	h := NewDownloadHandler(downloads, arbor.NewLogger())

	rec, body := serve(t, "POST /api/download/analyze", h.AnalyzeHandler, http.MethodPost, "/api/download/analyze", `{"url":"https://down.example"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = serve(t, "POST /api/download/analyze", h.AnalyzeHandler, http.MethodPost, "/api/download/analyze", `{"url":"https://ok.example"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["downloads"], 1)
}

func TestAPIHandler_HealthAndVersion(t *testing.T) {
	h := NewAPIHandler(arbor.NewLogger())

	rec, body := serve(t, "GET /api/health", h.HealthHandler, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["time"])

	rec, body = serve(t, "GET /api/version", h.VersionHandler, http.MethodGet, "/api/version", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, common.GetVersion(), body["version"])
}
