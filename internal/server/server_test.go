package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/agenthub/internal/app"
	"github.com/ternarybob/agenthub/internal/common"
	"github.com/ternarybob/arbor"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.InMemory = true
	cfg.Scheduler.Enabled = false
	cfg.Tasks.Steps = 4
	cfg.Tasks.Durations = map[string]string{"download": "40ms"}
	cfg.Tasks.Default = "40ms"

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	ts := httptest.NewServer(New(application).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, method, url, body string) (int, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	var err error
	if body != "" {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func TestServer_TaskRunsToCompletionAndNotifies(t *testing.T) {
	ts := newTestServer(t)

	code, body := call(t, http.MethodPost, ts.URL+"/api/task/create", `{"type":"download","name":"movie"}`)
	require.Equal(t, http.StatusOK, code, body)
	id := body["task"].(map[string]interface{})["id"].(string)

	assert.Eventually(t, func() bool {
		_, body := call(t, http.MethodGet, ts.URL+"/api/task/"+id, "")
		task := body["task"].(map[string]interface{})
		return task["status"] == "completed" && task["progress"] == float64(100)
	}, 3*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, body := call(t, http.MethodGet, ts.URL+"/api/notifications", "")
		list, _ := body["notifications"].([]interface{})
		for _, item := range list {
			if item.(map[string]interface{})["type"] == "task_completed" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	code, _ = call(t, http.MethodPost, ts.URL+"/api/task/"+id+"/cancel", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestServer_TrackCreateRefreshesInBackground(t *testing.T) {
	ts := newTestServer(t)

	code, body := call(t, http.MethodPost, ts.URL+"/api/track/create", `{"keyword":"golang","platforms":["Weibo","zhihu"]}`)
	require.Equal(t, http.StatusOK, code, body)
	track := body["track"].(map[string]interface{})
	assert.Equal(t, []interface{}{"weibo", "zhihu"}, track["platforms"])

	assert.Eventually(t, func() bool {
		_, body := call(t, http.MethodGet, ts.URL+"/api/track/list", "")
		tracks := body["tracks"].([]interface{})
		if len(tracks) != 1 {
			return false
		}
		results, _ := tracks[0].(map[string]interface{})["results"].([]interface{})
		return len(results) == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServer_ErrorsAreJSON(t *testing.T) {
	ts := newTestServer(t)

	code, body := call(t, http.MethodGet, ts.URL+"/api/nothing/here", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])

	code, body = call(t, http.MethodGet, ts.URL+"/api/task/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])

	code, body = call(t, http.MethodPost, ts.URL+"/api/subscribe/create", `{"name":"x","url":"ftp://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	code, _ := call(t, http.MethodOptions, ts.URL+"/api/task/create", "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestServer_SchedulerStatusWhenDisabled(t *testing.T) {
	ts := newTestServer(t)

	code, body := call(t, http.MethodGet, ts.URL+"/api/scheduler/status", "")
	require.Equal(t, http.StatusOK, code)
	status := body["scheduler"].(map[string]interface{})
	assert.Equal(t, false, status["enabled"])
	assert.Equal(t, false, status["running"])
}

func TestServer_RequestID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "trace-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get(RequestIDHeader))
}

func TestRecoveryMiddleware_RendersJSON500(t *testing.T) {
	application := &app.App{Logger: arbor.NewLogger()}
	s := &Server{app: application}

	handler := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}
