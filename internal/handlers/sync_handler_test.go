package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/supervisor"
)

type mockSupervisor struct {
	mu       sync.Mutex
	running  bool
	startErr error
	stopErr  error
	started  []string
	stopped  []string
	statuses []models.SyncStatus // Returned in order; the last one repeats
	calls    int
	history  []*models.SyncHistoryRecord
	limit    int
}

func (m *mockSupervisor) Start(ctx context.Context, username, password string) (*models.SyncStartResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = append(m.started, username)
	m.running = true
	return &models.SyncStartResult{JobID: "abc12345", ProcessID: 4242}, nil
}

func (m *mockSupervisor) Status(ctx context.Context, jobID string) models.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return models.IdleStatus(jobID)
	}
	i := min(m.calls, len(m.statuses)-1)
	m.calls++
	return m.statuses[i]
}

func (m *mockSupervisor) ListActive(ctx context.Context) map[string]models.SyncJobInfo {
	return map[string]models.SyncJobInfo{
		"abc12345": {JobID: "abc12345", Username: "20abc", PID: 4242, IsRunning: true},
	}
}

func (m *mockSupervisor) Stop(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, jobID)
	return m.stopErr
}

func (m *mockSupervisor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockSupervisor) History(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error) {
	m.limit = limit
	return m.history, nil
}

func newSyncHandler(sup *mockSupervisor) *SyncHandler {
	return NewSyncHandler(sup, arbor.NewNoOpLogger())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestSyncHandler_Start(t *testing.T) {
	sup := &mockSupervisor{}
	h := newSyncHandler(sup)

	req := httptest.NewRequest(http.MethodPost, "/api/lms/sync", strings.NewReader(`{"username":"20abc","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.StartHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.SyncStartResult
	decodeBody(t, rec, &result)
	assert.Equal(t, "abc12345", result.JobID)
	assert.Equal(t, 4242, result.ProcessID)
	assert.Equal(t, []string{"20abc"}, sup.started)
}

func TestSyncHandler_StartConflictWhileRunning(t *testing.T) {
	sup := &mockSupervisor{running: true}
	h := newSyncHandler(sup)

	req := httptest.NewRequest(http.MethodPost, "/api/lms/sync", strings.NewReader(`{"username":"20abc","password":"pw"}`))
	rec := httptest.NewRecorder()
	h.StartHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, sup.started)
}

func TestSyncHandler_StartValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing password", `{"username":"20abc"}`},
		{"missing username", `{"password":"pw"}`},
		{"invalid json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := &mockSupervisor{}
			h := newSyncHandler(sup)

			rec := httptest.NewRecorder()
			h.StartHandler(rec, httptest.NewRequest(http.MethodPost, "/api/lms/sync", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, sup.started)
		})
	}
}

func TestSyncHandler_StartFailure(t *testing.T) {
	h := newSyncHandler(&mockSupervisor{startErr: errors.New("exec failed")})

	rec := httptest.NewRecorder()
	h.StartHandler(rec, httptest.NewRequest(http.MethodPost, "/api/lms/sync", strings.NewReader(`{"username":"a","password":"b"}`)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSyncHandler_StartMethod(t *testing.T) {
	h := newSyncHandler(&mockSupervisor{})

	rec := httptest.NewRecorder()
	h.StartHandler(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSyncHandler_Status(t *testing.T) {
	code := "42"
	sup := &mockSupervisor{statuses: []models.SyncStatus{{
		JobID:       "abc12345",
		IsRunning:   true,
		CurrentStep: models.SyncStepLogin,
		Progress:    10,
		TwoFANumber: &code,
	}}}
	h := newSyncHandler(sup)

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync/status?job_id=abc12345", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	assert.Equal(t, "login", body["current_step"])
	assert.Equal(t, "42", body["twofa_number"])
	assert.Equal(t, true, body["is_running"])
}

func TestSyncHandler_StatusIdle(t *testing.T) {
	h := newSyncHandler(&mockSupervisor{})

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync/status", nil))

	var st models.SyncStatus
	decodeBody(t, rec, &st)
	assert.Equal(t, models.SyncStepIdle, st.CurrentStep)
	assert.False(t, st.IsRunning)
}

func TestSyncHandler_Jobs(t *testing.T) {
	h := newSyncHandler(&mockSupervisor{})

	rec := httptest.NewRecorder()
	h.JobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync/jobs", nil))

	var jobs map[string]models.SyncJobInfo
	decodeBody(t, rec, &jobs)
	require.Contains(t, jobs, "abc12345")
	assert.Equal(t, 4242, jobs["abc12345"].PID)
}

func TestSyncHandler_History(t *testing.T) {
	sup := &mockSupervisor{}
	h := newSyncHandler(sup)

	rec := httptest.NewRecorder()
	h.HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync/history?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, sup.limit)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSyncHandler_Stop(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		method string
		err    error
		want   int
	}{
		{"stopped", "/api/lms/sync/abc12345/stop", http.MethodPost, nil, http.StatusOK},
		{"unknown job", "/api/lms/sync/nope/stop", http.MethodPost, supervisor.ErrJobNotFound, http.StatusNotFound},
		{"already exited", "/api/lms/sync/abc12345/stop", http.MethodPost, supervisor.ErrJobNotRunning, http.StatusConflict},
		{"wrong method", "/api/lms/sync/abc12345/stop", http.MethodGet, nil, http.StatusMethodNotAllowed},
		{"unknown action", "/api/lms/sync/abc12345/pause", http.MethodPost, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSyncHandler(&mockSupervisor{stopErr: tt.err})

			rec := httptest.NewRecorder()
			h.JobRoutes(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAPIHandler(t *testing.T) {
	h := NewAPIHandler(arbor.NewNoOpLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["go_version"])
}
