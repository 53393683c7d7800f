package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/app"
	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/handlers"
	"github.com/eduseek/eduseek/internal/models"
)

type stubSupervisor struct{}

func (stubSupervisor) Start(ctx context.Context, username, password string) (*models.SyncStartResult, error) {
	return &models.SyncStartResult{JobID: "abc12345", ProcessID: 1}, nil
}

func (stubSupervisor) Status(ctx context.Context, jobID string) models.SyncStatus {
	if jobID == "boom" {
		panic("status exploded")
	}
	return models.IdleStatus(jobID)
}

func (stubSupervisor) ListActive(ctx context.Context) map[string]models.SyncJobInfo {
	return map[string]models.SyncJobInfo{}
}

func (stubSupervisor) Stop(ctx context.Context, jobID string) error { return nil }

func (stubSupervisor) Running() bool { return false }

func (stubSupervisor) History(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	logger := arbor.NewNoOpLogger()
	sup := stubSupervisor{}
	application := &app.App{
		Config:        common.NewDefaultConfig(),
		Logger:        logger,
		APIHandler:    handlers.NewAPIHandler(logger),
		SyncHandler:   handlers.NewSyncHandler(sup, logger),
		StreamHandler: handlers.NewStreamHandler(sup, 10*time.Millisecond, logger),
	}
	return New(application).Handler()
}

func TestRoutes_Health(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoutes_StatusDefaultsToIdle(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync/status?job_id=nope", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SyncStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.IsRunning)
	assert.Equal(t, models.SyncStepIdle, status.CurrentStep)
}

func TestRoutes_Preflight(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/lms/sync", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRoutes_UnknownPath(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes_PanicRecovered(t *testing.T) {
	h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lms/sync/status?job_id=boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
