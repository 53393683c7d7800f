package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/supervisor"
)

// SyncSupervisor is the job supervisor surface the sync API needs
type SyncSupervisor interface {
	Start(ctx context.Context, username, password string) (*models.SyncStartResult, error)
	Status(ctx context.Context, jobID string) models.SyncStatus
	ListActive(ctx context.Context) map[string]models.SyncJobInfo
	Stop(ctx context.Context, jobID string) error
	Running() bool
	History(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error)
}

// StartSyncRequest is the body of POST /api/lms/sync
type StartSyncRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SyncHandler exposes the job supervisor over HTTP. It allows one running
// job at a time.
type SyncHandler struct {
	supervisor SyncSupervisor
	validate   *validator.Validate
	logger     arbor.ILogger

	startMu sync.Mutex
}

func NewSyncHandler(sup SyncSupervisor, logger arbor.ILogger) *SyncHandler {
	return &SyncHandler{
		supervisor: sup,
		validate:   validator.New(),
		logger:     logger,
	}
}

// StartHandler spawns a sync job. Returns 409 while another job is running.
func (h *SyncHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req StartSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	h.startMu.Lock()
	defer h.startMu.Unlock()

	if h.supervisor.Running() {
		WriteError(w, http.StatusConflict, "A sync is already in progress")
		return
	}

	// The worker outlives this request
	result, err := h.supervisor.Start(context.WithoutCancel(r.Context()), req.Username, req.Password)
	if err != nil {
		h.logger.Error().Err(err).Str("username", req.Username).Msg("Failed to start sync")
		WriteError(w, http.StatusInternalServerError, "Failed to start sync")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// StatusHandler returns the status of ?job_id= or the most recent job
func (h *SyncHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, h.supervisor.Status(r.Context(), r.URL.Query().Get("job_id")))
}

// JobsHandler lists tracked jobs after sweeping exited ones
func (h *SyncHandler) JobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, h.supervisor.ListActive(r.Context()))
}

// HistoryHandler lists persisted snapshots of cleaned-up jobs
func (h *SyncHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	records, err := h.supervisor.History(r.Context(), GetLimitParam(r, 0))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sync history")
		WriteError(w, http.StatusInternalServerError, "Failed to list sync history")
		return
	}
	if records == nil {
		records = []*models.SyncHistoryRecord{}
	}
	WriteJSON(w, http.StatusOK, records)
}

// JobRoutes handles /api/lms/sync/{job_id}/stop
func (h *SyncHandler) JobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/lms/sync/"), "/")
	jobID, action, ok := strings.Cut(rest, "/")
	if !ok || jobID == "" || action != "stop" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	err := h.supervisor.Stop(r.Context(), jobID)
	switch {
	case errors.Is(err, supervisor.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "Sync job not found")
	case errors.Is(err, supervisor.ErrJobNotRunning):
		WriteError(w, http.StatusConflict, "Sync job is not running")
	case err != nil:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to stop sync")
		WriteError(w, http.StatusInternalServerError, "Failed to stop sync")
	default:
		WriteSuccess(w, "Sync stopped")
	}
}
