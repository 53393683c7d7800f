// Package supervisor runs sync jobs as separate worker processes and reports
// their state from the worker's status file and the process's liveness.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/status"
)

var (
	// ErrJobNotFound is returned for job ids the supervisor is not tracking
	ErrJobNotFound = errors.New("sync job not found")

	// ErrJobNotRunning is returned when stopping a job whose worker already exited
	ErrJobNotRunning = errors.New("sync job is not running")
)

// Supervisor spawns sync workers and tracks them until cleanup. It does not
// prevent concurrent jobs; callers decide whether a new start is allowed.
type Supervisor struct {
	cfg     common.SupervisorConfig
	history interfaces.SyncHistoryStorage
	logger  arbor.ILogger
	cron    *cron.Cron
	now     func() time.Time

	mu     sync.Mutex
	jobs   map[string]*job
	latest string
}

// NewSupervisor creates a supervisor. history may be nil, in which case
// cleaned-up jobs are forgotten.
func NewSupervisor(cfg common.SupervisorConfig, history interfaces.SyncHistoryStorage, logger arbor.ILogger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		history: history,
		logger:  logger,
		cron:    cron.New(),
		now:     time.Now,
		jobs:    make(map[string]*job),
	}
}

// Start spawns a worker for username and returns without waiting for it
func (s *Supervisor) Start(ctx context.Context, username, password string) (*models.SyncStartResult, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	argv, err := s.workerCommand()
	if err != nil {
		return nil, err
	}

	dir := s.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	jobID := common.NewJobID()
	j := &job{
		info: models.SyncJobInfo{
			JobID:     jobID,
			StartedAt: s.now().UTC(),
			Username:  username,
		},
		statusPath:  filepath.Join(dir, fmt.Sprintf("eduseek_sync_%s_status.json", jobID)),
		resultsPath: filepath.Join(dir, fmt.Sprintf("eduseek_sync_%s_results.json", jobID)),
		stderr:      newTailWriter(stderrTailSize),
		done:        make(chan struct{}),
	}

	initial := models.SyncStatus{
		JobID:       jobID,
		IsRunning:   true,
		CurrentStep: models.SyncStepInitializing,
		Message:     "Starting sync...",
		UpdatedAt:   s.now().UTC(),
	}
	if err := status.WriteJSONAtomic(j.statusPath, initial); err != nil {
		return nil, fmt.Errorf("failed to write initial status: %w", err)
	}

	args := append(argv[1:],
		"--username", username,
		"--password", password,
		"--status-file", j.statusPath,
		"--results-file", j.resultsPath,
	)
	cmd := exec.Command(argv[0], args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = j.stderr
	detach(cmd)
	j.cmd = cmd

	if err := cmd.Start(); err != nil {
		s.removeFiles(j)
		return nil, fmt.Errorf("failed to start sync worker: %w", err)
	}
	j.info.PID = cmd.Process.Pid
	go j.wait()

	s.mu.Lock()
	s.jobs[jobID] = j
	s.latest = jobID
	s.mu.Unlock()

	s.logger.Info().
		Str("job_id", jobID).
		Str("username", username).
		Int("pid", j.info.PID).
		Msg("Sync worker started")

	return &models.SyncStartResult{JobID: jobID, ProcessID: j.info.PID}, nil
}

func (s *Supervisor) workerCommand() ([]string, error) {
	if len(s.cfg.WorkerCommand) > 0 {
		return append([]string(nil), s.cfg.WorkerCommand...), nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve worker executable: %w", err)
	}
	return []string{exe, "sync"}, nil
}

// Status reports a job. An empty id means the most recently started job.
// Jobs no longer tracked fall back to history, then to an idle snapshot.
func (s *Supervisor) Status(ctx context.Context, jobID string) models.SyncStatus {
	s.mu.Lock()
	if jobID == "" {
		jobID = s.latest
	}
	j := s.jobs[jobID]
	s.mu.Unlock()

	if j != nil {
		return s.jobStatus(j)
	}

	if jobID != "" && s.history != nil {
		record, err := s.history.GetRecord(ctx, jobID)
		if err == nil {
			return record.Status
		}
		if !errors.Is(err, interfaces.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to read sync history")
		}
	}
	return models.IdleStatus(jobID)
}

// jobStatus merges the status file with process liveness. A worker that
// exited while its file still claims to be running is treated as crashed.
func (s *Supervisor) jobStatus(j *job) models.SyncStatus {
	running := !j.exited()

	var st models.SyncStatus
	if current, err := status.ReadStatus(j.statusPath); err == nil {
		st = *current
	} else {
		s.logger.Debug().Err(err).Str("job_id", j.info.JobID).Msg("Status file unreadable")
		st = models.SyncStatus{
			IsRunning:   true,
			CurrentStep: models.SyncStepInitializing,
			Message:     "Starting sync...",
		}
	}
	st.JobID = j.info.JobID

	if running || !st.IsRunning {
		return st
	}
	return s.recoverStatus(j, st)
}

func (s *Supervisor) recoverStatus(j *job, st models.SyncStatus) models.SyncStatus {
	st.IsRunning = false

	if j.stopped.Load() {
		st.CurrentStep = models.SyncStepStopped
		st.Message = "Sync stopped"
		return st
	}

	if j.exitCode == 0 {
		st.CurrentStep = models.SyncStepCompleted
		st.Progress = 100
		st.Message = "Sync completed"
		if results, err := status.ReadResults(j.resultsPath); err == nil {
			st.Results = results
		} else {
			s.logger.Debug().Err(err).Str("job_id", j.info.JobID).Msg("No results file for exited worker")
		}
		return st
	}

	message := fmt.Sprintf("Sync process exited with code %d", j.exitCode)
	if tail := j.stderr.String(); tail != "" {
		message = tail
	}
	st.CurrentStep = models.SyncStepError
	st.Message = message
	st.Error = &message

	s.logger.Warn().
		Str("job_id", j.info.JobID).
		Int("exit_code", j.exitCode).
		Msg("Sync worker exited without reporting completion")
	return st
}

// Running reports whether any tracked job's status says it is running
func (s *Supervisor) Running() bool {
	for _, j := range s.snapshot() {
		if s.jobStatus(j).IsRunning {
			return true
		}
	}
	return false
}

// ListActive sweeps exited jobs, then returns the jobs still tracked
func (s *Supervisor) ListActive(ctx context.Context) map[string]models.SyncJobInfo {
	s.Cleanup(ctx)

	active := make(map[string]models.SyncJobInfo)
	for _, j := range s.snapshot() {
		info := j.info
		info.IsRunning = !j.exited()
		active[info.JobID] = info
	}
	return active
}

func (s *Supervisor) snapshot() []*job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}

// Stop sends the worker SIGTERM and kills it if it has not exited within
// the grace period. The job is then reported as stopped.
func (s *Supervisor) Stop(ctx context.Context, jobID string) error {
	s.mu.Lock()
	j := s.jobs[jobID]
	if j == nil {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	if j.exited() {
		s.mu.Unlock()
		return ErrJobNotRunning
	}
	// Cleanup leaves the job alone until the stopped status is written
	j.stopping++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		j.stopping--
		s.mu.Unlock()
	}()

	j.stopped.Store(true)
	s.logger.Info().Str("job_id", jobID).Int("pid", j.info.PID).Msg("Stopping sync worker")

	if err := j.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Debug().Err(err).Str("job_id", jobID).Msg("SIGTERM failed, killing worker")
	}

	grace := s.cfg.StopGracePeriod.Duration
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-j.done:
	case <-timer.C:
		s.kill(j)
	case <-ctx.Done():
		s.kill(j)
	}

	st := s.jobStatus(j)
	st.IsRunning = false
	st.CurrentStep = models.SyncStepStopped
	st.Message = "Sync stopped by user"
	st.UpdatedAt = s.now().UTC()
	if err := status.WriteJSONAtomic(j.statusPath, st); err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to write stopped status")
	}
	return nil
}

func (s *Supervisor) kill(j *job) {
	s.logger.Warn().Str("job_id", j.info.JobID).Int("pid", j.info.PID).Msg("Worker did not exit in time, killing")
	if err := j.cmd.Process.Kill(); err != nil {
		s.logger.Debug().Err(err).Str("job_id", j.info.JobID).Msg("Kill failed")
	}
	<-j.done
}

// Cleanup records every exited job to history and removes its scratch
// files. It returns the number of jobs removed.
func (s *Supervisor) Cleanup(ctx context.Context) int {
	s.mu.Lock()
	var exited []*job
	for id, j := range s.jobs {
		if j.exited() && j.stopping == 0 {
			exited = append(exited, j)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	for _, j := range exited {
		s.saveHistory(ctx, j, s.jobStatus(j))
		s.removeFiles(j)
		s.logger.Debug().Str("job_id", j.info.JobID).Msg("Cleaned up sync job")
	}

	if len(exited) > 0 {
		s.pruneHistory(ctx)
	}
	return len(exited)
}

func (s *Supervisor) saveHistory(ctx context.Context, j *job, st models.SyncStatus) {
	if s.history == nil {
		return
	}
	record := &models.SyncHistoryRecord{
		JobID:      j.info.JobID,
		Username:   j.info.Username,
		PID:        j.info.PID,
		StartedAt:  j.info.StartedAt,
		FinishedAt: s.now().UTC(),
		ExitCode:   j.exitCode,
		Status:     st,
	}
	if err := s.history.SaveRecord(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("job_id", j.info.JobID).Msg("Failed to save sync history")
	}
}

func (s *Supervisor) pruneHistory(ctx context.Context) {
	if s.history == nil || s.cfg.HistoryLimit <= 0 {
		return
	}
	records, err := s.history.ListRecords(ctx, 0)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list sync history")
		return
	}
	for _, record := range records[min(len(records), s.cfg.HistoryLimit):] {
		if err := s.history.DeleteRecord(ctx, record.JobID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", record.JobID).Msg("Failed to prune sync history")
		}
	}
}

func (s *Supervisor) removeFiles(j *job) {
	for _, path := range []string{j.statusPath, j.resultsPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Debug().Err(err).Str("path", path).Msg("Failed to remove scratch file")
		}
	}
}

// History returns persisted snapshots, newest first
func (s *Supervisor) History(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error) {
	if s.history == nil {
		return []*models.SyncHistoryRecord{}, nil
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.history.ListRecords(ctx, limit)
}

// StartCleanup schedules Cleanup on cfg.CleanupSchedule
func (s *Supervisor) StartCleanup() error {
	schedule := s.cfg.CleanupSchedule
	if schedule == "" {
		schedule = "@every 1m"
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		if n := s.Cleanup(context.Background()); n > 0 {
			s.logger.Info().Int("removed", n).Msg("Sync job cleanup sweep")
		}
	}); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Msg("Sync job cleanup scheduled")
	return nil
}

// Close stops the cleanup schedule and terminates running workers
func (s *Supervisor) Close(ctx context.Context) {
	<-s.cron.Stop().Done()

	for _, j := range s.snapshot() {
		if j.exited() {
			continue
		}
		if err := s.Stop(ctx, j.info.JobID); err != nil && !errors.Is(err, ErrJobNotRunning) {
			s.logger.Warn().Err(err).Str("job_id", j.info.JobID).Msg("Failed to stop worker on shutdown")
		}
	}
	s.Cleanup(ctx)
}
