package status

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/models"
)

// Writer owns one job's status snapshot and mirrors every change to the status
// file, the logger and an optional console stream as "[step] message".
// Progress never decreases within a run.
type Writer struct {
	mu          sync.Mutex
	statusPath  string
	resultsPath string
	console     io.Writer
	logger      arbor.ILogger
	now         func() time.Time
	current     models.SyncStatus
}

// NewWriter creates a writer. Empty paths disable the corresponding file.
func NewWriter(jobID, statusPath, resultsPath string, console io.Writer, logger arbor.ILogger) *Writer {
	return &Writer{
		statusPath:  statusPath,
		resultsPath: resultsPath,
		console:     console,
		logger:      logger,
		now:         time.Now,
		current: models.SyncStatus{
			JobID:       jobID,
			IsRunning:   true,
			CurrentStep: models.SyncStepInitializing,
		},
	}
}

// Snapshot returns a copy of the current status
func (w *Writer) Snapshot() models.SyncStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Update moves to step with message. Lower progress values are ignored.
func (w *Writer) Update(step models.SyncStep, progress int, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current.CurrentStep = step
	w.current.Message = message
	w.current.IsRunning = !step.IsTerminal()
	if progress > w.current.Progress {
		w.current.Progress = clamp(progress)
	}
	return w.flush()
}

// SetTwoFactor publishes the number the user must enter in their authenticator
func (w *Writer) SetTwoFactor(code, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current.TwoFANumber = &code
	w.current.Message = message
	return w.flush()
}

// Fail records a terminal error. Progress is kept where it stopped.
func (w *Writer) Fail(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.current.CurrentStep = models.SyncStepError
	w.current.IsRunning = false
	w.current.Message = message
	w.current.Error = &message
	return w.flush()
}

// Complete writes the results file, then the final status
func (w *Writer) Complete(results models.SyncResults, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.resultsPath != "" {
		if err := WriteJSONAtomic(w.resultsPath, results); err != nil {
			return err
		}
	}

	w.current.CurrentStep = models.SyncStepCompleted
	w.current.IsRunning = false
	w.current.Progress = 100
	w.current.Message = message
	w.current.Results = &results
	return w.flush()
}

func (w *Writer) flush() error {
	w.current.UpdatedAt = w.now().UTC()

	if w.console != nil {
		fmt.Fprintf(w.console, "[%s] %s\n", w.current.CurrentStep, w.current.Message)
	}

	event := w.logger.Info()
	if w.current.CurrentStep == models.SyncStepError {
		event = w.logger.Error()
	}
	event.
		Str("job_id", w.current.JobID).
		Str("step", string(w.current.CurrentStep)).
		Int("progress", w.current.Progress).
		Msg(w.current.Message)

	if w.statusPath == "" {
		return nil
	}
	return WriteJSONAtomic(w.statusPath, w.current)
}

func clamp(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
