// -----------------------------------------------------------------------
// Sync jobs - status file, results file and supervisor snapshots
// -----------------------------------------------------------------------

package models

import "time"

// SyncStep names a pipeline stage as reported in the status file
type SyncStep string

const (
	SyncStepIdle         SyncStep = "idle"
	SyncStepInitializing SyncStep = "initializing"
	SyncStepLogin        SyncStep = "login"
	SyncStepScraping     SyncStep = "scraping"
	SyncStepProcessing   SyncStep = "processing"
	SyncStepIngesting    SyncStep = "ingesting"
	SyncStepCompleted    SyncStep = "completed"
	SyncStepError        SyncStep = "error"
	SyncStepStopped      SyncStep = "stopped"
)

// IsTerminal reports whether no further progress can follow this step
func (s SyncStep) IsTerminal() bool {
	switch s {
	case SyncStepCompleted, SyncStepError, SyncStepStopped, SyncStepIdle:
		return true
	}
	return false
}

// SyncStatus is the status file payload polled by the API layer
type SyncStatus struct {
	JobID       string       `json:"job_id"`
	IsRunning   bool         `json:"is_running"`
	CurrentStep SyncStep     `json:"current_step"`
	Progress    int          `json:"progress"`
	Message     string       `json:"message"`
	Error       *string      `json:"error"`
	TwoFANumber *string      `json:"twofa_number"`
	Results     *SyncResults `json:"results"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// IdleStatus is reported for unknown jobs or when nothing has run
func IdleStatus(jobID string) SyncStatus {
	return SyncStatus{
		JobID:       jobID,
		CurrentStep: SyncStepIdle,
		Message:     "No sync in progress",
	}
}

// SyncResults is written once to the results file at job completion
type SyncResults struct {
	Status     string             `json:"status"`
	Files      []ScrapedFileEntry `json:"files"`
	Uploaded   int                `json:"uploaded"`
	Duplicates int                `json:"duplicates"`
	Failed     int                `json:"failed"`
	Missing    int                `json:"missing"`
	CourseID   string             `json:"course_id"`
	CourseName string             `json:"course_name"`
	BatchID    string             `json:"batch_id"`
	TotalFiles int                `json:"total_files"`
}

// SyncJobInfo is one row of the supervisor's active job table
type SyncJobInfo struct {
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
	Username  string    `json:"username"`
	PID       int       `json:"pid"`
	IsRunning bool      `json:"is_running"`
}

// SyncStartResult is returned when a worker has been spawned
type SyncStartResult struct {
	JobID     string `json:"job_id"`
	ProcessID int    `json:"process_id"`
}

// SyncHistoryRecord is the persisted terminal snapshot of a cleaned-up job
type SyncHistoryRecord struct {
	JobID      string     `json:"job_id" badgerhold:"key"`
	Username   string     `json:"username" badgerhold:"index"`
	PID        int        `json:"pid"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	ExitCode   int        `json:"exit_code"`
	Status     SyncStatus `json:"status"`
}
