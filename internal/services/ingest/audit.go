package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/models"
)

// AuditLog is a JSON array of ingestion attempts persisted across runs.
// Appends are serialized in-process and written by atomic whole-file replace.
type AuditLog struct {
	path   string
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewAuditLog creates an audit log at path
func NewAuditLog(path string, logger arbor.ILogger) *AuditLog {
	return &AuditLog{
		path:   path,
		logger: logger,
	}
}

// Path returns the audit log file path
func (a *AuditLog) Path() string {
	return a.path
}

// Read returns the recorded attempts. A missing or corrupt file reads as empty.
func (a *AuditLog) Read() []models.IngestionAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read()
}

func (a *AuditLog) read() []models.IngestionAttempt {
	data, err := os.ReadFile(a.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.logger.Warn().Err(err).Str("path", a.path).Msg("Audit log unreadable, starting fresh")
		}
		return nil
	}

	var attempts []models.IngestionAttempt
	if err := json.Unmarshal(data, &attempts); err != nil {
		a.logger.Warn().Err(err).Str("path", a.path).Msg("Audit log corrupt, starting fresh")
		return nil
	}
	return attempts
}

// Append adds attempts to the end of the log
func (a *AuditLog) Append(attempts ...models.IngestionAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	merged := append(a.read(), attempts...)
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit log: %w", err)
	}

	if dir := filepath.Dir(a.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), filepath.Base(a.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create audit log temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close audit log: %w", err)
	}
	if err := os.Rename(tmp.Name(), a.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace audit log: %w", err)
	}
	return nil
}
