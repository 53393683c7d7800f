package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
)

// SyncHistoryStorage keeps terminal snapshots of cleaned-up sync jobs
type SyncHistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSyncHistoryStorage creates a history store on db
func NewSyncHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SyncHistoryStorage {
	return &SyncHistoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SyncHistoryStorage) SaveRecord(ctx context.Context, record *models.SyncHistoryRecord) error {
	if record == nil || record.JobID == "" {
		return errors.New("history record requires a job id")
	}
	if err := s.db.Store().Upsert(record.JobID, record); err != nil {
		return fmt.Errorf("failed to save history record: %w", err)
	}

	s.logger.Debug().
		Str("job_id", record.JobID).
		Str("step", string(record.Status.CurrentStep)).
		Msg("Saved sync history record")
	return nil
}

func (s *SyncHistoryStorage) GetRecord(ctx context.Context, jobID string) (*models.SyncHistoryRecord, error) {
	var record models.SyncHistoryRecord
	err := s.db.Store().Get(jobID, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}
	return &record, nil
}

// ListRecords returns records newest first. A limit of zero or less returns all.
func (s *SyncHistoryStorage) ListRecords(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error) {
	query := badgerhold.Where("JobID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.SyncHistoryRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}

	result := make([]*models.SyncHistoryRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *SyncHistoryStorage) DeleteRecord(ctx context.Context, jobID string) error {
	err := s.db.Store().Delete(jobID, &models.SyncHistoryRecord{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	return nil
}
