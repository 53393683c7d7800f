package interfaces

import (
	"context"
	"errors"

	"github.com/eduseek/eduseek/internal/models"
)

// ErrRecordNotFound is returned when a history record does not exist
var ErrRecordNotFound = errors.New("record not found")

// SyncHistoryStorage persists terminal snapshots of finished sync jobs
type SyncHistoryStorage interface {
	SaveRecord(ctx context.Context, record *models.SyncHistoryRecord) error
	GetRecord(ctx context.Context, jobID string) (*models.SyncHistoryRecord, error)
	// ListRecords returns the newest records first
	ListRecords(ctx context.Context, limit int) ([]*models.SyncHistoryRecord, error)
	DeleteRecord(ctx context.Context, jobID string) error
}
