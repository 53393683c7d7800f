package common

import (
	"time"

	"github.com/google/uuid"
)

// NewJobID generates a short job identifier: the first 8 characters of a random UUID
func NewJobID() string {
	return uuid.New().String()[:8]
}

// BatchTimestampFormat is shared by batch ids and rename suffixes
const BatchTimestampFormat = "20060102-150405"

// NewBatchID returns the scrape batch identifier for a discovery pass started at t
// Format: batch_<yyyymmdd-hhmmss>
func NewBatchID(t time.Time) string {
	return "batch_" + t.Format(BatchTimestampFormat)
}
