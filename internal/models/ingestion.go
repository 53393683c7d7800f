package models

import "time"

// IngestionStatus is the outcome of one upload attempt
type IngestionStatus string

const (
	IngestionUploaded  IngestionStatus = "uploaded"
	IngestionDuplicate IngestionStatus = "duplicate"
	IngestionFailed    IngestionStatus = "failed"
	IngestionMissing   IngestionStatus = "missing"
)

// IngestionAttempt is one immutable audit log record
type IngestionAttempt struct {
	Filename      string          `json:"filename"`
	Path          string          `json:"path"`
	CourseID      string          `json:"course_id,omitempty"`
	CourseName    string          `json:"course_name,omitempty"`
	ScrapeBatchID string          `json:"scrape_batch_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Status        IngestionStatus `json:"status"`
	ContentHash   *string         `json:"content_hash"`
	HTTPStatus    int             `json:"http_status,omitempty"`
	DocumentID    string          `json:"document_id,omitempty"` // Backend id returned on upload
	Error         string          `json:"error,omitempty"`
}

// IngestionCounts aggregates a batch run
type IngestionCounts struct {
	Uploaded  int `json:"uploaded"`
	Duplicate int `json:"duplicates"`
	Failed    int `json:"failed"`
	Missing   int `json:"missing"`
}

// Record increments the counter for status
func (c *IngestionCounts) Record(status IngestionStatus) {
	switch status {
	case IngestionUploaded:
		c.Uploaded++
	case IngestionDuplicate:
		c.Duplicate++
	case IngestionFailed:
		c.Failed++
	case IngestionMissing:
		c.Missing++
	}
}

// Total returns the number of recorded attempts
func (c IngestionCounts) Total() int {
	return c.Uploaded + c.Duplicate + c.Failed + c.Missing
}
