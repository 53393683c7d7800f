package crawler

import (
	"errors"
	"fmt"

	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/materialize"
)

var (
	// ErrSessionExpired means the LMS bounced back to the identity provider; re-authenticate
	ErrSessionExpired = errors.New("lms session expired")

	// ErrNoCourses means discovery found nothing and no manual course was supplied
	ErrNoCourses = errors.New("no courses discovered")
)

// ArchiveExtractionError wraps failures to read a downloaded course archive
type ArchiveExtractionError struct {
	Path string
	Err  error
}

func (e *ArchiveExtractionError) Error() string {
	return fmt.Sprintf("failed to extract archive %s: %v", e.Path, e.Err)
}

func (e *ArchiveExtractionError) Unwrap() error {
	return e.Err
}

// CourseLink is a candidate anchor found on the dashboard
type CourseLink struct {
	Href          string // Raw href attribute
	Text          string // Link text
	ContainerText string // Text of the nearest heading-like ancestor, used when Text is too short
}

// ScrapeResult is the outcome of scraping one course. Files is empty when the
// ToC, Download control or archive could not be processed.
type ScrapeResult struct {
	Course         models.CourseRef
	BatchID        string
	BatchRoot      string // Directory entry paths are relative to
	ArchivePath    string
	CourseJSONPath string
	Files          []models.ScrapedFileEntry
	Summary        materialize.Summary
}
