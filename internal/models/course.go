// -----------------------------------------------------------------------
// Courses and scraped files
// -----------------------------------------------------------------------

package models

// CourseRef identifies one LMS course. Unique by CourseID within a discovery pass.
type CourseRef struct {
	CourseID   string `json:"course_id"`
	CourseName string `json:"course_name"`
	Href       string `json:"href,omitempty"` // Dashboard link the course was discovered from (empty for manual input)
}

// SourceArchiveDownload marks files that came from a "download all content" archive
const SourceArchiveDownload = "archive_download"

// File type categories inferred from extension
const (
	FileTypePDF        = "pdf"
	FileTypeHTML       = "html"
	FileTypeWord       = "word"
	FileTypePowerPoint = "powerpoint"
	FileTypeExcel      = "excel"
	FileTypeText       = "text"
	FileTypeCompressed = "compressed"
	FileTypeOther      = "other"
)

// ScrapedFileEntry is one file extracted from a course archive.
// RelativePath is slash-separated and relative to the batch extraction root.
type ScrapedFileEntry struct {
	Filename      string `json:"filename"`
	RelativePath  string `json:"path"`
	FileType      string `json:"file_type"`
	Source        string `json:"source"`
	ScrapeBatchID string `json:"scrape_batch_id"`
}
