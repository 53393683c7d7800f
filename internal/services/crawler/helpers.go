package crawler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/eduseek/eduseek/internal/models"
)

const (
	maxFilenameLength   = 200
	maxCourseNameLength = 100
	minCourseNameLength = 3
)

var (
	forbiddenFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun          = regexp.MustCompile(`\s+`)
)

// SanitizeFilename replaces characters forbidden on common filesystems, trims
// dots and spaces from both ends and caps the length.
func SanitizeFilename(name string) string {
	name = forbiddenFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if utf8.RuneCountInString(name) > maxFilenameLength {
		name = string([]rune(name)[:maxFilenameLength])
	}
	return name
}

// CleanCourseName collapses whitespace and truncates long names
func CleanCourseName(name, courseID string) string {
	name = strings.TrimSpace(whitespaceRun.ReplaceAllString(name, " "))
	if name == "" {
		return DefaultCourseName(courseID)
	}
	if utf8.RuneCountInString(name) > maxCourseNameLength {
		name = string([]rune(name)[:maxCourseNameLength]) + "..."
	}
	return name
}

// DefaultCourseName is used when no readable name is available
func DefaultCourseName(courseID string) string {
	return "Course " + courseID
}

// MetadataFileName is the batch metadata file name for a course
func MetadataFileName(courseID, courseName string) string {
	return fmt.Sprintf("course_files_from_zip_%s_%s.json", courseID, SanitizeFilename(courseName))
}

var fileTypesByExtension = map[string]string{
	".pdf":  models.FileTypePDF,
	".html": models.FileTypeHTML,
	".doc":  models.FileTypeWord,
	".docx": models.FileTypeWord,
	".ppt":  models.FileTypePowerPoint,
	".pptx": models.FileTypePowerPoint,
	".xls":  models.FileTypeExcel,
	".xlsx": models.FileTypeExcel,
	".txt":  models.FileTypeText,
	".zip":  models.FileTypeCompressed,
	".rar":  models.FileTypeCompressed,
}

// InferFileType maps an extension to a category, else the bare extension, else "other"
func InferFileType(filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	if ext == strings.ToLower(base) {
		// Dotfiles such as ".env" have no extension
		ext = ""
	}
	if t, ok := fileTypesByExtension[ext]; ok {
		return t
	}
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		return ext
	}
	return models.FileTypeOther
}
