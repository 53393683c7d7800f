package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/eduseek/eduseek/internal/models"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"forbidden characters", `Week 1: Intro/Notes?.pdf`, "Week 1_ Intro_Notes_.pdf"},
		{"trims dots and spaces", "  .hidden. ", "hidden"},
		{"plain", "Lecture.pdf", "Lecture.pdf"},
		{"all forbidden", `<>:"/\|?*`, "_________"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}

	long := strings.Repeat("a", 250)
	assert.Len(t, SanitizeFilename(long), 200)
}

func TestCleanCourseName(t *testing.T) {
	assert.Equal(t, "CISC 124 Intro", CleanCourseName("  CISC   124\n Intro ", "1"))
	assert.Equal(t, "Course 42", CleanCourseName("   ", "42"))

	long := strings.Repeat("x", 120)
	cleaned := CleanCourseName(long, "1")
	assert.Equal(t, strings.Repeat("x", 100)+"...", cleaned)
}

func TestMetadataFileName(t *testing.T) {
	assert.Equal(t, "course_files_from_zip_123_CISC 124_ Intro.json", MetadataFileName("123", "CISC 124: Intro"))
}

func TestInferFileType(t *testing.T) {
	tests := map[string]string{
		"notes.PDF":      models.FileTypePDF,
		"index.html":     models.FileTypeHTML,
		"a.doc":          models.FileTypeWord,
		"a.docx":         models.FileTypeWord,
		"slides.pptx":    models.FileTypePowerPoint,
		"grades.xls":     models.FileTypeExcel,
		"readme.txt":     models.FileTypeText,
		"bundle.rar":     models.FileTypeCompressed,
		"photo.png":      "png",
		"Makefile":       models.FileTypeOther,
		".env":           models.FileTypeOther,
		"sub/dir/a.xlsx": models.FileTypeExcel,
	}
	for name, expected := range tests {
		assert.Equal(t, expected, InferFileType(name), name)
	}
}

func TestExtractCourseID(t *testing.T) {
	tests := []struct {
		href string
		id   string
		ok   bool
	}{
		{"/d2l/home/1006419", "1006419", true},
		{"https://onq.queensu.ca/d2l/le/content/555/Home", "555", true},
		{"/d2l/le/content/777/viewContent/1", "777", true},
		{"/d2l/le/888/discussions", "888", true},
		{"/d2l/lp/profile", "", false},
	}
	for _, tt := range tests {
		id, ok := ExtractCourseID(tt.href)
		assert.Equal(t, tt.ok, ok, tt.href)
		assert.Equal(t, tt.id, id, tt.href)
	}
}

func TestIsExcludedLink(t *testing.T) {
	assert.True(t, IsExcludedLink("/d2l/le/news/123/list"))
	assert.True(t, IsExcludedLink("/d2l/le/grades/123/home"))
	assert.True(t, IsExcludedLink("/d2l/le/content/123/View"))
	assert.False(t, IsExcludedLink("/d2l/home/123"))
	assert.False(t, IsExcludedLink("/d2l/le/content/123/Home"))
}
