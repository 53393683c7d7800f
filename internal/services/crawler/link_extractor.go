// -----------------------------------------------------------------------
// Link Extractor - Course link discovery from dashboard HTML
// -----------------------------------------------------------------------

package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/models"
)

// Selector strategies for course anchors, tried in order
var courseLinkSelectors = []string{
	`a[href*="/d2l/le/content/"]`,
	`[class*="course-card"] a`,
	`[class*="d2l-course"] a`,
	`[class*="course"] a`,
	`a[href*="/d2l/le/"]`,
}

// Ancestor containers searched for a course name when link text is too short
var nameContainerSelectors = []string{
	`div[class*="course"]`,
	`div[class*="d2l"]`,
	`div[class*="card"]`,
	`div[class*="title"]`,
	`div[class*="name"]`,
}

// LinkExtractor finds course links in dashboard HTML
type LinkExtractor struct {
	logger arbor.ILogger
}

// NewLinkExtractor creates a new link extractor
func NewLinkExtractor(logger arbor.ILogger) *LinkExtractor {
	return &LinkExtractor{
		logger: logger,
	}
}

// ExtractLinks returns candidate course links de-duplicated by href, in selector order
func (le *LinkExtractor) ExtractLinks(html string) ([]CourseLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard HTML: %w", err)
	}

	var links []CourseLink
	seen := make(map[string]bool)

	for _, selector := range courseLinkSelectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			href, exists := s.Attr("href")
			href = strings.TrimSpace(href)
			if !exists || href == "" || seen[href] {
				return
			}
			seen[href] = true

			link := CourseLink{
				Href: href,
				Text: strings.TrimSpace(s.Text()),
			}
			if len(link.Text) < minCourseNameLength {
				link.ContainerText = containerText(s)
			}
			links = append(links, link)
		})
	}

	le.logger.Debug().Int("links_found", len(links)).Msg("Course links extracted from dashboard")
	return links, nil
}

// containerText returns the text of the nearest ancestor matching each
// container selector in turn, skipping texts that are too short. The nearest
// match is used because the outermost one on a dashboard is typically the
// grid wrapping every course tile.
func containerText(s *goquery.Selection) string {
	for _, selector := range nameContainerSelectors {
		parent := s.ParentsFiltered(selector).First()
		if parent.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(parent.Text()); len(text) > minCourseNameLength {
			return text
		}
	}
	return ""
}

// BuildCourseRefs filters links and extracts course ids and names.
// The first link for a course id wins.
func (le *LinkExtractor) BuildCourseRefs(links []CourseLink) []models.CourseRef {
	var courses []models.CourseRef
	seen := make(map[string]bool)

	for _, link := range links {
		if IsExcludedLink(link.Href) {
			continue
		}

		courseID, ok := ExtractCourseID(link.Href)
		if !ok {
			continue
		}
		if seen[courseID] {
			le.logger.Debug().Str("course_id", courseID).Str("href", link.Href).Msg("Duplicate course id skipped")
			continue
		}
		seen[courseID] = true

		name := link.Text
		if len(strings.TrimSpace(name)) < minCourseNameLength && link.ContainerText != "" {
			name = link.ContainerText
		}

		courses = append(courses, models.CourseRef{
			CourseID:   courseID,
			CourseName: CleanCourseName(name, courseID),
			Href:       link.Href,
		})
	}

	return courses
}

// ExtractCourses parses dashboard HTML into course references
func (le *LinkExtractor) ExtractCourses(html string) ([]models.CourseRef, error) {
	links, err := le.ExtractLinks(html)
	if err != nil {
		return nil, err
	}
	return le.BuildCourseRefs(links), nil
}
