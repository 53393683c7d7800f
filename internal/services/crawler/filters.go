package crawler

import "regexp"

// Dashboard links into course tools rather than course homes
var excludedLinkPatterns = compilePatterns(
	`/d2l/le/userprogress/`,
	`/d2l/le/news/`,
	`/d2l/le/calendar/`,
	`/d2l/le/manageCourses/`,
	`/d2l/le/discovery/`,
	`/d2l/le/email/`,
	`/d2l/le/discussions/`,
	`/d2l/le/dropbox/`,
	`/d2l/le/quizzes/`,
	`/d2l/le/grades/`,
	`/d2l/le/assignments/`,
	`/d2l/le/checklist/`,
	`/d2l/le/surveys/`,
	`/d2l/le/selfassessments/`,
	`/d2l/le/competencies/`,
	`/d2l/le/rubrics/`,
	`/d2l/le/outcomes/`,
	`/d2l/le/attendance/`,
	`/d2l/le/group/`,
	`/d2l/le/classlist/`,
	`/d2l/le/content/.*?/View`,
)

// Course id patterns, most specific first
var courseIDPatterns = compilePatterns(
	`/d2l/home/(\d+)`,
	`/d2l/le/content/(\d+)/Home`,
	`/d2l/le/content/(\d+)/`,
	`/d2l/le/(\d+)/`,
)

func compilePatterns(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// IsExcludedLink reports whether href points at a non-course dashboard tool
func IsExcludedLink(href string) bool {
	for _, re := range excludedLinkPatterns {
		if re.MatchString(href) {
			return true
		}
	}
	return false
}

// ExtractCourseID returns the course id in href using the first matching pattern
func ExtractCourseID(href string) (string, bool) {
	for _, re := range courseIDPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1], true
		}
	}
	return "", false
}
