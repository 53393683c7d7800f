package lmssync

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/crawler"
)

// CourseSelector picks the course to scrape. courses may be empty, in which
// case a selector can fall back to a manual course id.
type CourseSelector interface {
	SelectCourse(ctx context.Context, courses []models.CourseRef) (models.CourseRef, error)
}

// AutoSelector picks CourseID when set, else the first discovered course
type AutoSelector struct {
	CourseID   string
	CourseName string
}

func (s AutoSelector) SelectCourse(ctx context.Context, courses []models.CourseRef) (models.CourseRef, error) {
	if s.CourseID == "" {
		if len(courses) == 0 {
			return models.CourseRef{}, crawler.ErrNoCourses
		}
		return courses[0], nil
	}

	for _, c := range courses {
		if c.CourseID == s.CourseID {
			if s.CourseName != "" {
				c.CourseName = s.CourseName
			}
			return c, nil
		}
	}

	// Not on the dashboard: use it as a manual override
	return manualCourse(s.CourseID, s.CourseName), nil
}

func manualCourse(id, name string) models.CourseRef {
	name = strings.TrimSpace(name)
	if name == "" {
		name = crawler.DefaultCourseName(id)
	}
	return models.CourseRef{CourseID: id, CourseName: name}
}

var numericID = regexp.MustCompile(`^\d+$`)

// InteractiveSelector prompts on a terminal with a numbered course list, or
// for a manual course id when discovery found nothing
type InteractiveSelector struct {
	in  *bufio.Reader
	out io.Writer
}

// NewInteractiveSelector reads answers from in and writes prompts to out
func NewInteractiveSelector(in io.Reader, out io.Writer) *InteractiveSelector {
	return &InteractiveSelector{in: bufio.NewReader(in), out: out}
}

func (s *InteractiveSelector) SelectCourse(ctx context.Context, courses []models.CourseRef) (models.CourseRef, error) {
	if len(courses) == 0 {
		return s.manualInput(ctx)
	}

	fmt.Fprintf(s.out, "\nAvailable courses (%d):\n", len(courses))
	for i, c := range courses {
		fmt.Fprintf(s.out, "  %2d. %s (ID: %s)\n", i+1, c.CourseName, c.CourseID)
	}

	for {
		if err := ctx.Err(); err != nil {
			return models.CourseRef{}, err
		}
		answer, err := s.prompt(fmt.Sprintf("Select a course (1-%d): ", len(courses)))
		if err != nil {
			return models.CourseRef{}, err
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(courses) {
			fmt.Fprintf(s.out, "Please enter a number between 1 and %d\n", len(courses))
			continue
		}
		return courses[n-1], nil
	}
}

func (s *InteractiveSelector) manualInput(ctx context.Context) (models.CourseRef, error) {
	fmt.Fprintln(s.out, "\nNo courses were found on the dashboard. Enter a course manually.")
	fmt.Fprintln(s.out, "The course id is the number in URLs such as /d2l/home/1006419")

	for {
		if err := ctx.Err(); err != nil {
			return models.CourseRef{}, err
		}
		id, err := s.prompt("Course ID: ")
		if err != nil {
			return models.CourseRef{}, err
		}
		if !numericID.MatchString(id) {
			fmt.Fprintln(s.out, "Course ID must be numeric")
			continue
		}

		name, err := s.prompt("Course name (optional): ")
		if err != nil && err != io.EOF {
			return models.CourseRef{}, err
		}
		return manualCourse(id, name), nil
	}
}

// prompt returns the trimmed answer. EOF with no input is an error.
func (s *InteractiveSelector) prompt(question string) (string, error) {
	fmt.Fprint(s.out, question)
	line, err := s.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil {
		if err == io.EOF && line != "" {
			return line, nil
		}
		return line, err
	}
	return line, nil
}
