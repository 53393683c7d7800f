package lmssync

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduseek/eduseek/internal/models"
	"github.com/eduseek/eduseek/internal/services/crawler"
)

var discovered = []models.CourseRef{
	{CourseID: "1", CourseName: "First"},
	{CourseID: "2", CourseName: "Second"},
}

func TestAutoSelector(t *testing.T) {
	ctx := context.Background()

	c, err := AutoSelector{}.SelectCourse(ctx, discovered)
	require.NoError(t, err)
	assert.Equal(t, "1", c.CourseID)

	c, err = AutoSelector{CourseID: "2"}.SelectCourse(ctx, discovered)
	require.NoError(t, err)
	assert.Equal(t, "Second", c.CourseName)

	c, err = AutoSelector{CourseID: "2", CourseName: "Renamed"}.SelectCourse(ctx, discovered)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.CourseName)

	c, err = AutoSelector{CourseID: "9"}.SelectCourse(ctx, discovered)
	require.NoError(t, err)
	assert.Equal(t, models.CourseRef{CourseID: "9", CourseName: "Course 9"}, c)

	_, err = AutoSelector{}.SelectCourse(ctx, nil)
	assert.ErrorIs(t, err, crawler.ErrNoCourses)
}

func TestInteractiveSelector_RetriesInvalidInput(t *testing.T) {
	var out bytes.Buffer
	s := NewInteractiveSelector(strings.NewReader("abc\n5\n2\n"), &out)

	c, err := s.SelectCourse(context.Background(), discovered)
	require.NoError(t, err)
	assert.Equal(t, "2", c.CourseID)
	assert.Contains(t, out.String(), " 1. First (ID: 1)")
	assert.Equal(t, 2, strings.Count(out.String(), "Please enter a number between 1 and 2"))
}

func TestInteractiveSelector_ManualInput(t *testing.T) {
	var out bytes.Buffer
	s := NewInteractiveSelector(strings.NewReader("x12\n1006419\nCISC 124\n"), &out)

	c, err := s.SelectCourse(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.CourseRef{CourseID: "1006419", CourseName: "CISC 124"}, c)
	assert.Contains(t, out.String(), "Course ID must be numeric")
}

func TestInteractiveSelector_ManualInputDefaultName(t *testing.T) {
	s := NewInteractiveSelector(strings.NewReader("77\n"), &bytes.Buffer{})

	c, err := s.SelectCourse(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Course 77", c.CourseName)
}

func TestInteractiveSelector_EOF(t *testing.T) {
	s := NewInteractiveSelector(strings.NewReader(""), &bytes.Buffer{})

	_, err := s.SelectCourse(context.Background(), discovered)
	assert.Error(t, err)
}
