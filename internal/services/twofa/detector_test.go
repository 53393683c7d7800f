package twofa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/browser/browsertest"
	"github.com/eduseek/eduseek/internal/models"
)

func TestDetectCode_DirectElement(t *testing.T) {
	page := browsertest.NewFakePage("https://login.microsoftonline.com/common/SAS/BeginAuth")
	page.Show(DisplaySignSelector, " 73 ")
	page.SetTextBlocks(TextBearingElements, "Enter the number shown to sign in 11")

	d := NewDetector(time.Millisecond, arbor.NewNoOpLogger())
	got, err := d.DetectCode(context.Background(), page)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "73", got.Code)
	assert.Equal(t, models.TwoFactorTierDirect, got.Tier)
}

func TestDetectCode_FallsBackToText(t *testing.T) {
	page := browsertest.NewFakePage("https://login.microsoftonline.com/")
	page.Show(DisplaySignSelector, "no number here")
	page.SetTextBlocks(TextBearingElements,
		"Enter the number shown to sign in: 42",
		"Don't ask again for 14 days",
	)

	d := NewDetector(time.Millisecond, arbor.NewNoOpLogger())
	got, err := d.DetectCode(context.Background(), page)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.Code)
}

func TestDetectCode_NothingFound(t *testing.T) {
	page := browsertest.NewFakePage("https://login.microsoftonline.com/")

	d := NewDetector(time.Millisecond, arbor.NewNoOpLogger())
	got, err := d.DetectCode(context.Background(), page)
	require.NoError(t, err)
	assert.Nil(t, got)
}
