package twofa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduseek/eduseek/internal/models"
)

func TestExtractTwoDigitNumbers(t *testing.T) {
	assert.Equal(t, []string{"42"}, ExtractTwoDigitNumbers("Enter 42 now"))
	assert.Equal(t, []string{"12", "34"}, ExtractTwoDigitNumbers("12 and 34"))
	assert.Empty(t, ExtractTwoDigitNumbers("code 123 or 7"))
	assert.Empty(t, ExtractTwoDigitNumbers("abc12def"))
}

func TestScoreTextBlocks_DecoyExcluded(t *testing.T) {
	blocks := []string{
		"Enter the number shown to sign in: 42",
		"Don't ask again for 14 days",
	}

	got := ScoreTextBlocks(blocks)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.Code)
	assert.Equal(t, models.TwoFactorTierStrongSame, got.Tier)
}

func TestScoreTextBlocks_Tiers(t *testing.T) {
	tests := []struct {
		name     string
		blocks   []string
		wantCode string
		wantTier models.TwoFactorTier
	}{
		{
			name:     "following line after target phrase",
			blocks:   []string{"Approve sign in request\nOpen your Authenticator app, and enter the number shown to sign in.\n57"},
			wantCode: "57",
			wantTier: models.TwoFactorTierStrongFollows,
		},
		{
			name: "same line beats earlier following line",
			blocks: []string{
				"Open your authenticator app\n31",
				"Enter the number shown to sign in 88",
			},
			wantCode: "88",
			wantTier: models.TwoFactorTierStrongSame,
		},
		{
			name:     "weak context only",
			blocks:   []string{"Verification pending 63", "Random 11"},
			wantCode: "63",
			wantTier: models.TwoFactorTierWeak,
		},
		{
			name:     "curly apostrophe exclusion",
			blocks:   []string{"Don’t ask again for 30 days", "Approve 19"},
			wantCode: "19",
			wantTier: models.TwoFactorTierWeak,
		},
		{
			name: "exclusion wins over target on same line",
			blocks: []string{
				"Enter the number shown to sign in - stay signed in for 90 days",
				"Authenticator 22",
			},
			wantCode: "22",
			wantTier: models.TwoFactorTierWeak,
		},
		{
			name:     "previous line only counts within the same block",
			blocks:   []string{"Enter the number shown to sign in", "45"},
			wantCode: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreTextBlocks(tt.blocks)
			if tt.wantCode == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantTier, got.Tier)
		})
	}
}

func TestScoreTextBlocks_NoCandidates(t *testing.T) {
	assert.Nil(t, ScoreTextBlocks(nil))
	assert.Nil(t, ScoreTextBlocks([]string{"Welcome to the dashboard 2025"}))
}
