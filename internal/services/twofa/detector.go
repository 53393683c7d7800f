// Package twofa extracts the number-matching code shown during Microsoft sign-in.
package twofa

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
)

// DisplaySignSelector is the element Microsoft renders the number into
var DisplaySignSelector = interfaces.CSS("#idRichContext_DisplaySign")

// TextBearingElements are scanned when the display element is missing
const TextBearingElements = "p, div, span, h1, h2, h3, h4, h5, h6, label, button"

// Detector runs the tiered code search against a live page
type Detector struct {
	logger             arbor.ILogger
	displaySignTimeout time.Duration
}

// NewDetector creates a detector. displaySignTimeout bounds the tier 1 wait.
func NewDetector(displaySignTimeout time.Duration, logger arbor.ILogger) *Detector {
	return &Detector{
		logger:             logger,
		displaySignTimeout: displaySignTimeout,
	}
}

// DetectCode returns the 2FA challenge or nil when no number could be found.
// Errors are only returned for context cancellation.
func (d *Detector) DetectCode(ctx context.Context, page interfaces.Page) (*models.TwoFactorChallenge, error) {
	if challenge := d.detectDirect(ctx, page); challenge != nil {
		return challenge, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blocks, err := page.VisibleTexts(ctx, TextBearingElements)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Failed to read visible text for 2FA scoring")
		return nil, ctx.Err()
	}

	challenge := ScoreTextBlocks(blocks)
	if challenge == nil {
		d.logger.Warn().Int("blocks", len(blocks)).Msg("No 2FA number found in page text")
		return nil, nil
	}

	d.logger.Info().
		Str("code", challenge.Code).
		Str("tier", string(challenge.Tier)).
		Str("evidence", challenge.Evidence).
		Msg("2FA number selected from page text")
	return challenge, nil
}

func (d *Detector) detectDirect(ctx context.Context, page interfaces.Page) *models.TwoFactorChallenge {
	if err := page.WaitForSelector(ctx, DisplaySignSelector, d.displaySignTimeout); err != nil {
		d.logger.Debug().Err(err).Msg("2FA display element not found, falling back to text scoring")
		return nil
	}

	text, err := page.InnerText(ctx, DisplaySignSelector)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Failed to read 2FA display element")
		return nil
	}

	numbers := ExtractTwoDigitNumbers(text)
	if len(numbers) == 0 {
		d.logger.Warn().Str("text", text).Msg("2FA display element has no 2-digit number")
		return nil
	}

	d.logger.Info().Str("code", numbers[0]).Msg("2FA number read from display element")
	return &models.TwoFactorChallenge{
		Code:     numbers[0],
		Tier:     models.TwoFactorTierDirect,
		Evidence: text,
	}
}
