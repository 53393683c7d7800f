// Package auth drives the LMS single sign-on flow in a browser page.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/browser/probe"
	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
)

// CodeDetector extracts the number-matching code from a 2FA page
type CodeDetector interface {
	DetectCode(ctx context.Context, page interfaces.Page) (*models.TwoFactorChallenge, error)
}

// Credentials for one LMS account
type Credentials struct {
	Username string
	Password string
}

// StatusFunc receives human-readable progress. challenge is set once a 2FA code is known.
type StatusFunc func(message string, challenge *models.TwoFactorChallenge)

// LoginResult is the state of the page after credentials were submitted
type LoginResult struct {
	Outcome   Outcome
	Challenge *models.TwoFactorChallenge // Nil unless 2FA was required and a code was found
	URL       string
}

// Service performs SSO login against the LMS
type Service struct {
	lms      common.LMSConfig
	cfg      common.LoginConfig
	detector CodeDetector
	logger   arbor.ILogger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewService creates an auth service
func NewService(lms common.LMSConfig, cfg common.LoginConfig, detector CodeDetector, logger arbor.ILogger) *Service {
	return &Service{
		lms:      lms,
		cfg:      cfg,
		detector: detector,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func notify(onStatus StatusFunc, message string, challenge *models.TwoFactorChallenge) {
	if onStatus != nil {
		onStatus(message, challenge)
	}
}

// Login submits credentials and classifies the resulting page. A 2FA outcome
// is not an error: the caller surfaces the code and then calls
// AwaitTwoFactorCompletion.
func (s *Service) Login(ctx context.Context, page interfaces.Page, creds Credentials, onStatus StatusFunc) (*LoginResult, error) {
	notify(onStatus, "Opening LMS sign-in page...", nil)
	if err := page.Navigate(ctx, s.lms.BaseURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.lms.BaseURL, err)
	}
	s.settle(ctx, page)

	if sel, ok := probe.FirstMatch(ctx, page, SignInProbes(s.cfg.SelectorTimeout.Duration)); ok {
		s.logger.Debug().Str("selector", sel.String()).Msg("Clicking sign-in affordance")
		if err := page.Click(ctx, sel); err != nil {
			s.logger.Warn().Err(err).Str("selector", sel.String()).Msg("Sign-in click failed, continuing")
		} else {
			s.settle(ctx, page)
		}
	} else {
		s.logger.Debug().Msg("No sign-in affordance visible, assuming login form is presented directly")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	currentURL := s.currentURL(ctx, page)
	onIdP := s.isIdP(currentURL)
	s.logger.Info().Str("url", currentURL).Bool("identity_provider", onIdP).Msg("Login form reached")

	notify(onStatus, "Entering username...", nil)
	if err := s.fillUsername(ctx, page, creds.Username, onIdP); err != nil {
		return nil, err
	}
	s.submit(ctx, page)

	notify(onStatus, "Entering password...", nil)
	if err := page.WaitForSelector(ctx, passwordField, s.cfg.PasswordTimeout.Duration); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &LoginFieldNotFoundError{Field: "password", URL: s.currentURL(ctx, page)}
	}
	if err := page.Fill(ctx, passwordField, creds.Password); err != nil {
		return nil, fmt.Errorf("failed to fill password: %w", err)
	}
	s.submit(ctx, page)

	notify(onStatus, "Waiting for login result...", nil)
	if err := s.sleep(ctx, s.cfg.SettlePeriod.Duration); err != nil {
		return nil, err
	}
	if err := page.WaitLoad(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug().Err(err).Msg("Page load wait timed out after password submit, continuing")
	}

	currentURL = s.currentURL(ctx, page)
	content, err := page.Content(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read page content after password submit")
	}

	outcome := ClassifyPostSubmit(currentURL, content, s.lms.DashboardPatterns)
	s.logger.Info().Str("url", currentURL).Str("outcome", string(outcome)).Msg("Login submission classified")

	switch outcome {
	case OutcomeSuccess:
		notify(onStatus, "Login successful", nil)
		return &LoginResult{Outcome: outcome, URL: currentURL}, nil

	case OutcomeTwoFactorRequired:
		var challenge *models.TwoFactorChallenge
		if s.detector != nil {
			challenge, err = s.detector.DetectCode(ctx, page)
			if err != nil {
				return nil, err
			}
		}
		message := "Two-factor authentication required"
		if challenge != nil {
			message = fmt.Sprintf("Two-factor authentication required - enter %s on your phone", challenge.Code)
		}
		notify(onStatus, message, challenge)
		return &LoginResult{Outcome: outcome, Challenge: challenge, URL: currentURL}, nil
	}

	return nil, &LoginError{Reason: "could not detect 2FA or reach dashboard", URL: currentURL}
}

func (s *Service) fillUsername(ctx context.Context, page interfaces.Page, username string, onIdP bool) error {
	var (
		field interfaces.Selector
		ok    bool
		value = username
	)

	if onIdP {
		if err := page.WaitForSelector(ctx, idpFormReady, s.cfg.PasswordTimeout.Duration); err != nil {
			s.logger.Debug().Err(err).Msg("Identity provider form not visible yet, probing fields anyway")
		}
		field, ok = probe.FirstMatch(ctx, page, IdPUsernameProbes())
		value = NormalizeUsername(username, s.lms.EmailDomain)
	} else {
		field, ok = probe.FirstMatch(ctx, page, GenericUsernameProbes(s.cfg.SelectorTimeout.Duration))
	}

	if !ok {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &LoginFieldNotFoundError{Field: "username", URL: s.currentURL(ctx, page)}
	}

	s.logger.Info().Str("selector", field.String()).Str("username", value).Msg("Filling username")
	if err := page.Fill(ctx, field, value); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}
	return nil
}

// submit clicks the first visible submit control, or presses Enter
func (s *Service) submit(ctx context.Context, page interfaces.Page) {
	if sel, ok := probe.FirstMatch(ctx, page, SubmitProbes(s.cfg.SelectorTimeout.Duration)); ok {
		if err := page.Click(ctx, sel); err == nil {
			s.logger.Debug().Str("selector", sel.String()).Msg("Submitted form")
			s.settle(ctx, page)
			return
		}
	}

	s.logger.Debug().Msg("No submit control found, pressing Enter")
	if err := page.Press(ctx, "Enter"); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to press Enter")
	}
	_ = s.sleep(ctx, s.cfg.StepPause.Duration)
}

// settle waits for network idle then the step pause. Timeouts are not errors here.
func (s *Service) settle(ctx context.Context, page interfaces.Page) {
	if err := page.WaitLoad(ctx); err != nil && ctx.Err() == nil {
		s.logger.Debug().Err(err).Msg("Page load wait timed out, continuing")
	}
	_ = s.sleep(ctx, s.cfg.StepPause.Duration)
}

func (s *Service) currentURL(ctx context.Context, page interfaces.Page) string {
	u, err := page.URL(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read page URL")
		return ""
	}
	return u
}

func (s *Service) isIdP(rawURL string) bool {
	if s.lms.IdPHost == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(rawURL, s.lms.IdPHost)
	}
	return strings.EqualFold(u.Hostname(), s.lms.IdPHost)
}
