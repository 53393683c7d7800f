package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/eduseek/eduseek/internal/browser/probe"
	"github.com/eduseek/eduseek/internal/interfaces"
)

// StaySignedInURLFragment identifies the Microsoft "Stay signed in?" page
const StaySignedInURLFragment = "/SAS/ProcessAuth"

var (
	staySignedInNoPrimary  = interfaces.CSS("input#idBtn_Back")
	staySignedInNoFallback = interfaces.CSS(`input[type="button"][value="No"]`)

	dashboardElements = []interfaces.Selector{
		interfaces.CSS("d2l-navigation-sidenav"),
		interfaces.CSS(".d2l-navigation"),
		interfaces.CSS(`[data-role="navigation"]`),
	}

	dashboardTextMarkers = []string{"Dashboard", "My Courses"}
)

// DetectStaySignedIn reports whether the page is the "Stay signed in?" interstitial
// and how it was recognised. URL is checked first, then the "No" controls.
func DetectStaySignedIn(ctx context.Context, page interfaces.Page, currentURL string) (string, bool) {
	if strings.Contains(currentURL, StaySignedInURLFragment) {
		return "url", true
	}
	for _, sel := range []interfaces.Selector{staySignedInNoPrimary, staySignedInNoFallback} {
		if visible, err := page.IsVisible(ctx, sel); err == nil && visible {
			return "dom:" + sel.String(), true
		}
	}
	return "", false
}

// dismissStaySignedIn answers "No". Clicks the primary then the fallback
// control, closes tabs the click spawned, and uses Tab+Enter as last resort.
func (s *Service) dismissStaySignedIn(ctx context.Context, page interfaces.Page) (string, bool) {
	initialTabs, _ := page.TabCount(ctx)

	method := ""
	for _, sel := range []interfaces.Selector{staySignedInNoPrimary, staySignedInNoFallback} {
		if _, ok := probe.VisibleNow(sel)(ctx, page); !ok {
			continue
		}
		if err := page.Click(ctx, sel); err != nil {
			s.logger.Debug().Err(err).Str("selector", sel.String()).Msg("Stay-signed-in click failed")
			continue
		}
		method = sel.String()
		break
	}

	if tabs, err := page.TabCount(ctx); err == nil && initialTabs > 0 && tabs > initialTabs {
		closed, err := page.CloseExtraTabs(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close extra tabs")
		} else {
			s.logger.Info().Int("closed", closed).Msg("Closed tabs opened by stay-signed-in prompt")
		}
		if err := page.BringToFront(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to refocus original tab")
		}
	}

	if method == "" {
		tabErr := page.Press(ctx, "Tab")
		enterErr := page.Press(ctx, "Enter")
		if tabErr != nil || enterErr != nil {
			return "", false
		}
		method = "keyboard:Tab+Enter"
	}

	if err := page.WaitLoad(ctx); err != nil && ctx.Err() == nil {
		s.logger.Debug().Err(err).Msg("Navigation wait after stay-signed-in timed out")
	}
	_ = s.sleep(ctx, s.cfg.StepPause.Duration)
	return method, true
}

// isDashboardURL checks the LMS host or home route
func (s *Service) isDashboardURL(currentURL string) bool {
	if strings.Contains(urlLocation(currentURL), strings.ToLower(s.lms.HomePath)) && s.lms.HomePath != "" {
		return true
	}
	base, err := url.Parse(s.lms.BaseURL)
	if err != nil || base.Host == "" {
		return false
	}
	u, err := url.Parse(currentURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}

// confirmDashboard checks for a navigation element or a dashboard text marker
func (s *Service) confirmDashboard(ctx context.Context, page interfaces.Page) bool {
	if err := s.sleep(ctx, s.cfg.DashboardSettle.Duration); err != nil {
		return false
	}
	if sel, ok := probe.FirstMatch(ctx, page, probe.All(dashboardElements, probe.Within(s.cfg.SelectorTimeout.Duration))); ok {
		s.logger.Debug().Str("selector", sel.String()).Msg("Dashboard element confirmed")
		return true
	}

	content, err := page.Content(ctx)
	if err != nil {
		return false
	}
	for _, marker := range dashboardTextMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// AwaitTwoFactorCompletion polls until the LMS dashboard is reached, dismissing
// the "Stay signed in?" interstitial on the way.
func (s *Service) AwaitTwoFactorCompletion(ctx context.Context, page interfaces.Page, onStatus StatusFunc) error {
	timeout := s.cfg.TwoFactorTimeout.Duration
	deadline := time.Now().Add(timeout)

	notify(onStatus, "Waiting for two-factor approval...", nil)

	for time.Now().Before(deadline) {
		if err := s.sleep(ctx, s.cfg.TwoFactorPoll.Duration); err != nil {
			return err
		}

		currentURL := s.currentURL(ctx, page)

		if method, ok := DetectStaySignedIn(ctx, page, currentURL); ok {
			s.logger.Info().Str("detection", method).Str("url", currentURL).Msg("Stay-signed-in prompt detected, answering No")
			notify(onStatus, "Dismissing 'Stay signed in?' prompt...", nil)
			if clicked, ok := s.dismissStaySignedIn(ctx, page); ok {
				s.logger.Info().Str("method", clicked).Msg("Stay-signed-in prompt dismissed")
			} else {
				s.logger.Warn().Msg("All methods failed to dismiss stay-signed-in prompt")
			}
			continue
		}

		if s.isDashboardURL(currentURL) && s.confirmDashboard(ctx, page) {
			s.logger.Info().Str("url", currentURL).Msg("Dashboard reached after two-factor approval")
			notify(onStatus, "Login successful", nil)
			return nil
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return &TwoFactorTimeoutError{Timeout: timeout, URL: s.currentURL(ctx, page)}
}
