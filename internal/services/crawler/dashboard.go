package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eduseek/eduseek/internal/browser/probe"
	"github.com/eduseek/eduseek/internal/interfaces"
)

const dashboardPollInterval = time.Second

// Elements that show course tiles have rendered
var courseTileSelectors = []interfaces.Selector{
	interfaces.CSS(`[class*="course"]`),
	interfaces.CSS(`[class*="d2l-course"]`),
	interfaces.CSS(`a[href*="/d2l/le/"]`),
	interfaces.CSS(`[class*="card"]`),
	interfaces.CSS(`[class*="tile"]`),
}

// ErrDashboardNotReady means no course tile appeared before the readiness timeout
var ErrDashboardNotReady = fmt.Errorf("dashboard not ready: %w", ErrNoCourses)

// sessionExpired reports whether url is the identity provider or a sign-in page
func (s *Service) sessionExpired(url string) bool {
	if s.lms.IdPHost != "" && strings.Contains(url, s.lms.IdPHost) {
		return true
	}
	return strings.Contains(strings.ToLower(url), "signin")
}

func (s *Service) checkSession(ctx context.Context, page interfaces.Page) error {
	current, err := page.URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page URL: %w", err)
	}
	if s.sessionExpired(current) {
		s.logger.Warn().Str("url", current).Msg("Redirected to login, session expired")
		return ErrSessionExpired
	}
	return nil
}

// WaitForDashboardReady polls for course tiles on the dashboard
func (s *Service) WaitForDashboardReady(ctx context.Context, page interfaces.Page) error {
	current, err := page.URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page URL: %w", err)
	}
	if !strings.Contains(current, strings.TrimPrefix(s.lms.HomePath, "/")) {
		if err := page.Navigate(ctx, s.lms.HomeURL()); err != nil {
			return fmt.Errorf("failed to open dashboard: %w", err)
		}
	}
	if err := page.WaitLoad(ctx); err != nil {
		return fmt.Errorf("dashboard did not load: %w", err)
	}

	deadline := time.Now().Add(s.cfg.DashboardTimeout.Duration)
	probes := probe.All(courseTileSelectors, probe.Present)
	for {
		if err := s.checkSession(ctx, page); err != nil {
			return err
		}
		if sel, ok := probe.FirstMatch(ctx, page, probes); ok {
			s.logger.Debug().Str("selector", sel.String()).Msg("Dashboard ready")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !time.Now().Before(deadline) {
			s.logger.Warn().Dur("timeout", s.cfg.DashboardTimeout.Duration).Msg("No course elements found on dashboard")
			return ErrDashboardNotReady
		}
		if err := s.sleep(ctx, dashboardPollInterval); err != nil {
			return err
		}
	}
}
