// Package browser binds interfaces.Page to a real Chrome instance via chromedp.
package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
)

// Launcher starts one Chrome process per session
type Launcher struct {
	cfg    common.BrowserConfig
	logger arbor.ILogger
}

// NewLauncher creates a chromedp launcher
func NewLauncher(cfg common.BrowserConfig, logger arbor.ILogger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		logger: logger,
	}
}

// Session owns a Chrome process, its primary tab and the download directory
type Session struct {
	page            *Page
	downloadDir     string
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	logger          arbor.ILogger
}

// Launch starts Chrome, verifies it responds and enables download events
func (l *Launcher) Launch(ctx context.Context) (interfaces.BrowserSession, error) {
	startTime := time.Now()

	downloadDir, err := os.MkdirTemp("", "eduseek-downloads-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-gpu", l.cfg.Headless),
		chromedp.Flag("no-sandbox", l.cfg.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
	)
	if l.cfg.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(l.cfg.UserAgent))
	}
	if l.cfg.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(l.cfg.ExecPath))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	fail := func(err error) (interfaces.BrowserSession, error) {
		browserCancel()
		allocatorCancel()
		os.RemoveAll(downloadDir)
		return nil, err
	}

	// The first Run starts Chrome and binds its process to browserCtx. It must
	// carry no deadline or the process dies when the deadline does.
	if err := chromedp.Run(browserCtx); err != nil {
		return fail(fmt.Errorf("failed to start browser: %w", err))
	}

	startupCtx, startupCancel := context.WithTimeout(browserCtx, l.cfg.NavigationTimeout.Duration)
	defer startupCancel()

	// Startup test, then download capture into downloadDir
	if err := chromedp.Run(startupCtx,
		chromedp.Navigate("about:blank"),
		network.Enable(),
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	); err != nil {
		return fail(fmt.Errorf("browser failed startup test: %w", err))
	}

	l.logger.Info().
		Bool("headless", l.cfg.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("Browser session started")

	return &Session{
		page:            newPage(browserCtx, l.cfg, downloadDir, l.logger),
		downloadDir:     downloadDir,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		logger:          l.logger,
	}, nil
}

// Page returns the session's primary tab
func (s *Session) Page() interfaces.Page {
	return s.page
}

// Close shuts Chrome down and removes captured downloads not yet moved away
func (s *Session) Close() error {
	if err := chromedp.Cancel(s.page.tabCtx); err != nil {
		s.logger.Debug().Err(err).Msg("Graceful browser shutdown failed")
	}
	s.browserCancel()
	s.allocatorCancel()

	if err := os.RemoveAll(s.downloadDir); err != nil {
		return fmt.Errorf("failed to remove download directory: %w", err)
	}
	s.logger.Debug().Msg("Browser session closed")
	return nil
}
