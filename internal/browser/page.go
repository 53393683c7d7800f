package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
)

const pollInterval = 100 * time.Millisecond

var keys = map[string]string{
	"Enter":     kb.Enter,
	"Tab":       kb.Tab,
	"Escape":    kb.Escape,
	"Backspace": kb.Backspace,
}

var _ interfaces.Page = (*Page)(nil)

// ErrElementNotFound is returned by actions on selectors with no visible match
var ErrElementNotFound = errors.New("element not found")

// Page drives one Chrome tab through chromedp
type Page struct {
	tabCtx      context.Context
	targetID    target.ID
	cfg         common.BrowserConfig
	downloadDir string
	logger      arbor.ILogger

	netMu        sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newPage(tabCtx context.Context, cfg common.BrowserConfig, downloadDir string, logger arbor.ILogger) *Page {
	p := &Page{
		tabCtx:       tabCtx,
		cfg:          cfg,
		downloadDir:  downloadDir,
		logger:       logger,
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		p.targetID = c.Target.TargetID
	}

	chromedp.ListenTarget(tabCtx, p.trackNetwork)
	return p
}

// trackNetwork keeps the in-flight request set used by WaitLoad
func (p *Page) trackNetwork(ev interface{}) {
	p.netMu.Lock()
	defer p.netMu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeWebSocket || e.Type == network.ResourceTypeEventSource {
			return
		}
		p.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(p.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(p.inflight, e.RequestID)
	default:
		return
	}
	p.lastActivity = time.Now()
}

func (p *Page) networkQuietFor() (int, time.Duration) {
	p.netMu.Lock()
	defer p.netMu.Unlock()
	return len(p.inflight), time.Since(p.lastActivity)
}

// run executes actions on the tab, bounded by ctx and timeout
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *Page) evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, p.cfg.NavigationTimeout.Duration, chromedp.Evaluate(script, res))
}

func (p *Page) poll(ctx context.Context, script string, timeout time.Duration) error {
	if timeout <= 0 {
		var ok bool
		if err := p.evaluate(ctx, script, &ok); err != nil {
			return err
		}
		if !ok {
			return context.DeadlineExceeded
		}
		return nil
	}
	return p.run(ctx, 0, chromedp.Poll(script, nil,
		chromedp.WithPollingInterval(pollInterval),
		chromedp.WithPollingTimeout(timeout),
	))
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.cfg.NavigationTimeout.Duration, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, p.cfg.NavigationTimeout.Duration, chromedp.Location(&url))
	return url, err
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, p.cfg.NavigationTimeout.Duration, chromedp.Title(&title))
	return title, err
}

func (p *Page) Content(ctx context.Context) (string, error) {
	var html string
	if err := p.evaluate(ctx, contentScript, &html); err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	return html, nil
}

// WaitLoad waits for document.readyState complete, then for a period with no
// requests in flight. A network that never goes quiet is logged, not failed.
func (p *Page) WaitLoad(ctx context.Context) error {
	if err := p.poll(ctx, readyStateScript, p.cfg.NavigationTimeout.Duration); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("wait for document ready: %w", err)
	}

	deadline := time.Now().Add(p.cfg.NavigationTimeout.Duration)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		inflight, quiet := p.networkQuietFor()
		if inflight == 0 && quiet >= p.cfg.NetworkIdle.Duration {
			return nil
		}
		if time.Now().After(deadline) {
			p.logger.Debug().Int("inflight", inflight).Msg("Network did not go idle before timeout")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Page) WaitForSelector(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	if err := p.poll(ctx, existsVisibleScript(sel), timeout); err != nil {
		return fmt.Errorf("wait for %s: %w", sel, err)
	}
	return nil
}

func (p *Page) WaitForDetached(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	if err := p.poll(ctx, detachedScript(sel), timeout); err != nil {
		return fmt.Errorf("wait for %s to detach: %w", sel, err)
	}
	return nil
}

func (p *Page) IsVisible(ctx context.Context, sel interfaces.Selector) (bool, error) {
	var visible bool
	err := p.evaluate(ctx, existsVisibleScript(sel), &visible)
	return visible, err
}

func (p *Page) Count(ctx context.Context, sel interfaces.Selector) (int, error) {
	var n int
	err := p.evaluate(ctx, countScript(sel), &n)
	return n, err
}

func (p *Page) InnerText(ctx context.Context, sel interfaces.Selector) (string, error) {
	var text *string
	if err := p.evaluate(ctx, innerTextScript(sel), &text); err != nil {
		return "", err
	}
	if text == nil {
		return "", fmt.Errorf("%s: %w", sel, ErrElementNotFound)
	}
	return *text, nil
}

func (p *Page) VisibleTexts(ctx context.Context, css string) ([]string, error) {
	var texts []string
	err := p.evaluate(ctx, visibleTextsScript(css), &texts)
	return texts, err
}

func (p *Page) Click(ctx context.Context, sel interfaces.Selector) error {
	var clicked bool
	if err := p.evaluate(ctx, clickScript(sel), &clicked); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	if !clicked {
		return fmt.Errorf("click %s: %w", sel, ErrElementNotFound)
	}
	return nil
}

// Fill focuses the field, clears it and types value as key events
func (p *Page) Fill(ctx context.Context, sel interfaces.Selector, value string) error {
	var focused bool
	if err := p.evaluate(ctx, focusClearScript(sel), &focused); err != nil {
		return fmt.Errorf("fill %s: %w", sel, err)
	}
	if !focused {
		return fmt.Errorf("fill %s: %w", sel, ErrElementNotFound)
	}
	return p.run(ctx, p.cfg.NavigationTimeout.Duration, chromedp.KeyEvent(value))
}

func (p *Page) Press(ctx context.Context, key string) error {
	k, ok := keys[key]
	if !ok {
		k = key
	}
	return p.run(ctx, p.cfg.NavigationTimeout.Duration, chromedp.KeyEvent(k))
}

// ExpectDownload listens for browser download events, runs trigger and waits
// for the download to complete. Files land in the session download directory
// under the browser-assigned GUID.
func (p *Page) ExpectDownload(ctx context.Context, trigger func(ctx context.Context) error, timeout time.Duration) (*interfaces.Download, error) {
	listenCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()

	type outcome struct {
		download *interfaces.Download
		err      error
	}
	done := make(chan outcome, 1)

	var mu sync.Mutex
	suggested := make(map[string]string)

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpbrowser.EventDownloadWillBegin:
			mu.Lock()
			suggested[e.GUID] = e.SuggestedFilename
			mu.Unlock()
			p.logger.Debug().Str("filename", e.SuggestedFilename).Str("url", e.URL).Msg("Download started")
		case *cdpbrowser.EventDownloadProgress:
			switch e.State {
			case cdpbrowser.DownloadProgressStateCompleted:
				mu.Lock()
				name := suggested[e.GUID]
				mu.Unlock()
				select {
				case done <- outcome{download: &interfaces.Download{
					SuggestedFilename: name,
					Path:              filepath.Join(p.downloadDir, e.GUID),
				}}:
				default:
				}
			case cdpbrowser.DownloadProgressStateCanceled:
				select {
				case done <- outcome{err: errors.New("download canceled")}:
				default:
				}
			}
		}
	})

	if err := trigger(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no download within %s: %w", timeout, context.DeadlineExceeded)
	case o := <-done:
		return o.download, o.err
	}
}

func (p *Page) pageTargets(ctx context.Context) ([]*target.Info, error) {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	pages := infos[:0]
	for _, info := range infos {
		if info.Type == "page" {
			pages = append(pages, info)
		}
	}
	return pages, nil
}

func (p *Page) TabCount(ctx context.Context) (int, error) {
	pages, err := p.pageTargets(ctx)
	return len(pages), err
}

// CloseExtraTabs closes every page target except the session's own tab
func (p *Page) CloseExtraTabs(ctx context.Context) (int, error) {
	pages, err := p.pageTargets(ctx)
	if err != nil {
		return 0, err
	}

	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Browser == nil {
		return 0, errors.New("no browser attached to page context")
	}

	closed := 0
	for _, info := range pages {
		if info.TargetID == p.targetID {
			continue
		}
		if err := target.CloseTarget(info.TargetID).Do(cdp.WithExecutor(ctx, c.Browser)); err != nil {
			p.logger.Debug().Err(err).Str("target_id", string(info.TargetID)).Msg("Failed to close tab")
			continue
		}
		closed++
	}
	return closed, nil
}

func (p *Page) BringToFront(ctx context.Context) error {
	return p.run(ctx, p.cfg.NavigationTimeout.Duration, page.BringToFront())
}
