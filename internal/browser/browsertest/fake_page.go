// Package browsertest provides a scriptable in-memory Page for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eduseek/eduseek/internal/interfaces"
)

// ErrTimeout is returned by waits on elements that never appear
var ErrTimeout = errors.New("browsertest: timeout")

// Element is the fake DOM state for one selector
type Element struct {
	Visible bool
	Text    string
	Count   int // Defaults to 1 when zero
}

// Hook mutates the page in response to an interaction
type Hook func(p *FakePage)

// FakePage implements interfaces.Page over a map of selector strings.
// Selectors are keyed by interfaces.Selector.String().
type FakePage struct {
	mu sync.Mutex

	url         string
	urlSequence []string
	title       string
	html        string
	elements    map[string]*Element
	textBlocks  map[string][]string
	tabs        int

	download     *interfaces.Download
	downloadErr  error
	onNavigate   func(p *FakePage, url string)
	onClick      map[string]Hook
	onPress      map[string]Hook
	onWaitLoad   Hook
	failClicks   map[string]error
	navigations  []string
	clicks       []string
	fills        map[string]string
	keys         []string
	closedTabs   int
	broughtFront int
}

// NewFakePage creates a page at url with one tab
func NewFakePage(url string) *FakePage {
	return &FakePage{
		url:        url,
		elements:   make(map[string]*Element),
		textBlocks: make(map[string][]string),
		onClick:    make(map[string]Hook),
		onPress:    make(map[string]Hook),
		failClicks: make(map[string]error),
		fills:      make(map[string]string),
		tabs:       1,
	}
}

// --- scripting ---

func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.urlSequence = nil
}

// SetURLSequence makes successive URL() calls walk through urls, repeating the last
func (p *FakePage) SetURLSequence(urls ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urlSequence = append([]string(nil), urls...)
}

func (p *FakePage) SetTitle(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
}

func (p *FakePage) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// Show registers a visible element
func (p *FakePage) Show(sel interfaces.Selector, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[sel.String()] = &Element{Visible: true, Text: text}
}

// Hidden registers an element present in the DOM but not visible
func (p *FakePage) Hidden(sel interfaces.Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[sel.String()] = &Element{Visible: false}
}

// Remove deletes an element
func (p *FakePage) Remove(sel interfaces.Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, sel.String())
}

// SetTextBlocks sets the VisibleTexts result for css
func (p *FakePage) SetTextBlocks(css string, blocks ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textBlocks[css] = blocks
}

func (p *FakePage) SetTabs(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tabs = n
}

// SetDownload makes ExpectDownload return a file
func (p *FakePage) SetDownload(name, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.download = &interfaces.Download{SuggestedFilename: name, Path: path}
	p.downloadErr = nil
}

func (p *FakePage) SetDownloadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.download = nil
	p.downloadErr = err
}

func (p *FakePage) OnNavigate(fn func(p *FakePage, url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
}

func (p *FakePage) OnClick(sel interfaces.Selector, fn Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[sel.String()] = fn
}

func (p *FakePage) OnPress(key string, fn Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPress[key] = fn
}

func (p *FakePage) OnWaitLoad(fn Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWaitLoad = fn
}

// FailClick makes clicks on sel return err
func (p *FakePage) FailClick(sel interfaces.Selector, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failClicks[sel.String()] = err
}

// --- inspection ---

func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Filled returns the value filled into sel
func (p *FakePage) Filled(sel interfaces.Selector) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.fills[sel.String()]
	return v, ok
}

func (p *FakePage) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func (p *FakePage) ClosedTabs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closedTabs
}

func (p *FakePage) BroughtToFront() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.broughtFront
}

// --- interfaces.Page ---

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.urlSequence = nil
	p.navigations = append(p.navigations, url)
	hook := p.onNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urlSequence) > 0 {
		p.url = p.urlSequence[0]
		if len(p.urlSequence) > 1 {
			p.urlSequence = p.urlSequence[1:]
		}
	}
	return p.url, nil
}

func (p *FakePage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *FakePage) WaitLoad(ctx context.Context) error {
	p.mu.Lock()
	hook := p.onWaitLoad
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return ctx.Err()
}

func (p *FakePage) lookup(sel interfaces.Selector) (*Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[sel.String()]
	if !ok {
		return nil, false
	}
	copied := *el
	return &copied, true
}

func (p *FakePage) WaitForSelector(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if el, ok := p.lookup(sel); ok && el.Visible {
		return nil
	}
	return fmt.Errorf("waiting for %s: %w", sel, ErrTimeout)
}

func (p *FakePage) WaitForDetached(ctx context.Context, sel interfaces.Selector, timeout time.Duration) error {
	if _, ok := p.lookup(sel); ok {
		return fmt.Errorf("waiting for %s to detach: %w", sel, ErrTimeout)
	}
	return nil
}

func (p *FakePage) IsVisible(ctx context.Context, sel interfaces.Selector) (bool, error) {
	el, ok := p.lookup(sel)
	return ok && el.Visible, nil
}

func (p *FakePage) Count(ctx context.Context, sel interfaces.Selector) (int, error) {
	el, ok := p.lookup(sel)
	if !ok {
		return 0, nil
	}
	if el.Count > 0 {
		return el.Count, nil
	}
	return 1, nil
}

func (p *FakePage) InnerText(ctx context.Context, sel interfaces.Selector) (string, error) {
	el, ok := p.lookup(sel)
	if !ok {
		return "", fmt.Errorf("no element for %s", sel)
	}
	return el.Text, nil
}

func (p *FakePage) VisibleTexts(ctx context.Context, css string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.textBlocks[css]...), nil
}

func (p *FakePage) Click(ctx context.Context, sel interfaces.Selector) error {
	key := sel.String()
	p.mu.Lock()
	if err, ok := p.failClicks[key]; ok {
		p.mu.Unlock()
		return err
	}
	el, ok := p.elements[key]
	if !ok || !el.Visible {
		p.mu.Unlock()
		return fmt.Errorf("click %s: element not visible", key)
	}
	p.clicks = append(p.clicks, key)
	hook := p.onClick[key]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) Fill(ctx context.Context, sel interfaces.Selector, value string) error {
	key := sel.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.elements[key]; !ok {
		return fmt.Errorf("fill %s: no such element", key)
	}
	p.fills[key] = value
	return nil
}

func (p *FakePage) Press(ctx context.Context, key string) error {
	p.mu.Lock()
	p.keys = append(p.keys, key)
	hook := p.onPress[key]
	p.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) ExpectDownload(ctx context.Context, trigger func(ctx context.Context) error, timeout time.Duration) (*interfaces.Download, error) {
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.downloadErr != nil {
		return nil, p.downloadErr
	}
	if p.download == nil {
		return nil, fmt.Errorf("waiting for download: %w", ErrTimeout)
	}
	d := *p.download
	return &d, nil
}

func (p *FakePage) TabCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tabs, nil
}

func (p *FakePage) CloseExtraTabs(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	closed := p.tabs - 1
	if closed < 0 {
		closed = 0
	}
	p.tabs = 1
	p.closedTabs += closed
	return closed, nil
}

func (p *FakePage) BringToFront(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broughtFront++
	return nil
}

var _ interfaces.Page = (*FakePage)(nil)
