package interfaces

import (
	"context"
	"strings"
	"time"
)

// Selector locates elements on a page. CSS is required; when Text is set the
// element's visible text must also contain it (case-insensitive).
type Selector struct {
	CSS  string
	Text string
}

// CSS builds a plain CSS selector
func CSS(query string) Selector {
	return Selector{CSS: query}
}

// CSSWithText builds a CSS selector constrained by contained text
func CSSWithText(query, text string) Selector {
	return Selector{CSS: query, Text: text}
}

// TextMatch matches any element whose own text contains text
func TextMatch(text string) Selector {
	return Selector{CSS: "a, button, input[type=submit], input[type=button], span, div, p, label, h1, h2, h3, li", Text: text}
}

func (s Selector) String() string {
	if s.Text == "" {
		return s.CSS
	}
	var b strings.Builder
	b.WriteString(s.CSS)
	b.WriteString(`:has-text("`)
	b.WriteString(s.Text)
	b.WriteString(`")`)
	return b.String()
}

// Download is a file captured from the browser
type Download struct {
	SuggestedFilename string // Name proposed by the server
	Path              string // Where the browser wrote the bytes
}

// Page is the browser capability the login, 2FA and discovery logic drive.
// Probe methods (IsVisible, Count) report absence as false/0 rather than error.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	// Content returns the serialized document HTML
	Content(ctx context.Context) (string, error)
	// WaitLoad waits for DOM ready followed by a network-idle quiet period
	WaitLoad(ctx context.Context) error

	WaitForSelector(ctx context.Context, sel Selector, timeout time.Duration) error
	WaitForDetached(ctx context.Context, sel Selector, timeout time.Duration) error
	IsVisible(ctx context.Context, sel Selector) (bool, error)
	Count(ctx context.Context, sel Selector) (int, error)
	InnerText(ctx context.Context, sel Selector) (string, error)
	// VisibleTexts returns the innerText of every visible element matching css
	VisibleTexts(ctx context.Context, css string) ([]string, error)

	Click(ctx context.Context, sel Selector) error
	Fill(ctx context.Context, sel Selector, value string) error
	// Press sends a named key ("Enter", "Tab") to the focused element
	Press(ctx context.Context, key string) error

	// ExpectDownload runs trigger and waits for the download it starts
	ExpectDownload(ctx context.Context, trigger func(ctx context.Context) error, timeout time.Duration) (*Download, error)

	TabCount(ctx context.Context) (int, error)
	// CloseExtraTabs closes tabs opened after the session started and returns how many were closed
	CloseExtraTabs(ctx context.Context) (int, error)
	BringToFront(ctx context.Context) error
}

// BrowserSession owns one browser process and its primary page
type BrowserSession interface {
	Page() Page
	Close() error
}

// BrowserLauncher starts browser sessions
type BrowserLauncher interface {
	Launch(ctx context.Context) (BrowserSession, error)
}
