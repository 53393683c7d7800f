package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
)

var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
	"chrome",
}

// testBrowserConfig locates a local Chrome or skips the test
func testBrowserConfig(t *testing.T) common.BrowserConfig {
	t.Helper()

	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}

	var execPath string
	for _, name := range chromeNames {
		if p, err := exec.LookPath(name); err == nil {
			execPath = p
			break
		}
	}
	if execPath == "" {
		t.Skip("no Chrome binary found on PATH")
	}

	return common.BrowserConfig{
		Headless:          true,
		NoSandbox:         true,
		ExecPath:          execPath,
		NavigationTimeout: common.Dur(15 * time.Second),
		NetworkIdle:       common.Dur(200 * time.Millisecond),
	}
}

const testPageHTML = `<!DOCTYPE html>
<html><head><title>Course Home</title></head>
<body>
  <h1 id="heading">Welcome back</h1>
  <ul><li class="course">Algorithms</li><li class="course">Databases</li></ul>
  <input id="q" type="text">
  <a id="download" href="/archive.zip">Download</a>
</body></html>`

func newTestSite(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(testPageHTML))
	})
	mux.HandleFunc("/archive.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="content.zip"`)
		w.Write([]byte("PK-not-really-a-zip"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func launchTestSession(t *testing.T) *Session {
	t.Helper()

	launcher := NewLauncher(testBrowserConfig(t), arbor.NewNoOpLogger())
	sess, err := launcher.Launch(context.Background())
	require.NoError(t, err)

	session := sess.(*Session)
	t.Cleanup(func() { session.Close() })
	return session
}

func TestLaunch_SessionOutlivesLaunch(t *testing.T) {
	session := launchTestSession(t)
	site := newTestSite(t)
	page := session.Page()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The browser must still be running once Launch has returned
	require.NoError(t, session.page.tabCtx.Err())
	require.NoError(t, page.Navigate(ctx, site.URL))
	require.NoError(t, page.WaitLoad(ctx))

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Course Home", title)

	url, err := page.URL(ctx)
	require.NoError(t, err)
	assert.Contains(t, url, site.URL)
}

func TestPage_QueriesAndActions(t *testing.T) {
	session := launchTestSession(t)
	site := newTestSite(t)
	page := session.Page()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, page.Navigate(ctx, site.URL))
	require.NoError(t, page.WaitLoad(ctx))

	visible, err := page.IsVisible(ctx, interfaces.CSS("#heading"))
	require.NoError(t, err)
	assert.True(t, visible)

	visible, err = page.IsVisible(ctx, interfaces.CSS("#missing"))
	require.NoError(t, err)
	assert.False(t, visible)

	n, err := page.Count(ctx, interfaces.CSS("li.course"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	text, err := page.InnerText(ctx, interfaces.CSS("#heading"))
	require.NoError(t, err)
	assert.Equal(t, "Welcome back", text)

	texts, err := page.VisibleTexts(ctx, "li.course")
	require.NoError(t, err)
	assert.Equal(t, []string{"Algorithms", "Databases"}, texts)

	require.NoError(t, page.WaitForSelector(ctx, interfaces.CSSWithText("li", "databases"), 2*time.Second))
	assert.Error(t, page.WaitForSelector(ctx, interfaces.CSS("#never"), 300*time.Millisecond))

	require.NoError(t, page.Fill(ctx, interfaces.CSS("#q"), "cisc"))
	var value string
	require.NoError(t, session.page.evaluate(ctx, `document.querySelector("#q").value`, &value))
	assert.Equal(t, "cisc", value)

	err = page.Click(ctx, interfaces.CSS("#missing"))
	assert.ErrorIs(t, err, ErrElementNotFound)

	tabs, err := page.TabCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tabs)
}

func TestPage_ExpectDownload(t *testing.T) {
	session := launchTestSession(t)
	site := newTestSite(t)
	page := session.Page()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, page.Navigate(ctx, site.URL))
	require.NoError(t, page.WaitLoad(ctx))

	download, err := page.ExpectDownload(ctx, func(ctx context.Context) error {
		return page.Click(ctx, interfaces.CSS("#download"))
	}, 15*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "content.zip", download.SuggestedFilename)
	data, err := os.ReadFile(download.Path)
	require.NoError(t, err)
	assert.Equal(t, "PK-not-really-a-zip", string(data))
}

func TestSession_CloseReleasesBrowser(t *testing.T) {
	session := launchTestSession(t)
	downloadDir := session.downloadDir

	require.NoError(t, session.Close())

	assert.Error(t, session.page.tabCtx.Err())
	_, err := os.Stat(downloadDir)
	assert.True(t, os.IsNotExist(err))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, session.Page().Navigate(ctx, "about:blank"))
}
