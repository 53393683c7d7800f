package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/eduseek/eduseek/internal/browser/browsertest"
	"github.com/eduseek/eduseek/internal/common"
	"github.com/eduseek/eduseek/internal/interfaces"
	"github.com/eduseek/eduseek/internal/models"
)

type stubDetector struct {
	challenge *models.TwoFactorChallenge
	calls     int
}

func (d *stubDetector) DetectCode(ctx context.Context, page interfaces.Page) (*models.TwoFactorChallenge, error) {
	d.calls++
	return d.challenge, nil
}

type statusLog struct {
	mu       sync.Mutex
	messages []string
	codes    []string
}

func (l *statusLog) record(message string, challenge *models.TwoFactorChallenge) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
	if challenge != nil {
		l.codes = append(l.codes, challenge.Code)
	}
}

func testConfig() (common.LMSConfig, common.LoginConfig) {
	cfg := common.NewDefaultConfig()
	login := common.LoginConfig{
		TwoFactorTimeout: common.Dur(2 * time.Second),
	}
	return cfg.LMS, login
}

func newTestService(detector CodeDetector) *Service {
	lms, login := testConfig()
	return NewService(lms, login, detector, arbor.NewNoOpLogger())
}

const (
	lmsRoot     = "https://onq.queensu.ca"
	lmsLogin    = "https://onq.queensu.ca/d2l/login"
	lmsHome     = "https://onq.queensu.ca/d2l/home"
	idpAuthURL  = "https://login.microsoftonline.com/common/oauth2/authorize?redirect_uri=https%3A%2F%2Fonq.queensu.ca%2Fd2l"
	idpBeginURL = "https://login.microsoftonline.com/common/SAS/BeginAuth"
	idpStayURL  = "https://login.microsoftonline.com/kmsi/SAS/ProcessAuth"
)

var (
	orgSignIn     = interfaces.TextMatch("Sign in with your organization")
	loginfmtField = interfaces.CSS(`input[name="loginfmt"]`)
	submitInput   = interfaces.CSS(`input[type="submit"]`)
)

// scriptIdPLogin wires a Microsoft SSO flow that ends on the 2FA prompt
func scriptIdPLogin(page *browsertest.FakePage) {
	page.OnNavigate(func(p *browsertest.FakePage, url string) {
		if url == lmsRoot {
			p.SetURL(lmsLogin)
			p.Show(orgSignIn, "Sign in with your organization")
		}
	})
	page.OnClick(orgSignIn, func(p *browsertest.FakePage) {
		p.SetURL(idpAuthURL)
		p.Show(idpFormReady, "")
		p.Show(loginfmtField, "")
		p.Show(submitInput, "Next")
	})

	submits := 0
	page.OnClick(submitInput, func(p *browsertest.FakePage) {
		submits++
		switch submits {
		case 1:
			p.Show(passwordField, "")
		case 2:
			p.SetURL(idpBeginURL)
			p.SetHTML("<div>Approve sign in request</div><div>Open your Authenticator app, and enter the number shown to sign in.</div>")
		}
	})
}

func TestLogin_IdPBranchRequiresTwoFactor(t *testing.T) {
	page := browsertest.NewFakePage("about:blank")
	scriptIdPLogin(page)

	detector := &stubDetector{challenge: &models.TwoFactorChallenge{Code: "42", Tier: models.TwoFactorTierDirect}}
	svc := newTestService(detector)
	status := &statusLog{}

	result, err := svc.Login(context.Background(), page, Credentials{Username: "20abc", Password: "secret"}, status.record)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTwoFactorRequired, result.Outcome)
	require.NotNil(t, result.Challenge)
	assert.Equal(t, "42", result.Challenge.Code)
	assert.Equal(t, 1, detector.calls)
	assert.Equal(t, []string{"42"}, status.codes)

	username, ok := page.Filled(loginfmtField)
	require.True(t, ok)
	assert.Equal(t, "20abc@queensu.ca", username)

	password, ok := page.Filled(passwordField)
	require.True(t, ok)
	assert.Equal(t, "secret", password)
}

func TestLogin_IdPFallbackFieldID(t *testing.T) {
	page := browsertest.NewFakePage("about:blank")
	page.OnNavigate(func(p *browsertest.FakePage, url string) {
		p.SetURL(idpAuthURL)
		p.Hidden(idpUsernameFallback)
		p.Show(passwordField, "")
	})
	page.OnPress("Enter", func(p *browsertest.FakePage) {
		p.SetURL(lmsHome)
	})

	svc := newTestService(nil)
	result, err := svc.Login(context.Background(), page, Credentials{Username: "someone@queensu.ca", Password: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)

	username, ok := page.Filled(idpUsernameFallback)
	require.True(t, ok)
	assert.Equal(t, "someone@queensu.ca", username)
}

func TestLogin_GenericBranchDirectSuccess(t *testing.T) {
	page := browsertest.NewFakePage("about:blank")
	usernameField := interfaces.CSS(`input[name="username"]`)

	page.OnNavigate(func(p *browsertest.FakePage, url string) {
		p.SetURL("https://lms.example.edu/login")
		p.Show(usernameField, "")
	})
	enters := 0
	page.OnPress("Enter", func(p *browsertest.FakePage) {
		enters++
		if enters == 1 {
			p.Show(passwordField, "")
			return
		}
		p.SetURL("https://lms.example.edu/d2l/home/6606")
	})

	svc := newTestService(nil)
	result, err := svc.Login(context.Background(), page, Credentials{Username: "netid", Password: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, []string{"Enter", "Enter"}, page.Keys())

	// Generic forms receive the username as typed
	username, _ := page.Filled(usernameField)
	assert.Equal(t, "netid", username)
}

func TestLogin_MissingUsernameField(t *testing.T) {
	page := browsertest.NewFakePage("about:blank")
	page.OnNavigate(func(p *browsertest.FakePage, url string) { p.SetURL(idpAuthURL) })

	svc := newTestService(nil)
	_, err := svc.Login(context.Background(), page, Credentials{Username: "u", Password: "p"}, nil)

	var fieldErr *LoginFieldNotFoundError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "username", fieldErr.Field)
	assert.True(t, errors.Is(err, ErrLoginFailed))
}

func TestLogin_MissingPasswordField(t *testing.T) {
	page := browsertest.NewFakePage("about:blank")
	page.OnNavigate(func(p *browsertest.FakePage, url string) {
		p.SetURL(idpAuthURL)
		p.Show(loginfmtField, "")
	})

	svc := newTestService(nil)
	_, err := svc.Login(context.Background(), page, Credentials{Username: "u", Password: "p"}, nil)

	var fieldErr *LoginFieldNotFoundError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, "password", fieldErr.Field)
	assert.Equal(t, idpAuthURL, fieldErr.URL)
}

func TestLogin_UnclassifiablePageFails(t *testing.T) {
	page := browsertest.NewFakePage("about:blank")
	page.OnNavigate(func(p *browsertest.FakePage, url string) {
		p.SetURL(idpAuthURL)
		p.Show(loginfmtField, "")
		p.Show(passwordField, "")
	})
	enters := 0
	page.OnPress("Enter", func(p *browsertest.FakePage) {
		enters++
		if enters == 2 {
			p.SetURL("https://login.microsoftonline.com/common/login")
			p.SetHTML("<div>Your account or password is incorrect.</div>")
		}
	})

	svc := newTestService(nil)
	_, err := svc.Login(context.Background(), page, Credentials{Username: "u", Password: "bad"}, nil)

	var loginErr *LoginError
	require.True(t, errors.As(err, &loginErr))
	assert.Equal(t, "https://login.microsoftonline.com/common/login", loginErr.URL)
}

func TestAwaitTwoFactorCompletion_DismissesInterstitial(t *testing.T) {
	page := browsertest.NewFakePage(idpBeginURL)
	page.SetURLSequence(idpBeginURL, idpStayURL)
	page.Show(staySignedInNoPrimary, "No")
	page.OnClick(staySignedInNoPrimary, func(p *browsertest.FakePage) {
		p.Remove(staySignedInNoPrimary)
		p.SetTabs(2)
		p.SetURL(lmsHome)
		p.Show(interfaces.CSS("d2l-navigation-sidenav"), "")
	})

	svc := newTestService(nil)
	status := &statusLog{}
	err := svc.AwaitTwoFactorCompletion(context.Background(), page, status.record)
	require.NoError(t, err)

	assert.Equal(t, []string{staySignedInNoPrimary.String()}, page.Clicks())
	assert.Equal(t, 1, page.ClosedTabs())
	assert.Equal(t, 1, page.BroughtToFront())
	assert.Contains(t, status.messages, "Login successful")
}

func TestAwaitTwoFactorCompletion_KeyboardFallback(t *testing.T) {
	page := browsertest.NewFakePage(idpStayURL)
	page.OnPress("Enter", func(p *browsertest.FakePage) {
		p.SetURL(lmsHome)
		p.SetHTML("<h1>My Courses</h1>")
	})

	svc := newTestService(nil)
	require.NoError(t, svc.AwaitTwoFactorCompletion(context.Background(), page, nil))
	assert.Equal(t, []string{"Tab", "Enter"}, page.Keys())
}

func TestAwaitTwoFactorCompletion_IgnoresDashboardURLWithoutMarkers(t *testing.T) {
	page := browsertest.NewFakePage(lmsHome)

	lms, login := testConfig()
	login.TwoFactorTimeout = common.Dur(30 * time.Millisecond)
	svc := NewService(lms, login, nil, arbor.NewNoOpLogger())

	err := svc.AwaitTwoFactorCompletion(context.Background(), page, nil)
	var timeoutErr *TwoFactorTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, lmsHome, timeoutErr.URL)
}

func TestAwaitTwoFactorCompletion_ContextCancelled(t *testing.T) {
	page := browsertest.NewFakePage(idpBeginURL)
	svc := newTestService(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.AwaitTwoFactorCompletion(ctx, page, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
