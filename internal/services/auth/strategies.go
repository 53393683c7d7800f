package auth

import (
	"time"

	"github.com/eduseek/eduseek/internal/browser/probe"
	"github.com/eduseek/eduseek/internal/interfaces"
)

var (
	signInAffordances = []interfaces.Selector{
		interfaces.TextMatch("Sign in with your organization"),
		interfaces.TextMatch("Sign in"),
		interfaces.TextMatch("Login"),
		interfaces.CSSWithText("button", "Sign in"),
		interfaces.CSSWithText("a", "Sign in"),
	}

	idpUsernameFields = []interfaces.Selector{
		interfaces.CSS(`input[name="loginfmt"]`),
		interfaces.CSS(`input[type="email"]`),
		interfaces.CSS(`input[name="email"]`),
		interfaces.CSS(`input[type="text"]`),
	}

	// Stable id of the Microsoft email field
	idpUsernameFallback = interfaces.CSS("#i0116")

	idpFormReady = interfaces.CSS(`input[type="email"], input[name="loginfmt"], input[name="email"], input[type="text"]`)

	genericUsernameFields = []interfaces.Selector{
		interfaces.CSS(`input[type="email"]`),
		interfaces.CSS(`input[name="userName"]`),
		interfaces.CSS(`input[name="username"]`),
		interfaces.CSS(`input[type="text"]`),
	}

	submitControls = []interfaces.Selector{
		interfaces.CSS(`input[type="submit"]`),
		interfaces.CSS(`button[type="submit"]`),
		interfaces.CSSWithText("button", "Next"),
		interfaces.CSSWithText("button", "Continue"),
	}

	passwordField = interfaces.CSS(`input[type="password"]`)
)

// SignInProbes returns the ordered sign-in affordance strategies
func SignInProbes(timeout time.Duration) []probe.Probe {
	return probe.All(signInAffordances, probe.Within(timeout))
}

// IdPUsernameProbes returns the identity-provider username strategies, ending with the stable id fallback
func IdPUsernameProbes() []probe.Probe {
	return probe.All(append(append([]interfaces.Selector(nil), idpUsernameFields...), idpUsernameFallback), probe.Present)
}

// GenericUsernameProbes returns username strategies for non-IdP login forms
func GenericUsernameProbes(timeout time.Duration) []probe.Probe {
	return probe.All(genericUsernameFields, probe.Within(timeout))
}

// SubmitProbes returns the ordered submit-control strategies
func SubmitProbes(timeout time.Duration) []probe.Probe {
	return probe.All(submitControls, probe.Within(timeout))
}
