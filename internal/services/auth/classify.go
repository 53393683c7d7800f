package auth

import (
	"net/url"
	"strings"
)

// Outcome classifies the page reached after password submission
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeTwoFactorRequired Outcome = "twofa_required"
	OutcomeFailure           Outcome = "failure"
)

// Phrases in lowercased page content that indicate a second factor prompt
var twoFactorKeywords = []string{
	"verification",
	"authenticator",
	"approve",
	"notification",
	"microsoft authenticator",
	"enter the number",
	"enter this number",
	"verification code",
}

// urlLocation strips the query and fragment so redirect parameters on IdP
// pages never match dashboard patterns
func urlLocation(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(u.Host + u.Path)
}

// MatchesAny reports whether the host+path of rawURL contains any pattern
func MatchesAny(rawURL string, patterns []string) bool {
	loc := urlLocation(rawURL)
	for _, p := range patterns {
		if p != "" && strings.Contains(loc, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// HasTwoFactorPrompt reports whether content mentions any 2FA keyword
func HasTwoFactorPrompt(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range twoFactorKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ClassifyPostSubmit maps the post-password page to exactly one outcome.
// Dashboard URL wins over 2FA keywords.
func ClassifyPostSubmit(currentURL, content string, dashboardPatterns []string) Outcome {
	if MatchesAny(currentURL, dashboardPatterns) {
		return OutcomeSuccess
	}
	if HasTwoFactorPrompt(content) {
		return OutcomeTwoFactorRequired
	}
	return OutcomeFailure
}

// NormalizeUsername qualifies a bare username with the institutional email domain
func NormalizeUsername(username, domain string) string {
	username = strings.TrimSpace(username)
	if domain == "" || strings.Contains(username, "@") {
		return username
	}
	return username + "@" + domain
}
