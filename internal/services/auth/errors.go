package auth

import (
	"errors"
	"fmt"
	"time"
)

// ErrLoginFailed matches every fatal login error via errors.Is
var ErrLoginFailed = errors.New("login failed")

// LoginFieldNotFoundError is returned when the username or password field never appears
type LoginFieldNotFoundError struct {
	Field string
	URL   string
}

func (e *LoginFieldNotFoundError) Error() string {
	return fmt.Sprintf("%s field not found (url: %s)", e.Field, e.URL)
}

func (e *LoginFieldNotFoundError) Is(target error) bool {
	return target == ErrLoginFailed
}

// LoginError is returned when the post-submit page is neither dashboard nor 2FA
type LoginError struct {
	Reason string
	URL    string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%s (url: %s)", e.Reason, e.URL)
}

func (e *LoginError) Is(target error) bool {
	return target == ErrLoginFailed
}

// TwoFactorTimeoutError is returned when the dashboard is not reached after 2FA
type TwoFactorTimeoutError struct {
	Timeout time.Duration
	URL     string
}

func (e *TwoFactorTimeoutError) Error() string {
	return fmt.Sprintf("dashboard not reached within %s after two-factor prompt (url: %s)", e.Timeout, e.URL)
}

func (e *TwoFactorTimeoutError) Is(target error) bool {
	return target == ErrLoginFailed
}
