// Package common defines the sentinel errors and typed error values shared by
// every layer of the invoice fetcher. Callers should match sentinels with
// errors.Is and pull diagnostics out of the typed errors with errors.As.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Authentication errors (bad credentials, rejected or missing second factor).
	ErrAuthentication = errors.New("authentication failed")

	// Session lifecycle errors.
	ErrSessionExpired = errors.New("session expired")

	// Navigation errors. Both are retryable.
	ErrNavigationTimeout = errors.New("navigation timeout")
	ErrTransient         = errors.New("transient portal error")

	// Content errors.
	ErrParse    = errors.New("parse error")
	ErrNotFound = errors.New("not found")

	// ErrRetriesExhausted marks a retryable failure that ran out of attempts.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// AuthenticationError reports why a login attempt was rejected. Reason never
// contains credentials or one-time codes.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAuthentication, e.Err}
	}
	return []error{ErrAuthentication}
}

// SessionExpiredError is returned when a navigation lands back on the login
// page. The session manager answers it with exactly one re-login.
type SessionExpiredError struct {
	Action string
	URL    string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %s redirected to %s", e.Action, e.URL)
}

func (e *SessionExpiredError) Unwrap() error { return ErrSessionExpired }

// NavigationTimeoutError is returned when a page load, form submit or
// download does not complete within its timeout.
type NavigationTimeoutError struct {
	Action  string
	URL     string
	Timeout time.Duration
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation timeout: %s %s after %s", e.Action, e.URL, e.Timeout)
}

func (e *NavigationTimeoutError) Unwrap() error { return ErrNavigationTimeout }

// TransientError covers server-side failures worth another attempt:
// 5xx and 429 responses, dropped connections, pages that vanished mid-read.
type TransientError struct {
	Action     string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transient error: %s %s: status %d", e.Action, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transient error: %s %s: %v", e.Action, e.URL, e.Err)
	default:
		return fmt.Sprintf("transient error: %s %s", e.Action, e.URL)
	}
}

func (e *TransientError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransient, e.Err}
	}
	return []error{ErrTransient}
}

// ParseError carries enough context to diagnose a malformed listing row or
// detail line without re-running the fetch. Row is zero-based.
type ParseError struct {
	Row         int
	Field       string
	Raw         string
	WantColumns int
	GotColumns  int
	Err         error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse error at row %d", e.Row)
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
	}
	if e.WantColumns != 0 && e.WantColumns != e.GotColumns {
		msg += fmt.Sprintf(": expected %d columns, got %d", e.WantColumns, e.GotColumns)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" (raw %q)", e.Raw)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// NotFoundError names the missing object, e.g. Kind "invoice".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
