package common

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthenticationError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("still on login page")
	err := fmt.Errorf("login: %w", &AuthenticationError{Reason: "bad credentials", Err: cause})

	require.ErrorIs(t, err, ErrAuthentication)
	require.ErrorIs(t, err, cause)

	var ae *AuthenticationError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "bad credentials", ae.Reason)
}

func TestNavigationTimeoutError_CarriesDuration(t *testing.T) {
	err := &NavigationTimeoutError{Action: "open", URL: "/invoice", Timeout: 15 * time.Second}

	require.ErrorIs(t, err, ErrNavigationTimeout)
	require.Contains(t, err.Error(), "15s")
	require.Contains(t, err.Error(), "/invoice")
}

func TestTransientError_Messages(t *testing.T) {
	require.Contains(t, (&TransientError{Action: "open", URL: "/x", StatusCode: 503}).Error(), "status 503")
	require.Contains(t, (&TransientError{Action: "open", URL: "/x", Err: errors.New("reset")}).Error(), "reset")
	require.ErrorIs(t, &TransientError{}, ErrTransient)
}

func TestParseError_Diagnostics(t *testing.T) {
	err := &ParseError{Row: 3, Raw: "R001 | | 11,84 €", WantColumns: 4, GotColumns: 3}

	require.ErrorIs(t, err, ErrParse)
	msg := err.Error()
	require.Contains(t, msg, "row 3")
	require.Contains(t, msg, "expected 4 columns, got 3")
	require.Contains(t, msg, "R001")
}

func TestNotFoundError(t *testing.T) {
	require.EqualError(t, &NotFoundError{Kind: "invoice", ID: "R42"}, "invoice R42 not found")
	require.EqualError(t, &NotFoundError{Kind: "invoice"}, "invoice not found")
	require.ErrorIs(t, &NotFoundError{Kind: "invoice"}, ErrNotFound)
}

func TestSessionExpiredError(t *testing.T) {
	err := fmt.Errorf("list invoices: %w", &SessionExpiredError{Action: "open invoices", URL: "/login"})

	require.ErrorIs(t, err, ErrSessionExpired)
	require.NotErrorIs(t, err, ErrAuthentication)
	require.Contains(t, err.Error(), "redirected to /login")
}
