// Package browser is the single shared "browser context" of the process: an
// HTTP session with a cookie jar that opens portal pages, submits forms and
// downloads documents.
//
// # Scoped acquisition
//
// Pages are only reachable inside Visit's callback. The response behind a
// page is released when the callback returns, on every path including
// failure, so no connection outlives the operation that opened it.
//
// # Error classification
//
// Every navigation runs under the configured timeout. Failures are reported
// as typed errors from the common package so the retry classifier can treat
// them uniformly:
//
//   - timeouts                      -> *common.NavigationTimeoutError
//   - 5xx, 429, dropped connections -> *common.TransientError
//   - 404                           -> *common.NotFoundError
//   - 401                           -> common.ErrSessionExpired
//
// Cancellation of the caller's context is returned as the context error and
// says nothing about the session.
//
// The cookie jar is owned by the session manager; other components only read
// pages. Cookies never appear in logs.
package browser
