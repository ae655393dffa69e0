// Package session owns the portal login: the credentials form, the TOTP
// second factor and the lifetime of the resulting session cookies.
//
// A Manager is the only component that mutates the browser's cookie state.
// Login is single-flight; concurrent callers share one attempt. An operation
// that finds its session expired gets exactly one re-login through Run and
// fails with an authentication error if the fresh session expires too.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal/browser"
	"github.com/dmitrijs2005/invoicekeeper/internal/retry"
	"github.com/dmitrijs2005/invoicekeeper/internal/totp"
	"golang.org/x/sync/singleflight"
)

// Browser is the part of the browser the session manager drives.
type Browser interface {
	Visit(ctx context.Context, req browser.Request, fn func(*browser.Page) error) error
	Reset() error
}

type Options struct {
	LoginPath    string
	LoginTimeout time.Duration

	// DriftSteps is how many TOTP steps either side of the current one are
	// tried when the portal rejects a code.
	DriftSteps int

	Now func() time.Time
}

func (o *Options) defaults() {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = 60 * time.Second
	}
	if o.DriftSteps < 0 {
		o.DriftSteps = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Manager struct {
	browser Browser
	retrier *retry.Retrier
	creds   invoice.Credentials
	opts    Options
	logger  logging.Logger

	group singleflight.Group

	mu         sync.Mutex
	state      State
	session    invoice.Session
	generation uint64
	logins     int
}

func NewManager(b Browser, r *retry.Retrier, creds invoice.Credentials, opts Options, l logging.Logger) *Manager {
	opts.defaults()
	if l == nil {
		l = logging.NopLogger{}
	}
	if r == nil {
		r = retry.New(retry.DefaultPolicy(), l)
	}
	return &Manager{
		browser: b,
		retrier: r,
		creds:   creds,
		opts:    opts,
		logger:  l.With("module", "session"),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Logins counts login sequences that reached the portal.
func (m *Manager) Logins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins
}

// LoginPath is where the portal serves the credentials form.
func (m *Manager) LoginPath() string { return m.opts.LoginPath }

// EnsureAuthenticated returns the current session, logging in first when
// there is none.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (invoice.Session, error) {
	s, _, err := m.ensure(ctx)
	return s, err
}

func (m *Manager) ensure(ctx context.Context) (invoice.Session, uint64, error) {
	m.mu.Lock()
	if m.state == Authenticated {
		s, gen := m.session, m.generation
		m.mu.Unlock()
		return s, gen, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan("login", func() (any, error) {
		m.mu.Lock()
		if m.state == Authenticated {
			m.mu.Unlock()
			return nil, nil
		}
		m.logins++
		m.mu.Unlock()

		// The attempt outlives any single caller; it is bounded by the
		// login timeout instead.
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.LoginTimeout)
		defer cancel()
		return nil, m.login(loginCtx)
	})

	select {
	case <-ctx.Done():
		return invoice.Session{}, 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return invoice.Session{}, 0, res.Err
		}
	}

	// The session may already be invalidated again here; the operation will
	// then see the login page and come back through Run.
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.generation, nil
}

// Invalidate drops the session and every cookie.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

func (m *Manager) invalidateGeneration(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated || m.generation != gen {
		// Someone already logged in again since this session was handed out.
		return
	}
	m.invalidateLocked()
}

func (m *Manager) invalidateLocked() {
	m.state = Unauthenticated
	m.session = invoice.Session{}
	if err := m.browser.Reset(); err != nil {
		m.logger.Error(context.Background(), "reset cookies", "error", err)
	}
}

// Run executes one portal operation under a valid session. When fn reports
// an expired session the manager logs in again and runs fn once more; a
// second expiry is returned as an authentication error.
func (m *Manager) Run(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	_, gen, err := m.ensure(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx)
	if !errors.Is(err, common.ErrSessionExpired) {
		return err
	}

	m.logger.Info(ctx, "session expired, logging in again", "action", action)
	m.invalidateGeneration(gen)

	_, gen, err = m.ensure(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx)
	if errors.Is(err, common.ErrSessionExpired) {
		m.invalidateGeneration(gen)
		m.logger.Error(ctx, "session expired again after re-login", "action", action)
		return &common.AuthenticationError{Reason: "session expired again after re-login", Err: err}
	}
	return err
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) login(ctx context.Context) error {
	start := m.opts.Now()
	m.setState(LoggingIn)
	m.logger.Info(ctx, "logging in")

	if !m.creds.Valid() {
		return m.fail(ctx, &common.AuthenticationError{Reason: "email and password must be set"})
	}

	landing, err := m.submitCredentials(ctx)
	if err != nil {
		return m.fail(ctx, err)
	}

	if landing.challenge != nil {
		m.setState(ChallengePending)
		m.logger.Info(ctx, "second factor requested")
		if err := m.answerChallenge(ctx, landing.challenge); err != nil {
			return m.fail(ctx, err)
		}
	}

	m.mu.Lock()
	m.state = Authenticated
	m.generation++
	m.session = invoice.Session{Authenticated: true, CreatedAt: m.opts.Now()}
	m.mu.Unlock()

	m.logger.Info(ctx, "logged in", "duration", m.opts.Now().Sub(start))
	return nil
}

func (m *Manager) fail(ctx context.Context, err error) error {
	m.setState(Failed)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil && !errors.Is(err, common.ErrAuthentication) {
		err = &common.AuthenticationError{Reason: errNoLanding, Err: err}
	}
	m.logger.Error(ctx, "login failed", "error", err)
	return err
}

const errNoLanding = "no authenticated landing within timeout"

// submitted turns a timed-out form post into an authentication failure. A
// post whose outcome is unknown is never repeated.
func submitted(err error) error {
	if err == nil || errors.Is(err, common.ErrAuthentication) {
		return err
	}
	if errors.Is(err, common.ErrNavigationTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &common.AuthenticationError{Reason: errNoLanding, Err: err}
	}
	return err
}

type challenge struct {
	form  *browser.Form
	field string
}

type landing struct {
	challenge *challenge
}

// submitCredentials loads the login form, retrying that GET, and posts the
// credentials exactly once.
func (m *Manager) submitCredentials(ctx context.Context) (landing, error) {
	var form *browser.Form
	alreadyIn := false
	err := m.retrier.Do(ctx, "open login", func(ctx context.Context) error {
		form, alreadyIn = nil, false
		return m.browser.Visit(ctx, browser.Request{Action: "open login", URL: m.opts.LoginPath}, func(p *browser.Page) error {
			if !IsLoginPage(p, m.opts.LoginPath) {
				alreadyIn = true
				return nil
			}
			f, err := p.Form(`input[name="` + passwordField + `"]`)
			if err != nil {
				return &common.TransientError{Action: "open login", URL: p.URL.Path, Err: err}
			}
			form = f
			return nil
		})
	})
	if err != nil || alreadyIn {
		return landing{}, err
	}

	form.Set(usernameField, m.creds.Email)
	form.Set(passwordField, m.creds.Password)

	var out landing
	err = m.browser.Visit(ctx, form.Request("submit credentials"), func(p *browser.Page) error {
		if field := challengeField(p); field != "" {
			f, err := p.Form(`input[name="` + field + `"]`)
			if err != nil {
				return &common.AuthenticationError{Reason: "second factor form unreadable", Err: err}
			}
			out.challenge = &challenge{form: f, field: field}
			return nil
		}
		if IsLoginPage(p, m.opts.LoginPath) {
			return &common.AuthenticationError{Reason: "credentials rejected"}
		}
		return nil
	})
	return out, submitted(err)
}

// answerChallenge submits the current TOTP code and, if the portal presents
// the challenge again, the codes for the neighbouring steps. Submits are not
// retried: a code the portal has seen may not be accepted twice.
func (m *Manager) answerChallenge(ctx context.Context, ch *challenge) error {
	if !m.creds.HasSecondFactor() {
		return &common.AuthenticationError{Reason: "second factor required but no TOTP secret configured"}
	}

	codes, err := totp.Window(m.creds.TOTPSecret, m.opts.Now(), m.opts.DriftSteps)
	if err != nil {
		return &common.AuthenticationError{Reason: "invalid TOTP secret", Err: err}
	}

	for i, code := range codes {
		ch.form.Set(ch.field, code)

		var next *challenge
		err := m.browser.Visit(ctx, ch.form.Request("submit second factor"), func(p *browser.Page) error {
			if field := challengeField(p); field != "" {
				f, err := p.Form(`input[name="` + field + `"]`)
				if err != nil {
					return &common.AuthenticationError{Reason: "second factor form unreadable", Err: err}
				}
				next = &challenge{form: f, field: field}
				return nil
			}
			if IsLoginPage(p, m.opts.LoginPath) {
				return &common.AuthenticationError{Reason: "second factor rejected, portal returned to login"}
			}
			return nil
		})
		if err != nil {
			return submitted(err)
		}
		if next == nil {
			if i > 0 {
				m.logger.Warn(ctx, "second factor accepted with drifted step", "attempt", i+1)
			}
			return nil
		}
		ch = next
	}
	return &common.AuthenticationError{Reason: fmt.Sprintf("second factor rejected after %d codes", len(codes))}
}
