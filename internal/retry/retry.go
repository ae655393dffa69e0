// Package retry decides which portal failures deserve another attempt and
// runs browser interactions under one bounded, backed-off retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
	goretry "github.com/sethvargo/go-retry"
)

// Class is the outcome of Classify.
type Class int

const (
	Fatal Class = iota
	Retryable
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Classify maps an error onto Retryable or Fatal. Navigation timeouts,
// transient server errors and dropped connections are retryable; everything
// else, including authentication and parse failures and caller
// cancellation, is fatal.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, common.ErrRetriesExhausted) {
		return Fatal
	}
	switch {
	case errors.Is(err, common.ErrAuthentication),
		errors.Is(err, common.ErrParse),
		errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrSessionExpired):
		return Fatal
	case errors.Is(err, common.ErrNavigationTimeout),
		errors.Is(err, common.ErrTransient):
		return Retryable
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return Retryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Retryable
	}
	return Fatal
}

// Policy bounds the retry loop. Attempts counts the first try.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

func (p Policy) backoff() goretry.Backoff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := goretry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = goretry.WithCappedDuration(p.MaxDelay, b)
	}
	return goretry.WithMaxRetries(uint64(attempts-1), b)
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It matches common.ErrRetriesExhausted and the last cause.
type ExhaustedError struct {
	Action   string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Action, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{common.ErrRetriesExhausted, e.Err}
}

// Retrier applies a single Policy to every browser interaction.
type Retrier struct {
	policy Policy
	logger logging.Logger
}

func New(p Policy, l logging.Logger) *Retrier {
	if l == nil {
		l = logging.NopLogger{}
	}
	return &Retrier{policy: p, logger: l.With("module", "retry")}
}

func (r *Retrier) Policy() Policy { return r.policy }

// Do runs fn until it succeeds, fails fatally or the policy runs out.
func (r *Retrier) Do(ctx context.Context, action string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := goretry.Do(ctx, r.policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if Classify(err) == Retryable {
			r.logger.Warn(ctx, "retryable failure", "action", action, "attempt", attempt, "error", err)
			return goretry.RetryableError(err)
		}
		return err
	})
	if err != nil && Classify(err) == Retryable {
		return &ExhaustedError{Action: action, Attempts: attempt, Err: err}
	}
	return err
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, r *Retrier, action string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, action, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
