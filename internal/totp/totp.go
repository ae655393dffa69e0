// Package totp computes the time-based one-time codes the portal asks for
// as a second factor (RFC 6238: HMAC-SHA1, 30 second step, 6 digits).
package totp

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Step is the validity period of a single code.
const Step = 30 * time.Second

var ErrEmptySecret = errors.New("totp: empty secret")

var opts = totp.ValidateOpts{
	Period:    uint(Step / time.Second),
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Code returns the 6-digit code for the time step containing t. The secret is
// base32; whitespace, lower case and missing padding are accepted.
func Code(secret string, t time.Time) (string, error) {
	s := normalize(secret)
	if s == "" {
		return "", ErrEmptySecret
	}
	return totp.GenerateCodeCustom(s, t, opts)
}

// Window returns the codes for the current step followed by the steps
// before and after it, out to skew steps on either side.
func Window(secret string, t time.Time, skew int) ([]string, error) {
	codes := make([]string, 0, 2*skew+1)
	cur, err := Code(secret, t)
	if err != nil {
		return nil, err
	}
	codes = append(codes, cur)
	for i := 1; i <= skew; i++ {
		for _, at := range []time.Time{t.Add(-time.Duration(i) * Step), t.Add(time.Duration(i) * Step)} {
			c, err := Code(secret, at)
			if err != nil {
				return nil, err
			}
			codes = append(codes, c)
		}
	}
	return codes, nil
}

func normalize(secret string) string {
	return strings.ToUpper(strings.Join(strings.Fields(secret), ""))
}
