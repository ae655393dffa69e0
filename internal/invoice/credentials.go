package invoice

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/common"
)

// Credentials are supplied once at process start and never persisted.
// String and LogValue redact them so they cannot leak through fmt or slog.
type Credentials struct {
	Email      string
	Password   string
	TOTPSecret string
}

// HasSecondFactor reports whether a TOTP secret is configured.
func (c Credentials) HasSecondFactor() bool {
	return strings.TrimSpace(c.TOTPSecret) != ""
}

// Valid reports whether the mandatory fields are present.
func (c Credentials) Valid() bool {
	return c.Email != "" && c.Password != ""
}

func (c Credentials) String() string {
	return "credentials(" + common.RedactedValue + ")"
}

func (c Credentials) GoString() string { return c.String() }

func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// Session is a read-only snapshot of the authentication state. Cookies stay
// inside the browser owned by the session manager.
type Session struct {
	Authenticated bool
	CreatedAt     time.Time
}
