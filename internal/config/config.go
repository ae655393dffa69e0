package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/portal"
	"github.com/dmitrijs2005/invoicekeeper/internal/retry"
)

// Config holds runtime settings for the API server and the CLI.
type Config struct {
	// Portal
	BaseURL           string
	CustomerNumber    string
	UserAgent         string
	DefaultCurrency   string
	NavigationTimeout time.Duration
	LoginTimeout      time.Duration
	DriftSteps        int
	MaxScanPages      int

	// Retry policy for every navigation.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Account; environment only.
	Email      string
	Password   string
	TOTPSecret string

	// HTTP API
	HTTPAddr        string
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string

	// PDF archive; disabled while S3Bucket is empty.
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	S3Prefix       string
}

// LoadDefaults populates c with production defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "https://accounts.hetzner.com"
	c.DefaultCurrency = "EUR"
	c.NavigationTimeout = 30 * time.Second
	c.LoginTimeout = 60 * time.Second
	c.DriftSteps = 1
	c.MaxScanPages = portal.MaxScanPages

	c.RetryAttempts = 3
	c.RetryBaseDelay = 500 * time.Millisecond
	c.RetryMaxDelay = 5 * time.Second

	c.HTTPAddr = ":8080"
	c.ShutdownTimeout = 10 * time.Second

	c.LogLevel = "info"
	c.LogFormat = "text"

	c.S3Region = "eu-central-1"
	c.S3Prefix = "invoices"
}

// LoadConfig builds a Config from defaults, then the JSON file, the
// environment and finally command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := parseFlags(cfg); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the portal client cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Email == "" || c.Password == "" {
		errs = append(errs, errors.New("HETZNER_ACCOUNT_EMAIL and HETZNER_ACCOUNT_PASSWORD must be set"))
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base url %q is not absolute", c.BaseURL))
	}
	if c.NavigationTimeout <= 0 || c.LoginTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) Credentials() invoice.Credentials {
	return invoice.Credentials{Email: c.Email, Password: c.Password, TOTPSecret: c.TOTPSecret}
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{Attempts: c.RetryAttempts, BaseDelay: c.RetryBaseDelay, MaxDelay: c.RetryMaxDelay}
}

func (c *Config) PortalOptions() portal.Options {
	return portal.Options{
		BaseURL:           c.BaseURL,
		CustomerNumber:    c.CustomerNumber,
		UserAgent:         c.UserAgent,
		NavigationTimeout: c.NavigationTimeout,
		LoginTimeout:      c.LoginTimeout,
		Retry:             c.RetryPolicy(),
		DriftSteps:        c.DriftSteps,
		MaxScanPages:      c.MaxScanPages,
		DefaultCurrency:   c.DefaultCurrency,
	}
}

// LogValue lists the effective settings without any secret.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.Bool("credentials_set", c.Credentials().Valid()),
		slog.Bool("second_factor", c.TOTPSecret != ""),
		slog.Bool("usage_csv", c.CustomerNumber != ""),
		slog.Duration("navigation_timeout", c.NavigationTimeout),
		slog.Duration("login_timeout", c.LoginTimeout),
		slog.Int("retry_attempts", c.RetryAttempts),
		slog.String("http_addr", c.HTTPAddr),
		slog.String("s3_bucket", c.S3Bucket),
	)
}
