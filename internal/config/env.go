package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// envKeys maps environment variables onto Config fields.
var envKeys = struct {
	strings   map[string]func(*Config) *string
	durations map[string]func(*Config) *time.Duration
	ints      map[string]func(*Config) *int
}{
	strings: map[string]func(*Config) *string{
		"HETZNER_ACCOUNT_EMAIL":       func(c *Config) *string { return &c.Email },
		"HETZNER_ACCOUNT_PASSWORD":    func(c *Config) *string { return &c.Password },
		"HETZNER_TOTP_SECRET":         func(c *Config) *string { return &c.TOTPSecret },
		"HETZNER_CUSTOMER_NUMBER":     func(c *Config) *string { return &c.CustomerNumber },
		"HETZNER_BASE_URL":            func(c *Config) *string { return &c.BaseURL },
		"INVOICEKEEPER_USER_AGENT":    func(c *Config) *string { return &c.UserAgent },
		"INVOICEKEEPER_CURRENCY":      func(c *Config) *string { return &c.DefaultCurrency },
		"INVOICEKEEPER_HTTP_ADDR":     func(c *Config) *string { return &c.HTTPAddr },
		"INVOICEKEEPER_LOG_LEVEL":     func(c *Config) *string { return &c.LogLevel },
		"INVOICEKEEPER_LOG_FORMAT":    func(c *Config) *string { return &c.LogFormat },
		"INVOICEKEEPER_S3_BUCKET":     func(c *Config) *string { return &c.S3Bucket },
		"INVOICEKEEPER_S3_REGION":     func(c *Config) *string { return &c.S3Region },
		"INVOICEKEEPER_S3_ENDPOINT":   func(c *Config) *string { return &c.S3BaseEndpoint },
		"INVOICEKEEPER_S3_ACCESS_KEY": func(c *Config) *string { return &c.S3AccessKey },
		"INVOICEKEEPER_S3_SECRET_KEY": func(c *Config) *string { return &c.S3SecretKey },
		"INVOICEKEEPER_S3_PREFIX":     func(c *Config) *string { return &c.S3Prefix },
	},
	durations: map[string]func(*Config) *time.Duration{
		"INVOICEKEEPER_NAVIGATION_TIMEOUT": func(c *Config) *time.Duration { return &c.NavigationTimeout },
		"INVOICEKEEPER_LOGIN_TIMEOUT":      func(c *Config) *time.Duration { return &c.LoginTimeout },
		"INVOICEKEEPER_RETRY_BASE_DELAY":   func(c *Config) *time.Duration { return &c.RetryBaseDelay },
		"INVOICEKEEPER_RETRY_MAX_DELAY":    func(c *Config) *time.Duration { return &c.RetryMaxDelay },
		"INVOICEKEEPER_SHUTDOWN_TIMEOUT":   func(c *Config) *time.Duration { return &c.ShutdownTimeout },
	},
	ints: map[string]func(*Config) *int{
		"INVOICEKEEPER_RETRY_ATTEMPTS": func(c *Config) *int { return &c.RetryAttempts },
		"INVOICEKEEPER_DRIFT_STEPS":    func(c *Config) *int { return &c.DriftSteps },
		"INVOICEKEEPER_MAX_SCAN_PAGES": func(c *Config) *int { return &c.MaxScanPages },
	},
}

// parseEnv overlays cfg with environment variables. A dotenv file supplies
// values the process environment lacks; it is optional unless named
// explicitly with -env.
func parseEnv(cfg *Config) error {
	path := flagx.StringFlag(os.Args[1:], "env")
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	fileVals, err := godotenv.Read(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, err)
		}
		fileVals = map[string]string{}
	}

	return applyEnv(cfg, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	})
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for key, field := range envKeys.strings {
		if v, ok := lookup(key); ok && v != "" {
			*field(cfg) = v
		}
	}
	for key, field := range envKeys.durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = d
	}
	for key, field := range envKeys.ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field(cfg) = n
	}
	return nil
}
