package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/flagx"
	"github.com/dmitrijs2005/invoicekeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// JsonConfig is a DTO used exclusively for file unmarshalling, JSON or YAML.
// Fields absent from the file (empty strings, nil pointers) leave Config
// untouched.
type JsonConfig struct {
	BaseURL           string          `json:"base_url" yaml:"base_url"`
	CustomerNumber    string          `json:"customer_number" yaml:"customer_number"`
	UserAgent         string          `json:"user_agent" yaml:"user_agent"`
	DefaultCurrency   string          `json:"default_currency" yaml:"default_currency"`
	NavigationTimeout *timex.Duration `json:"navigation_timeout" yaml:"navigation_timeout"`
	LoginTimeout      *timex.Duration `json:"login_timeout" yaml:"login_timeout"`
	DriftSteps        *int            `json:"drift_steps" yaml:"drift_steps"`
	MaxScanPages      *int            `json:"max_scan_pages" yaml:"max_scan_pages"`

	RetryAttempts  *int            `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBaseDelay *timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay  *timex.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`

	HTTPAddr        string          `json:"http_addr" yaml:"http_addr"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`

	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix" yaml:"s3_prefix"`
}

// parseJson overlays cfg with the file named by -c or -config. Files ending
// in .yaml or .yml are read as YAML, anything else as JSON. Without either
// flag nothing is loaded.
func parseJson(cfg *Config) error {
	path := flagx.StringFlag(os.Args[1:], "c", "config")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var jc JsonConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &jc)
	default:
		err = json.Unmarshal(data, &jc)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	jc.apply(cfg)
	return nil
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.CustomerNumber, jc.CustomerNumber)
	setString(&cfg.UserAgent, jc.UserAgent)
	setString(&cfg.DefaultCurrency, jc.DefaultCurrency)
	setString(&cfg.HTTPAddr, jc.HTTPAddr)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3Prefix, jc.S3Prefix)

	for _, d := range []struct {
		dst *time.Duration
		src *timex.Duration
	}{
		{&cfg.NavigationTimeout, jc.NavigationTimeout},
		{&cfg.LoginTimeout, jc.LoginTimeout},
		{&cfg.RetryBaseDelay, jc.RetryBaseDelay},
		{&cfg.RetryMaxDelay, jc.RetryMaxDelay},
		{&cfg.ShutdownTimeout, jc.ShutdownTimeout},
	} {
		if d.src != nil {
			*d.dst = d.src.Duration
		}
	}

	for _, n := range []struct {
		dst *int
		src *int
	}{
		{&cfg.DriftSteps, jc.DriftSteps},
		{&cfg.MaxScanPages, jc.MaxScanPages},
		{&cfg.RetryAttempts, jc.RetryAttempts},
	} {
		if n.src != nil {
			*n.dst = *n.src
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
