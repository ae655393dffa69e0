package config

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/invoicekeeper/internal/flagx"
)

var ownFlags = []string{"-a", "-u", "-n", "-t", "-r", "-l", "-f", "-b", "-g", "-e"}

// parseFlags populates Config fields from command-line flags. Arguments
// that belong to other parsers (-c, -env, positional commands) are filtered
// out first with flagx.FilterArgs.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], ownFlags)

	fs := flag.NewFlagSet("invoicekeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.HTTPAddr, "a", cfg.HTTPAddr, "HTTP API listen address")
	fs.StringVar(&cfg.BaseURL, "u", cfg.BaseURL, "portal base URL")
	fs.StringVar(&cfg.CustomerNumber, "n", cfg.CustomerNumber, "customer number for usage CSV exports")
	timeout := fs.Int("t", int(cfg.NavigationTimeout.Seconds()), "navigation timeout (in seconds)")
	fs.IntVar(&cfg.RetryAttempts, "r", cfg.RetryAttempts, "attempts per navigation")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text or json)")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket for archived invoices")
	fs.StringVar(&cfg.S3Region, "g", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3BaseEndpoint, "e", cfg.S3BaseEndpoint, "S3 endpoint")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.NavigationTimeout = time.Duration(*timeout) * time.Second
		}
	})
	return nil
}
