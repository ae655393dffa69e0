// Package config loads runtime configuration for the invoice fetcher.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML (.yaml, .yml) file selected via -c or -config.
//  3. Environment variables, with a dotenv file (default ".env", or -env)
//     filling in anything the process environment does not set.
//  4. Command-line flags, which override everything else.
//
// Account credentials are read from the environment only, never from flags
// or config files, so they do not end up in shell history or on disk.
//
// # Environment
//
//	HETZNER_ACCOUNT_EMAIL      account login (required)
//	HETZNER_ACCOUNT_PASSWORD   account password (required)
//	HETZNER_TOTP_SECRET        base32 TOTP secret for the second factor
//	HETZNER_CUSTOMER_NUMBER    enables the usage CSV export
//	HETZNER_BASE_URL           portal base URL
//	INVOICEKEEPER_*            everything else, see envKeys
//
// # Flags
//
//	-a string   HTTP API listen address
//	-u string   portal base URL
//	-n string   customer number
//	-t int      navigation timeout (seconds)
//	-r int      retry attempts per navigation
//	-l string   log level (debug, info, warn, error)
//	-f string   log format (text, json)
//	-b string   S3 bucket for archived PDFs
//	-g string   S3 region
//	-e string   S3 endpoint
//
// # JSON schema
//
// Durations use timex.Duration and accept "30s" or integer nanoseconds:
//
//	{
//	  "base_url": "https://accounts.hetzner.com",
//	  "navigation_timeout": "30s",
//	  "login_timeout": "1m",
//	  "retry_attempts": 3,
//	  "http_addr": ":8080",
//	  "s3_bucket": "invoices"
//	}
//
// The same keys are used in YAML files.
package config
