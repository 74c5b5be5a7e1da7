package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation bounds.
const (
	minHTTPTimeout = time.Second
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks the raw file values and returns every error found, so
// users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateConnection(&cfg.ConnectionConfig)...)
	errs = append(errs, validateMonitor(&cfg.MonitorConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

// ValidateResolved checks the final values after environment and CLI
// overrides, including constraints across fields.
func ValidateResolved(r *Resolved) error {
	var errs []error

	errs = append(errs, validateURL("login_url", r.LoginURL, true)...)
	errs = append(errs, validateURL("pod_api_url", r.PodAPIURL, false)...)
	errs = append(errs, validateURL("cdgc_api_url", r.CDGCAPIURL, true)...)

	if r.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval: must be > 0, got %s", r.PollInterval))
	}

	if r.Timeout < r.PollInterval {
		errs = append(errs, fmt.Errorf("timeout: must be >= poll_interval (%s), got %s", r.PollInterval, r.Timeout))
	}

	return errors.Join(errs...)
}

func validateConnection(c *ConnectionConfig) []error {
	var errs []error

	errs = append(errs, validateURL("login_url", c.LoginURL, true)...)
	errs = append(errs, validateURL("pod_api_url", c.PodAPIURL, false)...)
	errs = append(errs, validateURL("cdgc_api_url", c.CDGCAPIURL, true)...)

	return errs
}

// validateURL requires an absolute http(s) URL. Optional fields may be empty.
func validateURL(field, value string, required bool) []error {
	if value == "" {
		if required {
			return []error{fmt.Errorf("%s: must not be empty", field)}
		}

		return nil
	}

	u, err := url.Parse(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, value, err)}
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, value)}
	}

	return nil
}

func validateMonitor(m *MonitorConfig) []error {
	var errs []error

	poll, err := parsePositive("poll_interval", m.PollInterval)
	if err != nil {
		errs = append(errs, err)
	}

	timeout, err := parsePositive("timeout", m.Timeout)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 && timeout < poll {
		errs = append(errs, fmt.Errorf("timeout: must be >= poll_interval (%s), got %s", poll, timeout))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.HTTPTimeout)
	if err != nil {
		return []error{fmt.Errorf("http_timeout: invalid duration %q: %w", n.HTTPTimeout, err)}
	}

	if d < minHTTPTimeout {
		return []error{fmt.Errorf("http_timeout: must be >= %s, got %s", minHTTPTimeout, d)}
	}

	return nil
}

func parsePositive(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0, got %s", field, d)
	}

	return d, nil
}
