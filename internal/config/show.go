package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as annotated TOML-like
// text. The password is never printed, only whether it is set.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (config file: %s)\n\n", orNone(r.ConfigPath))

	ew.printf("# connection\n")
	ew.printf("login_url     = %q\n", r.LoginURL)
	ew.printf("pod_api_url   = %q\n", r.PodAPIURL)
	ew.printf("cdgc_api_url  = %q\n", r.CDGCAPIURL)
	ew.printf("username      = %q\n", r.Username)
	ew.printf("# password    = %s (from %s)\n", setOrUnset(r.Password), EnvPassword)
	ew.printf("session_cache = %q\n", r.SessionCache)

	ew.printf("\n# monitor\n")
	ew.printf("poll_interval = %q\n", r.PollInterval.String())
	ew.printf("timeout       = %q\n", r.Timeout.String())
	ew.printf("strict_match  = %t\n", r.StrictMatch)

	ew.printf("\n# output\n")
	ew.printf("output_dir    = %q\n", r.OutputDir)

	ew.printf("\n# logging\n")
	ew.printf("log_level     = %q\n", r.LogLevel)
	ew.printf("log_format    = %q\n", r.LogFormat)

	ew.printf("\n# network\n")
	ew.printf("http_timeout  = %q\n", r.HTTPTimeout.String())
	ew.printf("user_agent    = %q\n", r.UserAgent)

	return ew.err
}

// EffectiveConfig is the JSON form of a Resolved configuration, with
// durations as strings and the password reduced to <set> or <unset>.
type EffectiveConfig struct {
	ConfigPath   string `json:"config_path"`
	LoginURL     string `json:"login_url"`
	PodAPIURL    string `json:"pod_api_url"`
	CDGCAPIURL   string `json:"cdgc_api_url"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	SessionCache string `json:"session_cache"`
	LedgerPath   string `json:"ledger_path"`
	PollInterval string `json:"poll_interval"`
	Timeout      string `json:"timeout"`
	StrictMatch  bool   `json:"strict_match"`
	OutputDir    string `json:"output_dir"`
	LogLevel     string `json:"log_level"`
	LogFormat    string `json:"log_format"`
	HTTPTimeout  string `json:"http_timeout"`
	UserAgent    string `json:"user_agent"`
}

// Effective converts r for JSON output.
func Effective(r *Resolved) EffectiveConfig {
	return EffectiveConfig{
		ConfigPath:   r.ConfigPath,
		LoginURL:     r.LoginURL,
		PodAPIURL:    r.PodAPIURL,
		CDGCAPIURL:   r.CDGCAPIURL,
		Username:     r.Username,
		Password:     setOrUnset(r.Password),
		SessionCache: r.SessionCache,
		LedgerPath:   r.LedgerPath,
		PollInterval: r.PollInterval.String(),
		Timeout:      r.Timeout.String(),
		StrictMatch:  r.StrictMatch,
		OutputDir:    r.OutputDir,
		LogLevel:     r.LogLevel,
		LogFormat:    r.LogFormat,
		HTTPTimeout:  r.HTTPTimeout.String(),
		UserAgent:    r.UserAgent,
	}
}

// errWriter keeps the first write error; later writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func setOrUnset(s string) string {
	if s == "" {
		return "<unset>"
	}

	return "<set>"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}

	return s
}
