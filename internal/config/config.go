// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cdgc-go. Values are layered:
// defaults -> config file -> .env file -> environment -> CLI flags. The
// password is only ever taken from the environment.
package config

import "time"

// Config is the flat structure parsed from the TOML file. The embedded
// groups only organize the Go side; in the file every key is top-level.
type Config struct {
	ConnectionConfig
	MonitorConfig
	OutputConfig
	LoggingConfig
	NetworkConfig
}

// ConnectionConfig locates the IDMC login service and the CDGC API.
// An empty pod_api_url is derived from the login response.
type ConnectionConfig struct {
	LoginURL     string `toml:"login_url"`
	PodAPIURL    string `toml:"pod_api_url"`
	CDGCAPIURL   string `toml:"cdgc_api_url"`
	Username     string `toml:"username"`
	SessionCache string `toml:"session_cache"`
}

// MonitorConfig controls job polling and catalog source resolution.
type MonitorConfig struct {
	PollInterval string `toml:"poll_interval"`
	Timeout      string `toml:"timeout"`
	StrictMatch  bool   `toml:"strict_match"`
}

// OutputConfig controls where exports are written.
type OutputConfig struct {
	OutputDir string `toml:"output_dir"`
}

// LoggingConfig controls log level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the HTTP client.
type NetworkConfig struct {
	HTTPTimeout string `toml:"http_timeout"`
	UserAgent   string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath   string
	PollInterval *time.Duration
	Timeout      *time.Duration
	StrictMatch  *bool
	OutputDir    *string
}

// Resolved is the effective configuration after every layer is applied.
// It is built once at startup and passed to constructors.
type Resolved struct {
	ConfigPath string

	LoginURL     string
	PodAPIURL    string
	CDGCAPIURL   string
	Username     string
	Password     string
	SessionCache string
	LedgerPath   string
	ImportLock   string

	PollInterval time.Duration
	Timeout      time.Duration
	StrictMatch  bool

	OutputDir string

	LogLevel  string
	LogFormat string

	HTTPTimeout time.Duration
	UserAgent   string
}
