package config

// Default values, layer 0 of the override chain.
const (
	defaultLoginURL     = "https://dm-us.informaticacloud.com"
	defaultCDGCAPIURL   = "https://cdgc-api.dm-us.informaticacloud.com"
	defaultPollInterval = "30s"
	defaultTimeout      = "1h"
	defaultOutputDir    = "./output"
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"
	defaultHTTPTimeout  = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: ConnectionConfig{
			LoginURL:   defaultLoginURL,
			CDGCAPIURL: defaultCDGCAPIURL,
		},
		MonitorConfig: MonitorConfig{
			PollInterval: defaultPollInterval,
			Timeout:      defaultTimeout,
		},
		OutputConfig: OutputConfig{
			OutputDir: defaultOutputDir,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		NetworkConfig: NetworkConfig{
			HTTPTimeout: defaultHTTPTimeout,
		},
	}
}
