package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// File names under the data directory.
const (
	sessionFileName = "session.json"
	ledgerFileName  = "ledger.db"
	lockFileName    = "import.lock"
)

// Load reads and parses a TOML config file and validates it. Unknown keys
// are fatal with "did you mean?" suggestions.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file loaded", slog.String("path", path))

	return cfg, nil
}

// LoadOrDefault reads the config file if it exists, otherwise returns the
// defaults.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))
		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// Resolve applies the override chain and returns the validated effective
// configuration. The config path comes from the CLI, then the environment,
// then the platform default.
func Resolve(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, err
	}

	r, err := fromConfig(cfg)
	if err != nil {
		return nil, err
	}

	r.ConfigPath = cfgPath

	applyEnv(r, env)
	applyCLI(r, cli)

	if err := ValidateResolved(r); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}

// fromConfig converts validated file values into a Resolved.
func fromConfig(cfg *Config) (*Resolved, error) {
	poll, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("poll_interval: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}

	httpTimeout, err := time.ParseDuration(cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("http_timeout: %w", err)
	}

	dataDir := DefaultDataDir()

	sessionCache := cfg.SessionCache
	if sessionCache == "" && dataDir != "" {
		sessionCache = filepath.Join(dataDir, sessionFileName)
	}

	var ledgerPath, lockPath string
	if dataDir != "" {
		ledgerPath = filepath.Join(dataDir, ledgerFileName)
		lockPath = filepath.Join(dataDir, lockFileName)
	}

	return &Resolved{
		LoginURL:     cfg.LoginURL,
		PodAPIURL:    cfg.PodAPIURL,
		CDGCAPIURL:   cfg.CDGCAPIURL,
		Username:     cfg.Username,
		SessionCache: expandTilde(sessionCache),
		LedgerPath:   ledgerPath,
		ImportLock:   lockPath,
		PollInterval: poll,
		Timeout:      timeout,
		StrictMatch:  cfg.StrictMatch,
		OutputDir:    expandTilde(cfg.OutputDir),
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
		HTTPTimeout:  httpTimeout,
		UserAgent:    cfg.UserAgent,
	}, nil
}

func applyEnv(r *Resolved, env EnvOverrides) {
	if env.Username != "" {
		r.Username = env.Username
	}

	if env.LoginURL != "" {
		r.LoginURL = env.LoginURL
	}

	if env.PodAPIURL != "" {
		r.PodAPIURL = env.PodAPIURL
	}

	if env.CDGCAPIURL != "" {
		r.CDGCAPIURL = env.CDGCAPIURL
	}

	r.Password = env.Password
}

func applyCLI(r *Resolved, cli CLIOverrides) {
	if cli.PollInterval != nil {
		r.PollInterval = *cli.PollInterval
	}

	if cli.Timeout != nil {
		r.Timeout = *cli.Timeout
	}

	if cli.StrictMatch != nil {
		r.StrictMatch = *cli.StrictMatch
	}

	if cli.OutputDir != nil {
		r.OutputDir = expandTilde(*cli.OutputDir)
	}
}
