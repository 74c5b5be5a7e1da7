package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvConfig     = "CDGC_GO_CONFIG"
	EnvUsername   = "INFORMATICA_USERNAME"
	EnvPassword   = "INFORMATICA_PASSWORD" //nolint:gosec // variable name, not a credential
	EnvLoginURL   = "INFORMATICA_LOGIN_URL"
	EnvPodAPIURL  = "INFORMATICA_POD_API_URL"
	EnvCDGCAPIURL = "INFORMATICA_CDGC_API_URL"
)

// DefaultDotEnvFile is read from the working directory when present.
const DefaultDotEnvFile = ".env"

// EnvOverrides holds values read from the environment. Empty means unset.
type EnvOverrides struct {
	ConfigPath string
	Username   string
	Password   string
	LoginURL   string
	PodAPIURL  string
	CDGCAPIURL string
}

// LoadDotEnv loads variables from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string, logger *slog.Logger) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("no .env file", slog.String("path", path))
		return nil
	}

	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	logger.Debug("loaded .env file", slog.String("path", path))

	return nil
}

// ReadEnvOverrides reads the environment. It does not modify any Config.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Username:   os.Getenv(EnvUsername),
		Password:   os.Getenv(EnvPassword),
		LoginURL:   os.Getenv(EnvLoginURL),
		PodAPIURL:  os.Getenv(EnvPodAPIURL),
		CDGCAPIURL: os.Getenv(EnvCDGCAPIURL),
	}

	logger.Debug("read environment overrides",
		slog.String("config_path", env.ConfigPath),
		slog.String("username", env.Username),
		slog.Bool("password_set", env.Password != ""),
		slog.String("login_url", env.LoginURL),
		slog.String("pod_api_url", env.PodAPIURL),
		slog.String("cdgc_api_url", env.CDGCAPIURL),
	)

	return env
}
