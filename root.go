package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

const rootName = "cdgc-go"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigCommands lists commands that run without a resolved config.
// Matched on CommandPath() so a future "scan capabilities list" would not
// be skipped by accident.
var skipConfigCommands = map[string]bool{
	rootName:                        true,
	rootName + " help":              true,
	rootName + " scan capabilities": true,
}

// needsConfig reports whether cmd runs behind the config pre-run. Shell
// completion scripts never need credentials.
func needsConfig(cmd *cobra.Command) bool {
	path := cmd.CommandPath()

	return !skipConfigCommands[path] && !strings.HasPrefix(path, rootName+" completion")
}

// CLIFlags are the global flags after parsing.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext is built once per invocation by the root pre-run and carried
// on the command's context. Subcommands take everything they need from it.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  CLIFlags
	Stdout io.Writer
	Stderr io.Writer
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by the root pre-run.
func cliContextFrom(ctx context.Context) (*CLIContext, error) {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		return nil, errors.New("internal error: command ran without a loaded configuration")
	}

	return cc, nil
}

// newRootCmd builds the root command with every subcommand registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     rootName,
		Short:   "Informatica CDGC catalog CLI",
		Long:    "Run catalog source scans and move classifications in and out of Informatica Cloud Data Governance and Catalog.",
		Version: version,
		// Errors and usage are printed by exitOnError.
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !needsConfig(cmd) {
				return nil
			}

			cc, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return newUsageError(c, err)
	})

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newJobCmd())
	cmd.AddCommand(newClassificationCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration and builds the logger.
// The .env file is read first so it can feed the environment layer.
func loadConfig(cmd *cobra.Command) (*CLIContext, error) {
	boot := bootstrapLogger(cmd.ErrOrStderr())

	if err := config.LoadDotEnv(config.DefaultDotEnvFile, boot); err != nil {
		return nil, &configError{err: err}
	}

	cli, err := cliOverrides(cmd)
	if err != nil {
		return nil, err
	}

	env := config.ReadEnvOverrides(boot)

	resolved, err := config.Resolve(env, cli, boot)
	if err != nil {
		return nil, &configError{err: fmt.Errorf("loading config: %w", err)}
	}

	return &CLIContext{
		Cfg:    resolved,
		Logger: buildLogger(resolved, cmd.ErrOrStderr()),
		Flags:  CLIFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet},
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	}, nil
}

// cliOverrides collects the config-backed flags that the running command
// defines and the user set explicitly.
func cliOverrides(cmd *cobra.Command) (config.CLIOverrides, error) {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}
	flags := cmd.Flags()

	if flags.Changed(flagNamePollInterval) {
		d := flagPollInterval.Duration()
		cli.PollInterval = &d
	}

	if flags.Changed(flagNameTimeout) {
		d := flagTimeout.Duration()
		cli.Timeout = &d
	}

	if flags.Changed(flagNameStrict) {
		v, err := flags.GetBool(flagNameStrict)
		if err != nil {
			return cli, newUsageError(cmd, err)
		}

		cli.StrictMatch = &v
	}

	if flags.Changed(flagNameOutputDir) {
		v, err := flags.GetString(flagNameOutputDir)
		if err != nil {
			return cli, newUsageError(cmd, err)
		}

		cli.OutputDir = &v
	}

	return cli, nil
}

// bootstrapLogger is used while the config itself is loading. It only
// reports warnings unless --verbose is set.
func bootstrapLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildLogger creates the command logger. The config file sets the baseline
// level; --verbose and --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Resolved, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	format := ""
	if cfg != nil {
		format = cfg.LogFormat
	}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// useJSONLogs decides the handler for log_format. "auto" picks text for a
// terminal and JSON for anything else.
func useJSONLogs(format string, w io.Writer) bool {
	switch strings.ToLower(format) {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return true
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints the categorized error to stderr and exits with the
// matching code.
func exitOnError(err error) {
	os.Exit(reportError(os.Stderr, err))
}
