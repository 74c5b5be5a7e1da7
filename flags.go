package main

import (
	"fmt"
	"strconv"
	"time"
)

// Names of flags that feed config.CLIOverrides.
const (
	flagNamePollInterval = "poll-interval"
	flagNameTimeout      = "timeout"
	flagNameStrict       = "strict"
	flagNameOutputDir    = "output-dir"
)

// secondsFlag is a duration flag that also accepts a bare integer number of
// seconds, so "-p 10" and "-p 10s" mean the same thing.
type secondsFlag time.Duration

func (f *secondsFlag) String() string {
	return time.Duration(*f).String()
}

func (f *secondsFlag) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		*f = secondsFlag(time.Duration(n) * time.Second)
		return nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("expected seconds or a duration like 30s or 5m, got %q", s)
	}

	*f = secondsFlag(d)

	return nil
}

func (f *secondsFlag) Type() string {
	return "seconds"
}

// Duration returns the flag value.
func (f *secondsFlag) Duration() time.Duration {
	return time.Duration(*f)
}

// Monitor flags shared by `scan run` and `job wait`. Their values only reach
// the config through cliOverrides when explicitly set.
var (
	flagPollInterval secondsFlag
	flagTimeout      secondsFlag
)
