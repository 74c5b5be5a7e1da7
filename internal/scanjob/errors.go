// Package scanjob resolves catalog sources by name, launches scan jobs with a
// chosen capability set, and monitors those jobs until they reach a terminal
// state or a local timeout.
package scanjob

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrNotFound       = errors.New("catalog source not found")
	ErrAmbiguous      = errors.New("catalog source name is ambiguous")
	ErrNoCapabilities = errors.New("at least one capability is required")
	ErrNoJobID        = errors.New("response did not include a job ID")
	ErrJobFailed      = errors.New("job failed")
	ErrMonitorTimeout = errors.New("job did not finish before the timeout")
)

// ResolveError reports a search failure while resolving a catalog source.
// The transport error is kept for classification but never returned bare.
type ResolveError struct {
	Name string
	Err  error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolving catalog source %q: %v", e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// LaunchError reports that a job could not be started.
type LaunchError struct {
	Source string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching catalog source %q: %v", e.Source, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
