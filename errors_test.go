package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/cdgc-go/internal/classification"
	"github.com/tonimelisma/cdgc-go/internal/idmc"
	"github.com/tonimelisma/cdgc-go/internal/scanjob"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		label string
	}{
		{"config", &configError{err: errors.New("bad key")}, "Configuration Error"},
		{"authentication", fmt.Errorf("login: %w", idmc.ErrAuthentication), "Authentication Error"},
		{"unauthorized", fmt.Errorf("search: %w", idmc.ErrUnauthorized), "Authentication Error"},
		{
			"auth inside launch error",
			&scanjob.LaunchError{Source: "s1", Err: idmc.ErrUnauthorized},
			"Authentication Error",
		},
		{"ambiguous", fmt.Errorf("%w: 2 matches", scanjob.ErrAmbiguous), "Ambiguous Match"},
		{"source not found", fmt.Errorf("%w: %q", scanjob.ErrNotFound, "x"), "Not Found"},
		{"classification not found", classification.ErrNotFound, "Not Found"},
		{"no capabilities", scanjob.ErrNoCapabilities, "Validation Error"},
		{"invalid record", classification.ErrInvalidRecord, "Validation Error"},
		{"timeout", fmt.Errorf("job j1: %w", scanjob.ErrMonitorTimeout), "Timeout"},
		{"job failed", fmt.Errorf("job j1: %w", scanjob.ErrJobFailed), "Job Failed"},
		{"launch", &scanjob.LaunchError{Source: "s1", Err: errors.New("boom")}, "Launch Error"},
		{"forbidden", idmc.ErrForbidden, "API Error"},
		{"api", &idmc.APIError{StatusCode: 500, Message: "oops"}, "API Error"},
		{"batch", &batchError{what: "imports", failed: 1, total: 3}, "Error"},
		{"other", errors.New("something"), "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.label, categorize(tt.err).label)
		})
	}
}

func TestReportError_Nil(t *testing.T) {
	var buf bytes.Buffer

	assert.Equal(t, exitOK, reportError(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestReportError_Usage(t *testing.T) {
	cmd := &cobra.Command{Use: "demo"}
	cmd.Flags().String("name", "", "a name")

	var buf bytes.Buffer

	code := reportError(&buf, usageErrorf(cmd, "--name is required"))

	assert.Equal(t, exitUsage, code)
	assert.Contains(t, buf.String(), "Usage Error: --name is required")
	assert.Contains(t, buf.String(), "--name")
}

func TestReportError_Categorized(t *testing.T) {
	var buf bytes.Buffer

	code := reportError(&buf, fmt.Errorf("job j1: %w", scanjob.ErrMonitorTimeout))

	assert.Equal(t, exitFailure, code)
	assert.Contains(t, buf.String(), "Timeout: job j1: job did not finish before the timeout")
	assert.Contains(t, buf.String(), "Hint: the remote job keeps running")
}

func TestReportError_NoHint(t *testing.T) {
	var buf bytes.Buffer

	assert.Equal(t, exitFailure, reportError(&buf, errors.New("plain")))
	assert.Equal(t, "Error: plain\n", buf.String())
}

func TestUsageArgs(t *testing.T) {
	cmd := &cobra.Command{Use: "demo"}
	validate := usageArgs(cobra.ExactArgs(1))

	assert.NoError(t, validate(cmd, []string{"a"}))

	err := validate(cmd, nil)

	var ue *usageError
	assert.ErrorAs(t, err, &ue)
}

func TestBatchError_Message(t *testing.T) {
	err := &batchError{what: "classification exports", failed: 2, total: 5}
	assert.Equal(t, "2 of 5 classification exports failed", err.Error())
}
