package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondsFlag_Set(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"10", 10 * time.Second},
		{"0", 0},
		{"10s", 10 * time.Second},
		{"5m", 5 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"250ms", 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f secondsFlag

			require.NoError(t, f.Set(tt.in))
			assert.Equal(t, tt.want, f.Duration())
		})
	}
}

func TestSecondsFlag_Invalid(t *testing.T) {
	var f secondsFlag

	err := f.Set("soon")
	assert.ErrorContains(t, err, `got "soon"`)
}

func TestSecondsFlag_StringAndType(t *testing.T) {
	f := secondsFlag(90 * time.Second)

	assert.Equal(t, "1m30s", f.String())
	assert.Equal(t, "seconds", f.Type())
}

// saveMonitorFlags restores the shared monitor flag globals after a test
// that parses them.
func saveMonitorFlags(t *testing.T) {
	t.Helper()

	oldPoll, oldTimeout := flagPollInterval, flagTimeout

	t.Cleanup(func() {
		flagPollInterval = oldPoll
		flagTimeout = oldTimeout
	})
}

func TestCLIOverrides_OnlyChangedFlags(t *testing.T) {
	saveMonitorFlags(t)

	cmd := newScanRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"-p", "15", "--strict"}))

	cli, err := cliOverrides(cmd)
	require.NoError(t, err)

	require.NotNil(t, cli.PollInterval)
	assert.Equal(t, 15*time.Second, *cli.PollInterval)
	assert.Nil(t, cli.Timeout)
	require.NotNil(t, cli.StrictMatch)
	assert.True(t, *cli.StrictMatch)
	assert.Nil(t, cli.OutputDir)
}

func TestCLIOverrides_OutputDir(t *testing.T) {
	cmd := newClassificationExportCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--output-dir", "/tmp/exports"}))

	cli, err := cliOverrides(cmd)
	require.NoError(t, err)

	require.NotNil(t, cli.OutputDir)
	assert.Equal(t, "/tmp/exports", *cli.OutputDir)
	assert.Nil(t, cli.PollInterval)
}
