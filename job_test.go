package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
	"github.com/tonimelisma/cdgc-go/internal/ledger"
	"github.com/tonimelisma/cdgc-go/internal/scanjob"
)

// fakeLister returns a fixed ledger listing.
type fakeLister struct {
	runs      []ledger.Run
	err       error
	lastLimit int
}

func (f *fakeLister) List(_ context.Context, limit int) ([]ledger.Run, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

// --- job status ---

func TestRunJobStatus_Text(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	api := &fakeScanAPI{statuses: []string{"RUNNING"}}

	require.NoError(t, runJobStatus(context.Background(), cc, api, nil, "job-1"))

	assert.Contains(t, stdout.String(), "Job:    job-1")
	assert.Contains(t, stdout.String(), "State:  RUNNING (RUNNING)")
	assert.NotContains(t, stdout.String(), "Error:")
}

func TestRunJobStatus_FailedJobIsNotAnError(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	cc.Flags.JSON = true

	api := &fakeScanAPI{statuses: []string{"FAILED"}}

	require.NoError(t, runJobStatus(context.Background(), cc, api, nil, "job-1"))

	var out jobStatusOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, jobStatusOutput{
		JobID:        "job-1",
		State:        "FAILED",
		RemoteStatus: "FAILED",
		ErrorMessage: "agent unreachable",
	}, out)
}

func TestRunJobStatus_FetchError(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	api := &fakeScanAPI{statusErr: &idmc.APIError{StatusCode: 404, Message: "no such job", Err: idmc.ErrNotFound}}

	err := runJobStatus(context.Background(), cc, api, nil, "job-x")
	require.ErrorIs(t, err, idmc.ErrNotFound)
	assert.Contains(t, err.Error(), "job-x")
	assert.Equal(t, "Not Found", categorize(err).label)
}

// fakeGetter returns a fixed ledger run.
type fakeGetter struct {
	run *ledger.Run
	err error
}

func (f *fakeGetter) Get(_ context.Context, jobID string) (*ledger.Run, error) {
	if f.err != nil {
		return nil, f.err
	}

	if f.run == nil || f.run.JobID != jobID {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, jobID)
	}

	return f.run, nil
}

func TestRunJobStatus_ShowsRecordedSource(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	api := &fakeScanAPI{statuses: []string{"RUNNING"}}
	runs := &fakeGetter{run: &ledger.Run{
		JobID:        "job-1",
		SourceID:     "src-1",
		SourceName:   "Sales DB",
		Capabilities: []string{"Metadata Extraction", "Data Profiling"},
	}}

	require.NoError(t, runJobStatus(context.Background(), cc, api, runs, "job-1"))

	assert.Contains(t, stdout.String(), "Source: Sales DB")
	assert.Contains(t, stdout.String(), "Caps:   me,dp")
}

func TestRunJobStatus_ForeignJobHasNoSource(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	cc.Flags.JSON = true

	api := &fakeScanAPI{statuses: []string{"RUNNING"}}
	runs := &fakeGetter{run: &ledger.Run{JobID: "other", SourceID: "src-1"}}

	require.NoError(t, runJobStatus(context.Background(), cc, api, runs, "job-1"))
	assert.NotContains(t, stdout.String(), "sourceId")
}

func TestRunJobStatus_LedgerErrorIsIgnored(t *testing.T) {
	cc, stdout, stderr := testCLIContext(t)
	api := &fakeScanAPI{statuses: []string{"COMPLETED"}}

	err := runJobStatus(context.Background(), cc, api, &fakeGetter{err: errors.New("disk I/O error")}, "job-1")
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "State:  SUCCEEDED")
	assert.NotContains(t, stdout.String(), "Source:")
	assert.Contains(t, stderr.String(), "disk I/O error")
}

// --- job wait ---

func TestRunJobWait_RecordsOutcome(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	api := &fakeScanAPI{statuses: []string{"RUNNING", "RUNNING", "COMPLETED"}}
	rec := &fakeRecorder{}

	require.NoError(t, runJobWait(context.Background(), cc, api, rec, "job-7"))

	assert.Equal(t, 3, api.polls)
	assert.Contains(t, stdout.String(), "Job job-7 completed")
	assert.Equal(t, "succeeded", rec.outcomes["job-7"].Status)
}

func TestRunJobWait_ForeignJobStillSucceeds(t *testing.T) {
	cc, _, stderr := testCLIContext(t)
	api := &fakeScanAPI{statuses: []string{"COMPLETED"}}
	rec := &fakeRecorder{err: ledger.ErrNotFound}

	require.NoError(t, runJobWait(context.Background(), cc, api, rec, "job-elsewhere"))
	assert.Contains(t, stderr.String(), "not launched from this host")
	assert.NotContains(t, stderr.String(), "could not record outcome")
}

func TestRunJobWait_Timeout(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	cc.Cfg.Timeout = 3 * cc.Cfg.PollInterval
	cc.Flags.JSON = true

	api := &fakeScanAPI{statuses: []string{"QUEUED"}}

	err := runJobWait(context.Background(), cc, api, nil, "job-1")
	require.ErrorIs(t, err, scanjob.ErrMonitorTimeout)

	var out scanOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Nil(t, out.Job)
	require.NotNil(t, out.Outcome)
	assert.Equal(t, "timed_out", out.Outcome.Result)
	assert.Equal(t, "QUEUED", out.Outcome.RemoteStatus)
}

func TestRunJobWait_PollErrorFails(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	api := &fakeScanAPI{statusErr: errors.New("connection reset")}

	err := runJobWait(context.Background(), cc, api, nil, "job-1")
	require.ErrorIs(t, err, scanjob.ErrJobFailed)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, api.polls)
}

func TestWaitForJob_InvalidMonitorConfig(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	cc.Cfg.Timeout = time.Microsecond

	_, err := waitForJob(context.Background(), cc, &fakeScanAPI{}, nil, "job-1")

	var ce *configError
	assert.ErrorAs(t, err, &ce)
}

// --- job list ---

func TestRunJobList_Empty(t *testing.T) {
	cc, stdout, stderr := testCLIContext(t)

	require.NoError(t, runJobList(context.Background(), cc, &fakeLister{}, 20))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "No jobs recorded yet.")
}

func TestRunJobList_EmptyJSONIsArray(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	cc.Flags.JSON = true

	require.NoError(t, runJobList(context.Background(), cc, &fakeLister{}, 20))
	assert.Equal(t, "[]\n", stdout.String())
}

func TestRunJobList_Table(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)

	started := time.Date(2021, time.June, 1, 8, 30, 0, 0, time.UTC)
	finished := started.Add(12 * time.Minute)

	lister := &fakeLister{runs: []ledger.Run{
		{
			JobID:        "job-2",
			SourceID:     "src-2",
			Capabilities: []string{"Data Quality"},
			Status:       "running",
			StartedAt:    started.Add(time.Hour),
		},
		{
			JobID:        "job-1",
			SourceID:     "src-1",
			SourceName:   "Sales DB",
			Capabilities: []string{"Metadata Extraction", "Data Profiling"},
			Status:       "succeeded",
			StartedAt:    started,
			FinishedAt:   &finished,
		},
	}}

	require.NoError(t, runJobList(context.Background(), cc, lister, 5))
	assert.Equal(t, 5, lister.lastLimit)

	out := stdout.String()
	assert.Contains(t, out, "JOB ID")
	assert.Contains(t, out, "Sales DB")
	assert.Contains(t, out, "me,dp")
	assert.Contains(t, out, "src-2")
	assert.Contains(t, out, "Jun  1  2021")
}

func TestCapabilityAbbrevs(t *testing.T) {
	assert.Equal(t, "me,dp", capabilityAbbrevs([]string{"Metadata Extraction", "Data Profiling"}))
	assert.Equal(t, "ld,Retired Feature", capabilityAbbrevs([]string{"Lineage Discovery", "Retired Feature"}))
	assert.Empty(t, capabilityAbbrevs(nil))
}

// --- full commands against the fake server ---

func TestJobStatusCommand_AgainstFakeServer(t *testing.T) {
	fake, _ := newFakeEnv(t)
	fake.ScriptStatuses("FAILED")

	stdout, _, err := execCLI(t, "job", "status", "job-0001", "--json")
	require.NoError(t, err)

	var out jobStatusOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "FAILED", out.State)
	assert.Equal(t, "connection refused by source database", out.ErrorMessage)
}

func TestJobStatusCommand_IncludesLedgerSource(t *testing.T) {
	fake, iso := newFakeEnv(t)
	fake.AddSource("src-1", "Sales DB")

	_, _, err := execCLI(t, "scan", "run", "--name", "Sales DB", "-c", "me", "-c", "dq", "--no-wait")
	require.NoError(t, err)

	stdout, _, err := execCLI(t, "job", "status", "job-0001", "--json")
	require.NoError(t, err)

	var out jobStatusOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "src-1", out.SourceID)
	assert.Equal(t, "Sales DB", out.SourceName)
	assert.Len(t, out.Capabilities, 2)
	assert.FileExists(t, filepath.Join(iso.DataDir, "cdgc-go", "ledger.db"))
}

func TestJobStatusCommand_DoesNotCreateLedger(t *testing.T) {
	_, iso := newFakeEnv(t)

	_, _, err := execCLI(t, "job", "status", "job-0001")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(iso.DataDir, "cdgc-go", "ledger.db"))
}

func TestJobStatusCommand_UnknownJob(t *testing.T) {
	newFakeEnv(t)

	_, _, err := execCLI(t, "job", "status", "job-9999")
	require.ErrorIs(t, err, idmc.ErrNotFound)
}

func TestJobWaitCommand_AgainstFakeServer(t *testing.T) {
	saveMonitorFlags(t)

	fake, _ := newFakeEnv(t)
	fake.ScriptStatuses("RUNNING", "COMPLETED")

	stdout, _, err := execCLI(t, "job", "wait", "job-0001", "-p", "10ms", "-t", "10s")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Job job-0001 completed")
}

func TestJobCommands_UsageErrors(t *testing.T) {
	newFakeEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"status without id", []string{"job", "status"}},
		{"wait with two ids", []string{"job", "wait", "a", "b"}},
		{"negative limit", []string{"job", "list", "--limit", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execCLI(t, tt.args...)

			var ue *usageError
			require.ErrorAs(t, err, &ue)
		})
	}
}

func TestJobListCommand_NoLedgerYet(t *testing.T) {
	newFakeEnv(t)

	stdout, stderr, err := execCLI(t, "job", "list")
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "No jobs recorded yet.")
}
