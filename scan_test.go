package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
	"github.com/tonimelisma/cdgc-go/internal/ledger"
	"github.com/tonimelisma/cdgc-go/internal/scanjob"
)

// fakeScanAPI scripts search, launch, and status responses.
type fakeScanAPI struct {
	hits      []idmc.Asset
	searchErr error
	searches  int

	runResult *idmc.RunResult
	runErr    error
	runs      int
	runSource string
	runCaps   []string

	statuses  []string
	statusErr error
	polls     int
}

func (f *fakeScanAPI) SearchAssets(_ context.Context, _ idmc.SearchRequest) (*idmc.SearchResult, error) {
	f.searches++

	if f.searchErr != nil {
		return nil, f.searchErr
	}

	return &idmc.SearchResult{TotalHits: len(f.hits), Hits: f.hits}, nil
}

func (f *fakeScanAPI) RunCatalogSourceJob(_ context.Context, sourceID string, caps []string) (*idmc.RunResult, error) {
	f.runs++
	f.runSource = sourceID
	f.runCaps = caps

	return f.runResult, f.runErr
}

func (f *fakeScanAPI) JobStatus(_ context.Context, jobID string) (*idmc.JobStatus, error) {
	f.polls++

	if f.statusErr != nil {
		return nil, f.statusErr
	}

	s := f.statuses[min(f.polls-1, len(f.statuses)-1)]

	st := &idmc.JobStatus{Status: s}
	if s == "FAILED" {
		st.ErrorMessage = "agent unreachable"
	}

	return st, nil
}

// fakeRecorder captures ledger writes.
type fakeRecorder struct {
	launches []ledger.Launch
	outcomes map[string]ledger.Outcome
	err      error
}

func (f *fakeRecorder) RecordLaunch(_ context.Context, l ledger.Launch) (string, error) {
	f.launches = append(f.launches, l)
	return "run-1", f.err
}

func (f *fakeRecorder) RecordOutcome(_ context.Context, jobID string, o ledger.Outcome) error {
	if f.outcomes == nil {
		f.outcomes = make(map[string]ledger.Outcome)
	}

	f.outcomes[jobID] = o

	return f.err
}

func salesDB() *fakeScanAPI {
	return &fakeScanAPI{
		hits:      []idmc.Asset{{Name: "Sales DB", OriginID: "src-1"}},
		runResult: &idmc.RunResult{JobID: "job-1", JobURI: "/jobs/job-1"},
		statuses:  []string{"RUNNING", "COMPLETED"},
	}
}

func meAndDP() scanjob.CapabilitySet {
	return scanjob.NewCapabilitySet(scanjob.MetadataExtraction, scanjob.DataProfiling)
}

// --- buildScanOptions ---

func newTestScanFlags() *scanFlags {
	sf := &scanFlags{toggles: make(map[scanjob.Capability]*bool)}
	for _, c := range scanjob.AllCapabilities {
		sf.toggles[c] = new(bool)
	}

	return sf
}

func TestBuildScanOptions(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}

	t.Run("name and toggles", func(t *testing.T) {
		sf := newTestScanFlags()
		sf.name = "Sales DB"
		*sf.toggles[scanjob.DataQuality] = true
		sf.caps = []string{"me", "Data Quality"}

		opts, err := buildScanOptions(cmd, sf)
		require.NoError(t, err)
		assert.Equal(t, "Sales DB", opts.Name)
		assert.Equal(t, 2, opts.Caps.Len())
		assert.True(t, opts.Caps.Contains(scanjob.MetadataExtraction))
		assert.True(t, opts.Caps.Contains(scanjob.DataQuality))
	})

	t.Run("missing target", func(t *testing.T) {
		sf := newTestScanFlags()
		sf.caps = []string{"me"}

		_, err := buildScanOptions(cmd, sf)

		var ue *usageError
		assert.ErrorAs(t, err, &ue)
	})

	t.Run("both targets", func(t *testing.T) {
		sf := newTestScanFlags()
		sf.name, sf.id = "a", "b"
		sf.caps = []string{"me"}

		_, err := buildScanOptions(cmd, sf)

		var ue *usageError
		assert.ErrorAs(t, err, &ue)
	})

	t.Run("unknown capability", func(t *testing.T) {
		sf := newTestScanFlags()
		sf.name = "a"
		sf.caps = []string{"teleportation"}

		_, err := buildScanOptions(cmd, sf)

		var ue *usageError
		assert.ErrorAs(t, err, &ue)
	})

	t.Run("no capabilities", func(t *testing.T) {
		sf := newTestScanFlags()
		sf.name = "a"

		_, err := buildScanOptions(cmd, sf)
		require.ErrorIs(t, err, scanjob.ErrNoCapabilities)

		var ue *usageError
		assert.False(t, errors.As(err, &ue), "empty capability set exits 1, not 2")
	})
}

// --- runScan ---

func TestRunScan_Succeeds(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	api := salesDB()
	rec := &fakeRecorder{}

	err := runScan(context.Background(), cc, api, rec, scanOptions{Name: "sales db", Caps: meAndDP()})
	require.NoError(t, err)

	assert.Equal(t, 1, api.runs)
	assert.Equal(t, "src-1", api.runSource)
	assert.Equal(t, []string{"Metadata Extraction", "Data Profiling"}, api.runCaps)
	assert.Equal(t, 2, api.polls)
	assert.Contains(t, stdout.String(), "Job job-1 completed")

	require.Len(t, rec.launches, 1)
	assert.Equal(t, "src-1", rec.launches[0].SourceID)
	assert.Equal(t, "Sales DB", rec.launches[0].SourceName)
	assert.Equal(t, "succeeded", rec.outcomes["job-1"].Status)
	assert.Equal(t, "COMPLETED", rec.outcomes["job-1"].RemoteState)
}

func TestRunScan_JobFailed(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	api := salesDB()
	api.statuses = []string{"RUNNING", "FAILED"}
	rec := &fakeRecorder{}

	err := runScan(context.Background(), cc, api, rec, scanOptions{Name: "Sales DB", Caps: meAndDP()})
	require.ErrorIs(t, err, scanjob.ErrJobFailed)
	assert.Contains(t, err.Error(), "agent unreachable")
	assert.Contains(t, stdout.String(), "failed")

	assert.Equal(t, "failed", rec.outcomes["job-1"].Status)
	assert.Equal(t, "agent unreachable", rec.outcomes["job-1"].Reason)
}

func TestRunScan_PartialSuccessIsSuccess(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	api := salesDB()
	api.statuses = []string{"PARTIAL_COMPLETED"}

	err := runScan(context.Background(), cc, api, nil, scanOptions{Name: "Sales DB", Caps: meAndDP()})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "partially completed")
}

func TestRunScan_TimesOut(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	cc.Cfg.Timeout = 5 * cc.Cfg.PollInterval

	api := salesDB()
	api.statuses = []string{"RUNNING"}

	err := runScan(context.Background(), cc, api, nil, scanOptions{Name: "Sales DB", Caps: meAndDP()})
	require.ErrorIs(t, err, scanjob.ErrMonitorTimeout)
	assert.Equal(t, "Timeout", categorize(err).label)
}

func TestRunScan_NoWait(t *testing.T) {
	cc, stdout, stderr := testCLIContext(t)
	api := salesDB()
	rec := &fakeRecorder{}

	err := runScan(context.Background(), cc, api, rec, scanOptions{Name: "Sales DB", Caps: meAndDP(), NoWait: true})
	require.NoError(t, err)

	assert.Zero(t, api.polls)
	assert.Contains(t, stdout.String(), "Job ID:       job-1")
	assert.Contains(t, stderr.String(), "job wait job-1")
	assert.Len(t, rec.launches, 1)
	assert.Empty(t, rec.outcomes)
}

func TestRunScan_ByIDSkipsSearch(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	api := salesDB()

	err := runScan(context.Background(), cc, api, nil, scanOptions{SourceID: "src-9", Caps: meAndDP()})
	require.NoError(t, err)

	assert.Zero(t, api.searches)
	assert.Equal(t, "src-9", api.runSource)
}

func TestRunScan_NotFoundNeverLaunches(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	api := salesDB()
	api.hits = nil

	err := runScan(context.Background(), cc, api, nil, scanOptions{Name: "Nope", Caps: meAndDP()})
	require.ErrorIs(t, err, scanjob.ErrNotFound)
	assert.Zero(t, api.runs)
}

func TestRunScan_StrictAmbiguous(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	cc.Cfg.StrictMatch = true

	api := salesDB()
	api.hits = []idmc.Asset{{Name: "Sales DB Prod", OriginID: "a"}, {Name: "Sales DB Dev", OriginID: "b"}}

	err := runScan(context.Background(), cc, api, nil, scanOptions{Name: "Sales DB", Caps: meAndDP()})
	require.ErrorIs(t, err, scanjob.ErrAmbiguous)
	assert.Zero(t, api.runs)
}

func TestRunScan_LaunchErrorNotRecorded(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	api := salesDB()
	api.runResult = nil
	api.runErr = &idmc.APIError{StatusCode: 500, Message: "agent offline", Err: idmc.ErrServerError}
	rec := &fakeRecorder{}

	err := runScan(context.Background(), cc, api, rec, scanOptions{Name: "Sales DB", Caps: meAndDP()})

	var le *scanjob.LaunchError
	require.ErrorAs(t, err, &le)
	assert.Empty(t, rec.launches)
}

func TestRunScan_LedgerFailureDoesNotFailScan(t *testing.T) {
	cc, _, stderr := testCLIContext(t)
	api := salesDB()
	rec := &fakeRecorder{err: errors.New("disk full")}

	err := runScan(context.Background(), cc, api, rec, scanOptions{Name: "Sales DB", Caps: meAndDP()})
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "could not record launch in ledger")
}

func TestRunScan_JSON(t *testing.T) {
	cc, stdout, _ := testCLIContext(t)
	cc.Flags.JSON = true

	err := runScan(context.Background(), cc, salesDB(), nil, scanOptions{Name: "Sales DB", Caps: meAndDP()})
	require.NoError(t, err)

	var out struct {
		Job struct {
			JobID        string   `json:"jobId"`
			SourceID     string   `json:"sourceId"`
			Capabilities []string `json:"capabilities"`
		} `json:"job"`
		JobID   string `json:"jobId"`
		Outcome struct {
			Result       string `json:"result"`
			RemoteStatus string `json:"remoteStatus"`
			Polls        int    `json:"polls"`
		} `json:"outcome"`
	}

	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, "src-1", out.Job.SourceID)
	assert.Equal(t, "succeeded", out.Outcome.Result)
	assert.Equal(t, "COMPLETED", out.Outcome.RemoteStatus)
	assert.Equal(t, 2, out.Outcome.Polls)
}

func TestRunScan_CanceledContextFails(t *testing.T) {
	cc, _, _ := testCLIContext(t)
	api := salesDB()
	api.statuses = []string{"RUNNING"}
	rec := &fakeRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runScan(ctx, cc, api, rec, scanOptions{SourceID: "src-1", Caps: meAndDP()})
	require.ErrorIs(t, err, scanjob.ErrJobFailed)
	assert.Contains(t, rec.outcomes["job-1"].Reason, "interrupted")
}

// --- capabilities ---

func TestScanCapabilities_Table(t *testing.T) {
	stdout, _, err := execCLI(t, "scan", "capabilities")
	require.NoError(t, err)

	assert.Contains(t, stdout, "CAPABILITY")
	assert.Contains(t, stdout, "--metadata-extraction")
	assert.Contains(t, stdout, "Lineage Discovery")
}

func TestScanCapabilities_JSON(t *testing.T) {
	stdout, _, err := execCLI(t, "scan", "capabilities", "--json")
	require.NoError(t, err)

	var caps []capabilityOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &caps))
	require.Len(t, caps, len(scanjob.AllCapabilities))
	assert.Equal(t, capabilityOutput{Name: "Data Profiling", Flag: "--data-profiling", Abbrev: "dp"}, caps[1])
}

// --- full command against the fake server ---

func TestScanRunCommand_AgainstFakeServer(t *testing.T) {
	saveMonitorFlags(t)

	fake, _ := newFakeEnv(t)
	fake.AddSource("src-1", "Sales DB")
	fake.ScriptStatuses("RUNNING", "COMPLETED")

	stdout, _, err := execCLI(t, "scan", "run", "--name", "Sales DB",
		"--metadata-extraction", "-c", "dp", "-p", "10ms", "-t", "10s", "--json")
	require.NoError(t, err)

	var out scanOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "job-0001", out.JobID)
	require.NotNil(t, out.Outcome)
	assert.Equal(t, "succeeded", out.Outcome.Result)

	runs := fake.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "src-1", runs[0].SourceID)
	assert.Equal(t, []string{"Metadata Extraction", "Data Profiling"}, runs[0].Capabilities)

	// The launch and its outcome land in the ledger.
	stdout, _, err = execCLI(t, "job", "list", "--json")
	require.NoError(t, err)

	var list []ledger.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "job-0001", list[0].JobID)
	assert.Equal(t, "Sales DB", list[0].SourceName)
	assert.Equal(t, "succeeded", list[0].Status)
	assert.NotNil(t, list[0].FinishedAt)

	// The second command reused the cached session.
	assert.Equal(t, 1, fake.Logins())
}

func TestScanRunCommand_FailedJobExitsOne(t *testing.T) {
	saveMonitorFlags(t)

	fake, _ := newFakeEnv(t)
	fake.AddSource("src-1", "Sales DB")
	fake.ScriptStatuses("FAILED")

	_, _, err := execCLI(t, "scan", "run", "-n", "Sales DB", "-c", "me", "-p", "10ms", "-t", "10s")
	require.ErrorIs(t, err, scanjob.ErrJobFailed)
	assert.Contains(t, err.Error(), "connection refused by source database")
	assert.Equal(t, exitFailure, reportError(io.Discard, err))
}

func TestScanRunCommand_NoCapabilitiesBeforeAuth(t *testing.T) {
	fake, _ := newFakeEnv(t)

	_, _, err := execCLI(t, "scan", "run", "--name", "Sales DB")
	require.ErrorIs(t, err, scanjob.ErrNoCapabilities)
	assert.Zero(t, fake.Logins())
	assert.Empty(t, fake.Runs())
}

func TestScanRunCommand_BadPasswordIsAuthError(t *testing.T) {
	fake, _ := newFakeEnv(t)
	fake.AddSource("src-1", "Sales DB")
	t.Setenv("INFORMATICA_PASSWORD", "wrong")

	_, _, err := execCLI(t, "scan", "run", "--name", "Sales DB", "-c", "me")
	require.ErrorIs(t, err, idmc.ErrAuthentication)
	assert.Equal(t, "Authentication Error", categorize(err).label)
	assert.Empty(t, fake.Runs())
}
