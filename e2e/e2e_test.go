//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cdgc-go/testutil"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "cdgc-go-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "cdgc-go")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = testutil.FindModuleRoot("..")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// runCLI runs the binary with the test's environment and returns both
// streams and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = t.TempDir()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return stdout.String(), stderr.String(), 0
	case errors.As(err, &exitErr):
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	default:
		t.Fatalf("running %v: %v", args, err)
		return "", "", -1
	}
}

// mustRunCLI fails the test unless the command exits 0.
func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()

	stdout, stderr, code := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("CLI command %v exited %d\nstdout: %s\nstderr: %s", args, code, stdout, stderr)
	}

	return stdout
}

func TestE2E_NoArgsPrintsHelp(t *testing.T) {
	testutil.Isolate(t)

	stdout, _, code := runCLI(t)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage:")
}

func TestE2E_UsageErrorExitsTwo(t *testing.T) {
	testutil.Isolate(t)

	_, stderr, code := runCLI(t, "scan", "run", "--no-such-flag")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage Error:")
}

func TestE2E_Capabilities(t *testing.T) {
	testutil.Isolate(t)

	stdout := mustRunCLI(t, "scan", "capabilities", "--json")

	var caps []map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &caps))
	assert.Len(t, caps, 7)
}

func TestE2E_ConfigShowFromDotEnv(t *testing.T) {
	testutil.Isolate(t)

	fake := testutil.NewFakeIDMC()
	defer fake.Close()

	// .env is read from the working directory.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(
		"INFORMATICA_USERNAME="+testutil.FakeUsername+"\n"+
			"INFORMATICA_PASSWORD="+testutil.FakePassword+"\n"+
			"INFORMATICA_LOGIN_URL="+fake.URL()+"\n"), 0o600))

	cmd := exec.Command(binaryPath, "config", "show", "--json")
	cmd.Dir = dir

	out, err := cmd.Output()
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal(out, &cfg))
	assert.Equal(t, testutil.FakeUsername, cfg["username"])
	assert.Equal(t, fake.URL(), cfg["login_url"])
	assert.Equal(t, "<set>", cfg["password"])
}

func TestE2E_ScanAndJobHistory(t *testing.T) {
	testutil.Isolate(t)

	fake := testutil.NewFakeIDMC()
	defer fake.Close()

	testutil.PointAt(t, fake)
	fake.AddSource("src-1", "Sales DB")
	fake.ScriptStatuses("RUNNING", "COMPLETED")

	t.Run("scan_run", func(t *testing.T) {
		stdout := mustRunCLI(t, "scan", "run", "--name", "Sales DB",
			"--metadata-extraction", "--data-profiling", "-p", "50ms", "-t", "30s", "--json")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "job-0001", out["jobId"])

		outcome, ok := out["outcome"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "succeeded", outcome["result"])
	})

	t.Run("job_list", func(t *testing.T) {
		stdout := mustRunCLI(t, "job", "list")
		assert.Contains(t, stdout, "job-0001")
		assert.Contains(t, stdout, "me,dp")
		assert.Contains(t, stdout, "succeeded")
	})

	t.Run("failed_job_exits_one", func(t *testing.T) {
		fake.ScriptStatuses("FAILED")

		_, stderr, code := runCLI(t, "scan", "run", "--id", "src-1", "-c", "dq", "-p", "50ms", "-t", "30s")
		assert.Equal(t, 1, code)
		assert.Contains(t, stderr, "Job Failed:")
	})

	assert.Equal(t, 1, fake.Logins(), "later commands reuse the cached session")
}

func TestE2E_ClassificationRoundTrip(t *testing.T) {
	testutil.Isolate(t)

	fake := testutil.NewFakeIDMC()
	defer fake.Close()

	testutil.PointAt(t, fake)
	fake.AddClassification("c1", "PII", "Personal data")
	fake.AddClassification("c2", "PCI", "Card data")

	outDir := t.TempDir()

	stdout := mustRunCLI(t, "classification", "export", "--all", "--output-dir", outDir, "--json")

	var exp map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &exp))
	assert.EqualValues(t, 2, exp["succeeded"])

	// Re-importing the export skips both: the names already exist.
	stdout = mustRunCLI(t, "classification", "import", "--directory", outDir, "--json")

	var imp map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &imp))
	assert.EqualValues(t, 2, imp["skipped"])
	assert.Zero(t, fake.ClassificationWrites())

	// With --update both are written back in place.
	stdout = mustRunCLI(t, "classification", "import", "--directory", outDir, "--update", "--json")
	require.NoError(t, json.Unmarshal([]byte(stdout), &imp))
	assert.EqualValues(t, 2, imp["updated"])
	assert.Equal(t, 2, fake.ClassificationWrites())
}
