package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Environment variables the CLI reads. Duplicated here so E2E tests can
// build subprocess environments without importing the config package.
var cliEnvVars = []string{
	"CDGC_GO_CONFIG",
	"INFORMATICA_USERNAME",
	"INFORMATICA_PASSWORD",
	"INFORMATICA_LOGIN_URL",
	"INFORMATICA_POD_API_URL",
	"INFORMATICA_CDGC_API_URL",
}

// Isolated describes the temp directories an isolated test runs in.
type Isolated struct {
	Home      string
	ConfigDir string
	DataDir   string
}

// Isolate points HOME and the XDG directories at fresh temp directories and
// clears every CLI environment variable, so a test can never read the real
// config, session cache, or ledger.
func Isolate(t testing.TB) Isolated {
	t.Helper()

	root := t.TempDir()
	iso := Isolated{
		Home:      filepath.Join(root, "home"),
		ConfigDir: filepath.Join(root, "config"),
		DataDir:   filepath.Join(root, "data"),
	}

	for _, d := range []string{iso.Home, iso.ConfigDir, iso.DataDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("creating %s: %v", d, err)
		}
	}

	t.Setenv("HOME", iso.Home)
	t.Setenv("XDG_CONFIG_HOME", iso.ConfigDir)
	t.Setenv("XDG_DATA_HOME", iso.DataDir)

	for _, k := range cliEnvVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	return iso
}

// PointAt sets the credential and URL variables so the CLI talks to f.
func PointAt(t testing.TB, f *FakeIDMC) {
	t.Helper()

	t.Setenv("INFORMATICA_USERNAME", FakeUsername)
	t.Setenv("INFORMATICA_PASSWORD", FakePassword)
	t.Setenv("INFORMATICA_LOGIN_URL", f.URL())
	t.Setenv("INFORMATICA_CDGC_API_URL", f.URL())
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
