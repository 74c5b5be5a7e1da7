package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
	"github.com/tonimelisma/cdgc-go/testutil"
)

func sessionPath(iso testutil.Isolated) string {
	return filepath.Join(iso.DataDir, "cdgc-go", "session.json")
}

func TestLoginCommand_JSON(t *testing.T) {
	fake, iso := newFakeEnv(t)

	stdout, _, err := execCLI(t, "login", "--json")
	require.NoError(t, err)

	var out loginOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, testutil.FakeOrgID, out.OrgID)
	assert.Equal(t, testutil.FakeOrgName, out.OrgName)
	assert.Equal(t, testutil.FakeUsername, out.UserName)
	assert.Equal(t, fake.URL()+"/saas", out.PodURL)
	assert.False(t, out.Expiry.IsZero())

	assert.FileExists(t, sessionPath(iso))
}

func TestLoginCommand_AlwaysLogsInAgain(t *testing.T) {
	fake, _ := newFakeEnv(t)

	_, _, err := execCLI(t, "login")
	require.NoError(t, err)

	stdout, stderr, err := execCLI(t, "login")
	require.NoError(t, err)

	assert.Equal(t, 2, fake.Logins())
	assert.Contains(t, stdout, testutil.FakeOrgName)
	assert.Contains(t, stderr, "Login successful.")
}

func TestLoginCommand_BadCredentials(t *testing.T) {
	_, iso := newFakeEnv(t)
	t.Setenv("INFORMATICA_PASSWORD", "wrong")

	_, _, err := execCLI(t, "login")
	require.ErrorIs(t, err, idmc.ErrAuthentication)
	assert.NoFileExists(t, sessionPath(iso))
}

func TestLogoutCommand_RemovesSession(t *testing.T) {
	fake, iso := newFakeEnv(t)

	_, _, err := execCLI(t, "login")
	require.NoError(t, err)
	require.FileExists(t, sessionPath(iso))

	_, stderr, err := execCLI(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Logged out.")
	assert.NoFileExists(t, sessionPath(iso))

	// The next command has to log in again.
	_, _, err = execCLI(t, "classification", "list")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Logins())
}

func TestLogoutCommand_NoSessionIsFine(t *testing.T) {
	newFakeEnv(t)

	_, _, err := execCLI(t, "logout")
	assert.NoError(t, err)
}
