package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

const (
	lockFilePermissions = 0o644
	lockDirPermissions  = 0o755
)

// errImportLocked is returned when another import holds the lock.
var errImportLocked = errors.New("another classification import is running on this host")

// acquireImportLock takes an exclusive, non-blocking flock on path and
// records the current PID in it. The returned release func removes the file
// and drops the lock. Imports assume a single writer per remote collection;
// the lock enforces that for this host.
func acquireImportLock(path string) (release func(), err error) {
	if path == "" {
		return nil, errors.New("import lock path is empty: cannot determine data directory")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), lockDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating lock directory: %w", mkdirErr)
	}

	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	if !locked {
		if pid, readErr := readLockPID(path); readErr == nil {
			return nil, fmt.Errorf("%w (PID %d holds %s)", errImportLocked, pid, path)
		}

		return nil, fmt.Errorf("%w (could not lock %s)", errImportLocked, path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), lockFilePermissions); err != nil {
		fl.Unlock()

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		fl.Unlock()
	}, nil
}

// readLockPID reads the PID recorded in a lock file.
func readLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}
