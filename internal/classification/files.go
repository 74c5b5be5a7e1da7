package classification

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tonimelisma/cdgc-go/internal/tokenfile"
)

const (
	fileSuffix      = "_classification"
	timestampLayout = "20060102_150405"
	filePerm        = 0o644
	dirPerm         = 0o755
)

// SanitizeBaseName replaces every rune outside [A-Za-z0-9_-] with "_".
func SanitizeBaseName(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}

// JSONFilename returns "{sanitized base}_{YYYYMMDD_HHMMSS}.json".
func JSONFilename(base string, at time.Time) string {
	return SanitizeBaseName(base) + "_" + at.Format(timestampLayout) + ".json"
}

// exportFilename names the file for an exported classification.
func exportFilename(name string, at time.Time) string {
	if name == "" {
		name = "classification"
	}

	return JSONFilename(name+fileSuffix, at)
}

// ReadRecordFile reads and validates one classification document.
func ReadRecordFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	rec, err := ParseRecord(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return rec, nil
}

// WriteRecordFile writes rec as indented JSON to dir/name, creating dir if
// needed. The write is atomic.
func WriteRecordFile(dir, name string, rec Record) (string, error) {
	data, err := rec.MarshalIndent()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := tokenfile.WriteAtomic(path, data, filePerm); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return path, nil
}

// ListRecordFiles returns the *.json files directly inside dir, sorted by
// name.
func ListRecordFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}

		files = append(files, filepath.Join(dir, e.Name()))
	}

	slices.Sort(files)

	return files, nil
}
