// Package classification moves CDGC classification definitions between an
// org and local JSON files. Export writes one document per classification
// with provenance fields appended; import reconciles each document against
// the remote collection by name and creates, updates, or skips it.
package classification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"
)

// ErrInvalidRecord marks a local document that cannot be imported.
var ErrInvalidRecord = errors.New("invalid classification record")

// Field names with special meaning.
const (
	fieldID          = "id"
	fieldName        = "name"
	fieldDescription = "description"
	fieldExportDate  = "export_date"
	fieldExportOrg   = "export_org"
	fieldExportUser  = "export_user"
)

// importStripped lists the fields removed before a record is submitted.
// The export provenance fields are local only; the remote assigns the ID.
var importStripped = []string{fieldExportDate, fieldExportOrg, fieldExportUser, fieldID}

// Record is one classification document. Values are kept as raw JSON so a
// round trip through export and import leaves untouched fields byte-identical.
type Record map[string]json.RawMessage

// ParseRecord decodes a JSON object into a Record.
func ParseRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if r == nil {
		return nil, fmt.Errorf("%w: document is null", ErrInvalidRecord)
	}

	return r, nil
}

// Name returns the "name" field, or "" if absent or not a string.
func (r Record) Name() string {
	return r.stringField(fieldName)
}

// ID returns the "id" field, or "" if absent or not a string.
func (r Record) ID() string {
	return r.stringField(fieldID)
}

// Description returns the "description" field, or "".
func (r Record) Description() string {
	return r.stringField(fieldDescription)
}

func (r Record) stringField(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

// Validate checks that the record carries a non-empty name.
func (r Record) Validate() error {
	if _, ok := r[fieldName]; !ok {
		return fmt.Errorf("%w: missing %q field", ErrInvalidRecord, fieldName)
	}

	if r.Name() == "" {
		return fmt.Errorf("%w: %q must be a non-empty string", ErrInvalidRecord, fieldName)
	}

	return nil
}

// PrepareForImport returns a copy without the export provenance fields and
// the ID. The receiver is not modified.
func (r Record) PrepareForImport() Record {
	out := maps.Clone(r)
	for _, k := range importStripped {
		delete(out, k)
	}

	return out
}

// ExportMeta is the provenance appended to exported documents.
type ExportMeta struct {
	Date time.Time
	Org  string
	User string
}

// WithExportMeta returns a copy with export_date, export_org and export_user
// set. The date uses the HTTP date layout in UTC.
func (r Record) WithExportMeta(meta ExportMeta) Record {
	out := maps.Clone(r)
	if out == nil {
		out = Record{}
	}

	out[fieldExportDate] = mustString(meta.Date.UTC().Format(http.TimeFormat))
	out[fieldExportOrg] = mustString(meta.Org)
	out[fieldExportUser] = mustString(meta.User)

	return out
}

// Payload encodes the record for submission. HTML characters are written
// literally so string values survive unchanged.
func (r Record) Payload() (json.RawMessage, error) {
	b, err := r.encode("")
	if err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(b, []byte("\n")), nil
}

// MarshalIndent encodes the record as indented JSON with sorted keys and a
// trailing newline, the on-disk format.
func (r Record) MarshalIndent() ([]byte, error) {
	return r.encode("  ")
}

func (r Record) encode(indent string) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if indent != "" {
		enc.SetIndent("", indent)
	}

	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encoding classification %q: %w", r.Name(), err)
	}

	return buf.Bytes(), nil
}

func mustString(s string) json.RawMessage {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.Encode(s) //nolint:errcheck // encoding a string cannot fail

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
