package classification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/text/cases"
)

// Store is the remote classification collection. Satisfied by *idmc.Client.
type Store interface {
	ListClassifications(ctx context.Context) ([]json.RawMessage, error)
	CreateClassification(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	UpdateClassification(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error)
}

// Action is what reconciling one record did.
type Action int

const (
	Created Action = iota
	Updated
	Skipped
	Failed
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Result describes the reconciliation of one record. Source is the file
// the record came from, if any.
type Result struct {
	Name     string
	Source   string
	Action   Action
	RemoteID string
	Err      error
}

// Summary counts the actions of a batch.
type Summary struct {
	Created int
	Updated int
	Skipped int
	Failed  int
	Results []Result
}

// Total is the number of records processed.
func (s Summary) Total() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

func (s *Summary) add(r Result) {
	switch r.Action {
	case Created:
		s.Created++
	case Updated:
		s.Updated++
	case Skipped:
		s.Skipped++
	case Failed:
		s.Failed++
	}

	s.Results = append(s.Results, r)
}

// Reconciler creates or updates remote classifications from local records,
// matching by case-insensitive name. Records are processed one at a time and
// the remote collection is re-read for each record.
type Reconciler struct {
	store  Store
	logger *slog.Logger
	fold   cases.Caser
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{store: store, logger: logger, fold: cases.Fold()}
}

// Reconcile imports one record. It never returns an error: failures are
// reported as a Failed result so a batch can continue.
func (rc *Reconciler) Reconcile(ctx context.Context, rec Record, updateIfExists bool) Result {
	res := Result{Name: rec.Name()}

	fail := func(err error) Result {
		rc.logger.Error("classification import failed",
			slog.String("name", res.Name),
			slog.String("error", err.Error()),
		)

		res.Action = Failed
		res.Err = err

		return res
	}

	if err := rec.Validate(); err != nil {
		return fail(err)
	}

	payload, err := rec.PrepareForImport().Payload()
	if err != nil {
		return fail(err)
	}

	existing, err := rc.findByName(ctx, res.Name)
	if err != nil {
		return fail(fmt.Errorf("checking for existing classification: %w", err))
	}

	if existing == nil {
		rc.logger.Info("creating classification", slog.String("name", res.Name))

		created, err := rc.store.CreateClassification(ctx, payload)
		if err != nil {
			return fail(fmt.Errorf("creating classification: %w", err))
		}

		res.Action = Created
		res.RemoteID = responseID(created)

		rc.logger.Info("classification created",
			slog.String("name", res.Name),
			slog.String("id", res.RemoteID),
		)

		return res
	}

	res.RemoteID = existing.ID()

	if !updateIfExists {
		rc.logger.Warn("classification already exists, skipping",
			slog.String("name", res.Name),
			slog.String("id", res.RemoteID),
		)

		res.Action = Skipped

		return res
	}

	if res.RemoteID == "" {
		return fail(errors.New("existing classification has no id"))
	}

	rc.logger.Info("updating classification",
		slog.String("name", res.Name),
		slog.String("id", res.RemoteID),
	)

	if _, err := rc.store.UpdateClassification(ctx, res.RemoteID, payload); err != nil {
		return fail(fmt.Errorf("updating classification %s: %w", res.RemoteID, err))
	}

	res.Action = Updated

	return res
}

// ReconcileAll imports every record in order. Per-record failures are
// counted, never returned.
func (rc *Reconciler) ReconcileAll(ctx context.Context, recs []Record, updateIfExists bool) Summary {
	var sum Summary

	for i, rec := range recs {
		rc.logger.Info("importing classification",
			slog.Int("index", i+1),
			slog.Int("total", len(recs)),
			slog.String("name", rec.Name()),
		)

		sum.add(rc.Reconcile(ctx, rec, updateIfExists))
	}

	return sum
}

// ImportFile reads one file and reconciles it. Read and parse errors give a
// Failed result.
func (rc *Reconciler) ImportFile(ctx context.Context, path string, updateIfExists bool) Result {
	rec, err := ReadRecordFile(path)
	if err != nil {
		rc.logger.Error("reading classification file failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return Result{Name: filepath.Base(path), Source: path, Action: Failed, Err: err}
	}

	res := rc.Reconcile(ctx, rec, updateIfExists)
	res.Source = path

	return res
}

// ImportDirectory imports every *.json file in dir, in name order. Only a
// failure to list dir is returned as an error.
func (rc *Reconciler) ImportDirectory(ctx context.Context, dir string, updateIfExists bool) (Summary, error) {
	files, err := ListRecordFiles(dir)
	if err != nil {
		return Summary{}, err
	}

	if len(files) == 0 {
		rc.logger.Warn("no JSON files found", slog.String("dir", dir))
		return Summary{}, nil
	}

	var sum Summary

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		rc.logger.Info("processing file",
			slog.Int("index", i+1),
			slog.Int("total", len(files)),
			slog.String("file", filepath.Base(path)),
		)

		sum.add(rc.ImportFile(ctx, path, updateIfExists))
	}

	return sum, nil
}

// findByName returns the first remote record whose name matches,
// case-insensitively, or nil.
func (rc *Reconciler) findByName(ctx context.Context, name string) (Record, error) {
	all, err := rc.store.ListClassifications(ctx)
	if err != nil {
		return nil, err
	}

	return matchName(rc.fold, all, name), nil
}

// matchName scans raw remote records for a case-insensitive name match.
// Undecodable entries are ignored.
func matchName(fold cases.Caser, raws []json.RawMessage, name string) Record {
	want := fold.String(name)

	for _, raw := range raws {
		rec, err := ParseRecord(raw)
		if err != nil {
			continue
		}

		if fold.String(rec.Name()) == want {
			return rec
		}
	}

	return nil
}

func responseID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	rec, err := ParseRecord(raw)
	if err != nil {
		return ""
	}

	return rec.ID()
}
