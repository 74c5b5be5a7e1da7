package classification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/cases"
)

// DefaultOutputDir is where exports land when no directory is configured.
const DefaultOutputDir = "./output"

// ErrNotFound is returned when no classification has the requested name.
var ErrNotFound = errors.New("classification not found")

// Source reads remote classifications. Satisfied by *idmc.Client.
type Source interface {
	ListClassifications(ctx context.Context) ([]json.RawMessage, error)
	GetClassification(ctx context.Context, id string) (json.RawMessage, error)
}

// ExportOptions configures an Exporter. Org and User become the export_org
// and export_user provenance fields.
type ExportOptions struct {
	Dir  string
	Org  string
	User string
}

// ExportSummary reports a batch export.
type ExportSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Files     []string
}

// Exporter writes remote classifications to local JSON files.
type Exporter struct {
	src    Source
	opts   ExportOptions
	logger *slog.Logger
	fold   cases.Caser

	nowFunc func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(src Source, opts ExportOptions, logger *slog.Logger) *Exporter {
	if opts.Dir == "" {
		opts.Dir = DefaultOutputDir
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Exporter{
		src:     src,
		opts:    opts,
		logger:  logger,
		fold:    cases.Fold(),
		nowFunc: time.Now,
	}
}

// List returns the remote collection in server order. Entries that do not
// decode as JSON objects are logged and skipped.
func (e *Exporter) List(ctx context.Context) ([]Record, error) {
	recs, _, err := e.list(ctx)
	return recs, err
}

// list also reports how many entries were skipped as undecodable.
func (e *Exporter) list(ctx context.Context) ([]Record, int, error) {
	raws, err := e.src.ListClassifications(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing classifications: %w", err)
	}

	recs := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := ParseRecord(raw)
		if err != nil {
			e.logger.Warn("skipping undecodable classification", slog.String("error", err.Error()))
			continue
		}

		recs = append(recs, rec)
	}

	return recs, len(raws) - len(recs), nil
}

// ExportByID fetches one classification and writes it. An empty filename
// selects the generated "{name}_classification_{timestamp}.json". Returns the
// written path.
func (e *Exporter) ExportByID(ctx context.Context, id, filename string) (string, error) {
	e.logger.Info("fetching classification", slog.String("id", id))

	raw, err := e.src.GetClassification(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fetching classification %s: %w", id, err)
	}

	rec, err := ParseRecord(raw)
	if err != nil {
		return "", fmt.Errorf("decoding classification %s: %w", id, err)
	}

	return e.write(rec, filename)
}

// ExportByName finds a classification by case-insensitive name and exports
// it.
func (e *Exporter) ExportByName(ctx context.Context, name, filename string) (string, error) {
	raws, err := e.src.ListClassifications(ctx)
	if err != nil {
		return "", fmt.Errorf("listing classifications: %w", err)
	}

	match := matchName(e.fold, raws, name)
	if match == nil {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if match.ID() == "" {
		return "", fmt.Errorf("classification %q has no id", name)
	}

	e.logger.Info("found classification",
		slog.String("name", match.Name()),
		slog.String("id", match.ID()),
	)

	return e.ExportByID(ctx, match.ID(), filename)
}

// ExportAll exports every classification to its own file. A failure on one
// classification, including a list entry that does not decode, is logged and
// counted; only a failure to list is returned.
func (e *Exporter) ExportAll(ctx context.Context) (ExportSummary, error) {
	recs, undecodable, err := e.list(ctx)
	if err != nil {
		return ExportSummary{}, err
	}

	sum := ExportSummary{Total: len(recs) + undecodable, Failed: undecodable}
	if sum.Total == 0 {
		e.logger.Warn("no classifications found")
		return sum, nil
	}

	for i, summary := range recs {
		name := summary.Name()

		e.logger.Info("exporting classification",
			slog.Int("index", i+1),
			slog.Int("total", len(recs)),
			slog.String("name", name),
		)

		path, err := e.exportSummaryRecord(ctx, summary)
		if err != nil {
			sum.Failed++

			e.logger.Error("classification export failed",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)

			continue
		}

		sum.Succeeded++
		sum.Files = append(sum.Files, path)
	}

	return sum, nil
}

// exportSummaryRecord exports one entry of the list response. The file is
// named after the list entry's name.
func (e *Exporter) exportSummaryRecord(ctx context.Context, summary Record) (string, error) {
	id := summary.ID()
	if id == "" {
		return "", errors.New("list entry has no id")
	}

	raw, err := e.src.GetClassification(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fetching classification %s: %w", id, err)
	}

	rec, err := ParseRecord(raw)
	if err != nil {
		return "", fmt.Errorf("decoding classification %s: %w", id, err)
	}

	return e.write(rec, exportFilename(summary.Name(), e.nowFunc()))
}

func (e *Exporter) write(rec Record, filename string) (string, error) {
	now := e.nowFunc()
	if filename == "" {
		filename = exportFilename(rec.Name(), now)
	}

	out := rec.WithExportMeta(ExportMeta{Date: now, Org: e.opts.Org, User: e.opts.User})

	path, err := WriteRecordFile(e.opts.Dir, filename, out)
	if err != nil {
		return "", err
	}

	e.logger.Info("classification exported",
		slog.String("name", rec.Name()),
		slog.String("path", path),
	)

	return path, nil
}
