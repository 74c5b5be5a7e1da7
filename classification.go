package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/classification"
)

const descriptionWidth = 60

func newClassificationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "classification",
		Aliases: []string{"classifications"},
		Short:   "List, export, and import classifications",
	}

	cmd.AddCommand(newClassificationListCmd())
	cmd.AddCommand(newClassificationExportCmd())
	cmd.AddCommand(newClassificationImportCmd())

	return cmd
}

func newClassificationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the classifications in the catalog",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			api, err := openAPISession(cmd.Context(), cc)
			if err != nil {
				return err
			}

			exp := classification.NewExporter(api.Client, classification.ExportOptions{}, cc.Logger)

			return runClassificationList(cmd.Context(), cc, exp)
		},
	}
}

// classificationLister is the read side used by `classification list`.
type classificationLister interface {
	List(ctx context.Context) ([]classification.Record, error)
}

func runClassificationList(ctx context.Context, cc *CLIContext, lister classificationLister) error {
	recs, err := lister.List(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if recs == nil {
			recs = []classification.Record{}
		}

		return printJSON(cc.Stdout, recs)
	}

	if len(recs) == 0 {
		cc.Statusf("No classifications found.\n")
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{r.Name(), r.ID(), truncate(r.Description(), descriptionWidth)})
	}

	printTable(cc.Stdout, []string{"NAME", "ID", "DESCRIPTION"}, rows)
	cc.Statusf("%d classification(s).\n", len(recs))

	return nil
}

// exportFlags holds the parsed flags of `classification export`.
type exportFlags struct {
	id     string
	name   string
	all    bool
	output string
}

func newClassificationExportCmd() *cobra.Command {
	ef := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export classifications to JSON files",
		Long: `Export one classification (--id or --name) or all of them (--all) to JSON
files. Each file carries the full remote record plus export_date, export_org,
and export_user.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateExportFlags(cmd, ef); err != nil {
				return err
			}

			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			api, err := openAPISession(cmd.Context(), cc)
			if err != nil {
				return err
			}

			exp := classification.NewExporter(api.Client, classification.ExportOptions{
				Dir:  cc.Cfg.OutputDir,
				Org:  api.Session.OrgName,
				User: api.Session.UserID,
			}, cc.Logger)

			return runClassificationExport(cmd.Context(), cc, exp, ef)
		},
	}

	cmd.Flags().StringVarP(&ef.id, "id", "x", "", "classification ID to export")
	cmd.Flags().StringVarP(&ef.name, "name", "n", "", "classification name to export (case-insensitive)")
	cmd.Flags().BoolVarP(&ef.all, "all", "a", false, "export every classification")
	cmd.Flags().StringVarP(&ef.output, "output", "o", "", "output filename (single export only)")
	cmd.Flags().StringP(flagNameOutputDir, "d", "", "output directory (default from config, ./output)")

	return cmd
}

func validateExportFlags(cmd *cobra.Command, ef *exportFlags) error {
	selected := 0

	for _, set := range []bool{ef.id != "", ef.name != "", ef.all} {
		if set {
			selected++
		}
	}

	switch {
	case selected == 0:
		return usageErrorf(cmd, "one of --id, --name, or --all is required")
	case selected > 1:
		return usageErrorf(cmd, "--id, --name, and --all are mutually exclusive")
	case ef.all && ef.output != "":
		return usageErrorf(cmd, "--output applies to a single export, not --all")
	}

	return nil
}

// exporter is the export side used by `classification export`.
type exporter interface {
	ExportByID(ctx context.Context, id, filename string) (string, error)
	ExportByName(ctx context.Context, name, filename string) (string, error)
	ExportAll(ctx context.Context) (classification.ExportSummary, error)
}

// exportOutput is the JSON schema for `classification export --json`.
type exportOutput struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Files     []string `json:"files"`
}

func runClassificationExport(ctx context.Context, cc *CLIContext, exp exporter, ef *exportFlags) error {
	if !ef.all {
		var (
			path string
			err  error
		)

		if ef.id != "" {
			path, err = exp.ExportByID(ctx, ef.id, ef.output)
		} else {
			path, err = exp.ExportByName(ctx, ef.name, ef.output)
		}

		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, exportOutput{Total: 1, Succeeded: 1, Files: []string{path}})
		}

		fmt.Fprintln(cc.Stdout, path)

		return nil
	}

	sum, err := exp.ExportAll(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		files := sum.Files
		if files == nil {
			files = []string{}
		}

		if err := printJSON(cc.Stdout, exportOutput{
			Total: sum.Total, Succeeded: sum.Succeeded, Failed: sum.Failed, Files: files,
		}); err != nil {
			return err
		}
	} else {
		for _, f := range sum.Files {
			fmt.Fprintln(cc.Stdout, f)
		}

		cc.Statusf("Export summary: %d total, %d succeeded, %d failed.\n", sum.Total, sum.Succeeded, sum.Failed)
	}

	if sum.Failed > 0 {
		return &batchError{what: "classification exports", failed: sum.Failed, total: sum.Total}
	}

	return nil
}

// importFlags holds the parsed flags of `classification import`.
type importFlags struct {
	file   string
	dir    string
	update bool
}

func newClassificationImportCmd() *cobra.Command {
	imf := &importFlags{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import classifications from JSON files",
		Long: `Import one file (--file) or every *.json file in a directory (--directory).
A classification whose name already exists is skipped unless --update is set,
in which case it is updated in place. Export provenance fields and the id are
stripped before sending.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case imf.file == "" && imf.dir == "":
				return usageErrorf(cmd, "one of --file or --directory is required")
			case imf.file != "" && imf.dir != "":
				return usageErrorf(cmd, "--file and --directory are mutually exclusive")
			}

			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			release, err := acquireImportLock(cc.Cfg.ImportLock)
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := shutdownContext(cmd.Context(), cc.Logger)
			defer cancel()

			api, err := openAPISession(ctx, cc)
			if err != nil {
				return err
			}

			return runClassificationImport(ctx, cc, classification.NewReconciler(api.Client, cc.Logger), imf)
		},
	}

	cmd.Flags().StringVarP(&imf.file, "file", "f", "", "classification JSON file to import")
	cmd.Flags().StringVarP(&imf.dir, "directory", "d", "", "directory of classification JSON files")
	cmd.Flags().BoolVarP(&imf.update, "update", "u", false, "update classifications that already exist")

	return cmd
}

// importer is the write side used by `classification import`.
type importer interface {
	ImportFile(ctx context.Context, path string, updateIfExists bool) classification.Result
	ImportDirectory(ctx context.Context, dir string, updateIfExists bool) (classification.Summary, error)
}

// importResultOutput is one entry of `classification import --json`.
type importResultOutput struct {
	Name     string `json:"name"`
	File     string `json:"file,omitempty"`
	Action   string `json:"action"`
	RemoteID string `json:"remoteId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type importOutput struct {
	Created int                  `json:"created"`
	Updated int                  `json:"updated"`
	Skipped int                  `json:"skipped"`
	Failed  int                  `json:"failed"`
	Results []importResultOutput `json:"results"`
}

func runClassificationImport(ctx context.Context, cc *CLIContext, imp importer, imf *importFlags) error {
	if imf.file != "" {
		res := imp.ImportFile(ctx, imf.file, imf.update)

		if err := printImport(cc, summaryOf(res)); err != nil {
			return err
		}

		return res.Err
	}

	sum, err := imp.ImportDirectory(ctx, imf.dir, imf.update)
	if printErr := printImport(cc, sum); printErr != nil {
		return printErr
	}

	if err != nil {
		return err
	}

	if sum.Failed > 0 {
		return &batchError{what: "classification imports", failed: sum.Failed, total: sum.Total()}
	}

	return nil
}

func summaryOf(res classification.Result) classification.Summary {
	sum := classification.Summary{Results: []classification.Result{res}}

	switch res.Action {
	case classification.Created:
		sum.Created = 1
	case classification.Updated:
		sum.Updated = 1
	case classification.Skipped:
		sum.Skipped = 1
	case classification.Failed:
		sum.Failed = 1
	}

	return sum
}

func printImport(cc *CLIContext, sum classification.Summary) error {
	if cc.Flags.JSON {
		out := importOutput{
			Created: sum.Created,
			Updated: sum.Updated,
			Skipped: sum.Skipped,
			Failed:  sum.Failed,
			Results: make([]importResultOutput, 0, len(sum.Results)),
		}

		for _, r := range sum.Results {
			ro := importResultOutput{Name: r.Name, File: r.Source, Action: r.Action.String(), RemoteID: r.RemoteID}
			if r.Err != nil {
				ro.Error = r.Err.Error()
			}

			out.Results = append(out.Results, ro)
		}

		return printJSON(cc.Stdout, out)
	}

	if len(sum.Results) > 0 {
		rows := make([][]string, 0, len(sum.Results))
		for _, r := range sum.Results {
			rows = append(rows, []string{r.Name, r.Action.String(), r.RemoteID})
		}

		printTable(cc.Stdout, []string{"NAME", "ACTION", "ID"}, rows)
	}

	cc.Statusf("Import summary: %d created, %d updated, %d skipped, %d failed.\n",
		sum.Created, sum.Updated, sum.Skipped, sum.Failed)

	if sum.Failed > 0 {
		cc.Logger.Warn("some classifications were not imported", slog.Int("failed", sum.Failed))
	}

	return nil
}

// Compile-time checks against the concrete types.
var (
	_ classificationLister = (*classification.Exporter)(nil)
	_ exporter             = (*classification.Exporter)(nil)
	_ importer             = (*classification.Reconciler)(nil)
)
