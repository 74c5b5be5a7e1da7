package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
	"github.com/tonimelisma/cdgc-go/internal/ledger"
	"github.com/tonimelisma/cdgc-go/internal/scanjob"
)

const ledgerDirPermissions = 0o700

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and monitor scan jobs",
	}

	cmd.AddCommand(newJobStatusCmd())
	cmd.AddCommand(newJobWaitCmd())
	cmd.AddCommand(newJobListCmd())

	return cmd
}

func newJobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Fetch the current status of a job once",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			api, err := openAPISession(cmd.Context(), cc)
			if err != nil {
				return err
			}

			runs, closeLedger := cc.ledgerForLookup(cmd.Context())
			defer closeLedger()

			return runJobStatus(cmd.Context(), cc, api.Client, runs, args[0])
		},
	}
}

// jobStatusOutput is the JSON schema for `job status --json`. The source
// fields come from the local ledger and are empty for jobs launched elsewhere.
type jobStatusOutput struct {
	JobID        string   `json:"jobId"`
	State        string   `json:"state"`
	RemoteStatus string   `json:"remoteStatus"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	SourceID     string   `json:"sourceId,omitempty"`
	SourceName   string   `json:"sourceName,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// runGetter looks up one recorded run. Satisfied by *ledger.Store.
type runGetter interface {
	Get(ctx context.Context, jobID string) (*ledger.Run, error)
}

// runJobStatus reports a job's state. A failed job is reported, not
// returned as an error: the command itself succeeded. runs may be nil.
func runJobStatus(ctx context.Context, cc *CLIContext, status scanjob.StatusFetcher, runs runGetter, jobID string) error {
	mon, err := scanjob.NewMonitor(status, scanjob.MonitorConfig{}, cc.Logger)
	if err != nil {
		return err
	}

	state, st, err := mon.Check(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetching status of job %s: %w", jobID, err)
	}

	out := jobStatusOutput{
		JobID:        jobID,
		State:        state.String(),
		RemoteStatus: st.Status,
		ErrorMessage: st.ErrorMessage,
	}

	if run := lookupRun(ctx, cc, runs, jobID); run != nil {
		out.SourceID = run.SourceID
		out.SourceName = run.SourceName
		out.Capabilities = run.Capabilities
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	fmt.Fprintf(cc.Stdout, "Job:    %s\n", out.JobID)
	fmt.Fprintf(cc.Stdout, "State:  %s (%s)\n", out.State, out.RemoteStatus)

	if out.SourceID != "" {
		fmt.Fprintf(cc.Stdout, "Source: %s\n", sourceLabel(&ledger.Run{SourceID: out.SourceID, SourceName: out.SourceName}))
		fmt.Fprintf(cc.Stdout, "Caps:   %s\n", capabilityAbbrevs(out.Capabilities))
	}

	if out.ErrorMessage != "" {
		fmt.Fprintf(cc.Stdout, "Error:  %s\n", out.ErrorMessage)
	}

	return nil
}

// lookupRun returns the recorded run for jobID, or nil when there is none.
func lookupRun(ctx context.Context, cc *CLIContext, runs runGetter, jobID string) *ledger.Run {
	if runs == nil {
		return nil
	}

	run, err := runs.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			cc.Logger.Warn("reading job ledger", slog.String("job_id", jobID), slog.String("error", err.Error()))
		}

		return nil
	}

	return run
}

func newJobWaitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Monitor an existing job until it finishes or the timeout elapses",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			ctx, cancel := shutdownContext(cmd.Context(), cc.Logger)
			defer cancel()

			api, err := openAPISession(ctx, cc)
			if err != nil {
				return err
			}

			runs, closeLedger := cc.ledgerForRecording(ctx)
			defer closeLedger()

			return runJobWait(ctx, cc, api.Client, runs, args[0])
		},
	}

	cmd.Flags().VarP(&flagPollInterval, flagNamePollInterval, "p", "seconds between status checks")
	cmd.Flags().VarP(&flagTimeout, flagNameTimeout, "t", "maximum seconds to wait for the job")

	return cmd
}

func runJobWait(ctx context.Context, cc *CLIContext, status scanjob.StatusFetcher, runs runRecorder, jobID string) error {
	out, err := waitForJob(ctx, cc, status, runs, jobID)
	if err != nil {
		return err
	}

	if err := printOutcome(cc, nil, jobID, out); err != nil {
		return err
	}

	return out.Err()
}

func newJobListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs launched from this host",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return usageErrorf(cmd, "--limit must not be negative")
			}

			cc, err := cliContextFrom(cmd.Context())
			if err != nil {
				return err
			}

			store, err := cc.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			return runJobList(cmd.Context(), cc, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum number of jobs to show")

	return cmd
}

// runLister reads the ledger. Satisfied by *ledger.Store.
type runLister interface {
	List(ctx context.Context, limit int) ([]ledger.Run, error)
}

func runJobList(ctx context.Context, cc *CLIContext, runs runLister, limit int) error {
	list, err := runs.List(ctx, limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if list == nil {
			list = []ledger.Run{}
		}

		return printJSON(cc.Stdout, list)
	}

	if len(list) == 0 {
		cc.Statusf("No jobs recorded yet.\n")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for i := range list {
		r := &list[i]

		finished := "-"
		if r.FinishedAt != nil {
			finished = formatTime(*r.FinishedAt)
		}

		rows = append(rows, []string{
			r.JobID,
			truncate(sourceLabel(r), 30),
			capabilityAbbrevs(r.Capabilities),
			r.Status,
			formatTime(r.StartedAt),
			finished,
		})
	}

	printTable(cc.Stdout, []string{"JOB ID", "SOURCE", "CAPS", "STATUS", "STARTED", "FINISHED"}, rows)

	return nil
}

func sourceLabel(r *ledger.Run) string {
	if r.SourceName != "" {
		return r.SourceName
	}

	return r.SourceID
}

// capabilityAbbrevs renders stored capability names compactly ("me,dp").
// Names that no longer parse are shown as stored.
func capabilityAbbrevs(names []string) string {
	parts := make([]string, 0, len(names))

	for _, n := range names {
		if c, err := scanjob.ParseCapability(n); err == nil {
			parts = append(parts, c.Abbrev())
		} else {
			parts = append(parts, n)
		}
	}

	return strings.Join(parts, ",")
}

// openLedger opens the job ledger, creating its directory if needed.
func (cc *CLIContext) openLedger(ctx context.Context) (*ledger.Store, error) {
	path := cc.Cfg.LedgerPath
	if path == "" {
		return nil, errors.New("ledger path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), ledgerDirPermissions); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	return ledger.Open(ctx, path, cc.Logger)
}

// ledgerForRecording opens the ledger for a command whose main work does
// not depend on it. On failure it logs and returns a nil recorder.
func (cc *CLIContext) ledgerForRecording(ctx context.Context) (runRecorder, func()) {
	store, err := cc.openLedger(ctx)
	if err != nil {
		cc.Logger.Warn("job ledger unavailable, history will not be recorded", slog.String("error", err.Error()))
		return nil, func() {}
	}

	return store, func() {
		if err := store.Close(); err != nil {
			cc.Logger.Warn("closing job ledger", slog.String("error", err.Error()))
		}
	}
}

// ledgerForLookup opens an existing ledger for read-only enrichment. A
// missing or unreadable ledger yields a nil getter.
func (cc *CLIContext) ledgerForLookup(ctx context.Context) (runGetter, func()) {
	if cc.Cfg.LedgerPath == "" {
		return nil, func() {}
	}

	if _, err := os.Stat(cc.Cfg.LedgerPath); err != nil {
		return nil, func() {}
	}

	store, err := ledger.Open(ctx, cc.Cfg.LedgerPath, cc.Logger)
	if err != nil {
		cc.Logger.Debug("job ledger unavailable", slog.String("error", err.Error()))
		return nil, func() {}
	}

	return store, func() {
		if err := store.Close(); err != nil {
			cc.Logger.Warn("closing job ledger", slog.String("error", err.Error()))
		}
	}
}

// Compile-time checks that the remote client satisfies the command interfaces.
var (
	_ scanAPI     = (*idmc.Client)(nil)
	_ runRecorder = (*ledger.Store)(nil)
	_ runLister   = (*ledger.Store)(nil)
	_ runGetter   = (*ledger.Store)(nil)
)
