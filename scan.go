package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/ledger"
	"github.com/tonimelisma/cdgc-go/internal/scanjob"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run catalog source scan jobs",
	}

	cmd.AddCommand(newScanRunCmd())
	cmd.AddCommand(newScanCapabilitiesCmd())

	return cmd
}

// scanFlags holds the parsed flags of `scan run`.
type scanFlags struct {
	name    string
	id      string
	caps    []string
	toggles map[scanjob.Capability]*bool
	noWait  bool
}

func newScanRunCmd() *cobra.Command {
	sf := &scanFlags{toggles: make(map[scanjob.Capability]*bool, len(scanjob.AllCapabilities))}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a scan job on a catalog source and wait for it",
		Long: `Resolve a catalog source by name (or take its ID), start a job with the
selected capabilities, and poll it until it finishes or the timeout elapses.
A timeout stops local monitoring only; the remote job keeps running.`,
		Example: `  cdgc-go scan run --name "Sales DB" --metadata-extraction --data-profiling
  cdgc-go scan run --id 5f1e... -c me -c dq --no-wait`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScanCmd(cmd, sf)
		},
	}

	cmd.Flags().StringVarP(&sf.name, "name", "n", "", "catalog source name")
	cmd.Flags().StringVar(&sf.id, "id", "", "catalog source ID (skips name resolution)")
	cmd.Flags().StringSliceVarP(&sf.caps, "capability", "c", nil,
		"capability by name, flag name, or abbreviation (repeatable)")

	for _, c := range scanjob.AllCapabilities {
		sf.toggles[c] = cmd.Flags().Bool(c.FlagName(), false, "run "+string(c))
	}

	cmd.Flags().VarP(&flagPollInterval, flagNamePollInterval, "p", "seconds between status checks")
	cmd.Flags().VarP(&flagTimeout, flagNameTimeout, "t", "maximum seconds to wait for the job")
	cmd.Flags().Bool(flagNameStrict, false, "fail unless exactly one catalog source matches the name")
	cmd.Flags().BoolVar(&sf.noWait, "no-wait", false, "start the job and exit without monitoring")

	return cmd
}

// scanOptions is a validated `scan run` request.
type scanOptions struct {
	Name     string
	SourceID string
	Caps     scanjob.CapabilitySet
	NoWait   bool
}

// buildScanOptions checks flag combinations. A missing or doubled target is
// a usage error; an empty capability set is a validation error so it is
// reported the same way as from the launcher.
func buildScanOptions(cmd *cobra.Command, sf *scanFlags) (scanOptions, error) {
	switch {
	case sf.name == "" && sf.id == "":
		return scanOptions{}, usageErrorf(cmd, "one of --name or --id is required")
	case sf.name != "" && sf.id != "":
		return scanOptions{}, usageErrorf(cmd, "--name and --id are mutually exclusive")
	}

	var caps scanjob.CapabilitySet

	for _, c := range scanjob.AllCapabilities {
		if p := sf.toggles[c]; p != nil && *p {
			caps.Add(c)
		}
	}

	for _, s := range sf.caps {
		c, err := scanjob.ParseCapability(s)
		if err != nil {
			return scanOptions{}, newUsageError(cmd, err)
		}

		caps.Add(c)
	}

	if caps.Len() == 0 {
		return scanOptions{}, fmt.Errorf("%w: pass capability flags such as --metadata-extraction or -c dp",
			scanjob.ErrNoCapabilities)
	}

	return scanOptions{Name: sf.name, SourceID: sf.id, Caps: caps, NoWait: sf.noWait}, nil
}

func runScanCmd(cmd *cobra.Command, sf *scanFlags) error {
	opts, err := buildScanOptions(cmd, sf)
	if err != nil {
		return err
	}

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

	return runScan(ctx, cc, api.Client, runs, opts)
}

// scanAPI is everything a scan needs from the remote side. Satisfied by
// *idmc.Client.
type scanAPI interface {
	scanjob.Searcher
	scanjob.JobRunner
	scanjob.StatusFetcher
}

// runScan resolves, launches, and (unless NoWait) monitors one job. runs may
// be nil when the ledger is unavailable.
func runScan(ctx context.Context, cc *CLIContext, api scanAPI, runs runRecorder, opts scanOptions) error {
	res, err := resolveTarget(ctx, cc, api, opts)
	if err != nil {
		return err
	}

	cc.Statusf("Starting %s on %q...\n", opts.Caps, displayName(res))

	handle, err := scanjob.NewLauncher(api, cc.Logger).Launch(ctx, res, opts.Caps)
	if err != nil {
		return err
	}

	recordLaunch(ctx, cc, runs, handle)

	if opts.NoWait {
		return printLaunched(cc, handle)
	}

	cc.Statusf("Job %s started.\n", handle.JobID)

	out, err := waitForJob(ctx, cc, api, runs, handle.JobID)
	if err != nil {
		return err
	}

	if err := printOutcome(cc, handle, handle.JobID, out); err != nil {
		return err
	}

	return out.Err()
}

func resolveTarget(ctx context.Context, cc *CLIContext, search scanjob.Searcher, opts scanOptions) (*scanjob.Resource, error) {
	if opts.SourceID != "" {
		cc.Logger.Debug("using catalog source ID, skipping resolution", slog.String("source_id", opts.SourceID))
		return &scanjob.Resource{ID: opts.SourceID}, nil
	}

	return scanjob.NewResolver(search, cc.Cfg.StrictMatch, cc.Logger).Resolve(ctx, opts.Name)
}

func displayName(res *scanjob.Resource) string {
	if res.Name != "" {
		return res.Name
	}

	return res.ID
}

// scanOutput is the JSON schema for `scan run --json` and `job wait --json`.
type scanOutput struct {
	Job     *scanjob.JobHandle `json:"job,omitempty"`
	JobID   string             `json:"jobId"`
	Outcome *outcomeOutput     `json:"outcome,omitempty"`
}

type outcomeOutput struct {
	Result       string `json:"result"`
	RemoteStatus string `json:"remoteStatus,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Elapsed      string `json:"elapsed"`
	Polls        int    `json:"polls"`
}

func newOutcomeOutput(out scanjob.Outcome) *outcomeOutput {
	o := &outcomeOutput{
		Result:  out.Kind.String(),
		Reason:  out.Reason,
		Elapsed: formatElapsed(out.Elapsed),
		Polls:   out.Polls,
	}

	if out.Status != nil {
		o.RemoteStatus = out.Status.Status
	}

	return o
}

func printLaunched(cc *CLIContext, handle *scanjob.JobHandle) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, scanOutput{Job: handle, JobID: handle.JobID})
	}

	fmt.Fprintf(cc.Stdout, "Job ID:       %s\n", handle.JobID)

	if handle.TrackingURI != "" {
		fmt.Fprintf(cc.Stdout, "Tracking URI: %s\n", handle.TrackingURI)
	}

	cc.Statusf("Not waiting. Monitor with: %s job wait %s\n", rootName, handle.JobID)

	return nil
}

// printOutcome reports a finished wait. Failures are printed here and
// returned as errors by the caller, so the exit code follows the outcome.
func printOutcome(cc *CLIContext, handle *scanjob.JobHandle, jobID string, out scanjob.Outcome) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, scanOutput{Job: handle, JobID: jobID, Outcome: newOutcomeOutput(out)})
	}

	elapsed := formatElapsed(out.Elapsed)

	switch out.Kind {
	case scanjob.Succeeded:
		fmt.Fprintf(cc.Stdout, "Job %s completed in %s.\n", jobID, elapsed)
	case scanjob.PartialSuccess:
		cc.Logger.Warn("job completed with partial success", slog.String("job_id", jobID))
		fmt.Fprintf(cc.Stdout, "Job %s partially completed in %s; some capabilities reported problems.\n", jobID, elapsed)
	case scanjob.Failed:
		fmt.Fprintf(cc.Stdout, "Job %s failed after %s.\n", jobID, elapsed)
	case scanjob.TimedOut:
		fmt.Fprintf(cc.Stdout, "Job %s still running after %s; stopped waiting.\n", jobID, elapsed)
	}

	return nil
}

// waitForJob runs the monitor on jobID and records the outcome.
func waitForJob(ctx context.Context, cc *CLIContext, status scanjob.StatusFetcher, runs runRecorder, jobID string) (scanjob.Outcome, error) {
	mon, err := scanjob.NewMonitor(status, scanjob.MonitorConfig{
		PollInterval: cc.Cfg.PollInterval,
		Timeout:      cc.Cfg.Timeout,
	}, cc.Logger)
	if err != nil {
		return scanjob.Outcome{}, &configError{err: err}
	}

	cc.Statusf("Waiting for job %s (checking every %s, timeout %s)...\n",
		jobID, cc.Cfg.PollInterval, cc.Cfg.Timeout)

	out := mon.Wait(ctx, jobID)
	recordOutcome(ctx, cc, runs, jobID, out)

	return out, nil
}

// runRecorder is the part of the ledger that scans write to.
type runRecorder interface {
	RecordLaunch(ctx context.Context, l ledger.Launch) (string, error)
	RecordOutcome(ctx context.Context, jobID string, o ledger.Outcome) error
}

// recordLaunch stores the launch in the ledger. A ledger failure never
// fails the scan: the job is already running remotely.
func recordLaunch(ctx context.Context, cc *CLIContext, runs runRecorder, handle *scanjob.JobHandle) {
	if runs == nil {
		return
	}

	_, err := runs.RecordLaunch(ctx, ledger.Launch{
		JobID:        handle.JobID,
		SourceID:     handle.SourceID,
		SourceName:   handle.SourceName,
		TrackingURI:  handle.TrackingURI,
		Capabilities: handle.Capabilities,
	})
	if err != nil {
		cc.Logger.Warn("could not record launch in ledger",
			slog.String("job_id", handle.JobID),
			slog.String("error", err.Error()),
		)
	}
}

func recordOutcome(ctx context.Context, cc *CLIContext, runs runRecorder, jobID string, out scanjob.Outcome) {
	if runs == nil {
		return
	}

	o := ledger.Outcome{Status: out.Kind.String(), Reason: out.Reason}
	if out.Status != nil {
		o.RemoteState = out.Status.Status
	}

	// The wait may have been interrupted; the outcome still belongs in the
	// ledger.
	err := runs.RecordOutcome(context.WithoutCancel(ctx), jobID, o)
	if err == nil {
		return
	}

	if errors.Is(err, ledger.ErrNotFound) {
		cc.Logger.Debug("job was not launched from this host, outcome not recorded", slog.String("job_id", jobID))
		return
	}

	cc.Logger.Warn("could not record outcome in ledger",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
}

func newScanCapabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List the scan capabilities and their flags",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCapabilities(cmd.OutOrStdout(), flagJSON)
		},
	}
}

type capabilityOutput struct {
	Name   string `json:"name"`
	Flag   string `json:"flag"`
	Abbrev string `json:"abbrev"`
}

func printCapabilities(w io.Writer, asJSON bool) error {
	if asJSON {
		out := make([]capabilityOutput, 0, len(scanjob.AllCapabilities))
		for _, c := range scanjob.AllCapabilities {
			out = append(out, capabilityOutput{Name: string(c), Flag: "--" + c.FlagName(), Abbrev: c.Abbrev()})
		}

		return printJSON(w, out)
	}

	rows := make([][]string, 0, len(scanjob.AllCapabilities))
	for _, c := range scanjob.AllCapabilities {
		rows = append(rows, []string{string(c), "--" + c.FlagName(), c.Abbrev()})
	}

	printTable(w, []string{"CAPABILITY", "FLAG", "ABBREV"}, rows)

	return nil
}
