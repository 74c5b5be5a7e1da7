package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cdgc-go/internal/classification"
	"github.com/tonimelisma/cdgc-go/internal/idmc"
	"github.com/tonimelisma/cdgc-go/internal/ledger"
	"github.com/tonimelisma/cdgc-go/internal/scanjob"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks a command-line mistake: unknown flag, wrong argument
// count, or an invalid flag combination. It exits 2 and prints usage.
type usageError struct {
	cmd *cobra.Command
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func newUsageError(cmd *cobra.Command, err error) error {
	return &usageError{cmd: cmd, err: err}
}

func usageErrorf(cmd *cobra.Command, format string, args ...any) error {
	return newUsageError(cmd, fmt.Errorf(format, args...))
}

// usageArgs wraps a cobra positional-args validator so its failures exit 2.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return newUsageError(cmd, err)
		}

		return nil
	}
}

// configError marks a failure to load or validate configuration.
type configError struct {
	err error
}

func (e *configError) Error() string {
	return e.err.Error()
}

func (e *configError) Unwrap() error {
	return e.err
}

// batchError reports a batch that finished with per-item failures.
type batchError struct {
	what   string
	failed int
	total  int
}

func (e *batchError) Error() string {
	return fmt.Sprintf("%d of %d %s failed", e.failed, e.total, e.what)
}

// errorCategory is the label and remediation shown for a failure.
type errorCategory struct {
	label string
	hint  string
}

// categorize maps an error to the label printed before it. The checks are
// ordered: an authentication failure wrapped in a launch error is still an
// authentication failure.
func categorize(err error) errorCategory {
	var (
		launchErr *scanjob.LaunchError
		apiErr    *idmc.APIError
		cfgErr    *configError
		batchErr  *batchError
	)

	switch {
	case errors.As(err, &cfgErr):
		return errorCategory{"Configuration Error", "run '" + rootName + " config show' to inspect the effective settings"}
	case errors.Is(err, idmc.ErrAuthentication), errors.Is(err, idmc.ErrUnauthorized):
		return errorCategory{"Authentication Error", "check your credentials and login URL"}
	case errors.Is(err, scanjob.ErrAmbiguous):
		return errorCategory{"Ambiguous Match", "use --id or the exact catalog source name"}
	case errors.Is(err, scanjob.ErrNotFound), errors.Is(err, classification.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound), errors.Is(err, idmc.ErrNotFound):
		return errorCategory{"Not Found", "check the name or ID and try again"}
	case errors.Is(err, scanjob.ErrNoCapabilities), errors.Is(err, classification.ErrInvalidRecord):
		return errorCategory{"Validation Error", ""}
	case errors.Is(err, scanjob.ErrMonitorTimeout):
		return errorCategory{"Timeout", "the remote job keeps running; reattach with '" + rootName + " job wait <job-id>'"}
	case errors.Is(err, scanjob.ErrJobFailed):
		return errorCategory{"Job Failed", "inspect the job in the CDGC monitoring page"}
	case errors.As(err, &launchErr):
		return errorCategory{"Launch Error", "check the catalog source configuration and your permissions"}
	case errors.Is(err, idmc.ErrForbidden), errors.As(err, &apiErr):
		return errorCategory{"API Error", "check your API permissions and base URL"}
	case errors.As(err, &batchErr):
		return errorCategory{"Error", "see the log above for the failed items"}
	default:
		return errorCategory{"Error", ""}
	}
}

// reportError prints err to w and returns the process exit code.
func reportError(w io.Writer, err error) int {
	if err == nil {
		return exitOK
	}

	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(w, "Usage Error: %v\n", ue.err)

		if ue.cmd != nil {
			fmt.Fprintf(w, "\n%s", ue.cmd.UsageString())
		}

		return exitUsage
	}

	cat := categorize(err)
	fmt.Fprintf(w, "%s: %v\n", cat.label, err)

	if cat.hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", cat.hint)
	}

	return exitFailure
}
