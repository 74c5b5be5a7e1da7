package scanjob

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
)

// JobRunner starts a catalog source job. Satisfied by *idmc.Client.
type JobRunner interface {
	RunCatalogSourceJob(ctx context.Context, sourceID string, capabilities []string) (*idmc.RunResult, error)
}

// JobHandle identifies a launched job. JobID is never empty.
type JobHandle struct {
	JobID        string   `json:"jobId"`
	TrackingURI  string   `json:"trackingUri,omitempty"`
	SourceID     string   `json:"sourceId"`
	SourceName   string   `json:"sourceName,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Launcher starts scan jobs. A launch is a single remote call and is never
// retried: a second attempt could start a duplicate job.
type Launcher struct {
	runner JobRunner
	logger *slog.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(runner JobRunner, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Launcher{runner: runner, logger: logger}
}

// Launch starts a job on res with the given capabilities. An empty
// capability set is rejected before any remote call.
func (l *Launcher) Launch(ctx context.Context, res *Resource, caps CapabilitySet) (*JobHandle, error) {
	if caps.Len() == 0 {
		return nil, ErrNoCapabilities
	}

	if res == nil || res.ID == "" {
		name := ""
		if res != nil {
			name = res.Name
		}

		return nil, &LaunchError{Source: name, Err: errors.New("catalog source has no ID")}
	}

	source := res.Name
	if source == "" {
		source = res.ID
	}

	l.logger.Info("launching catalog source job",
		slog.String("source", source),
		slog.String("source_id", res.ID),
		slog.String("capabilities", caps.String()),
	)

	result, err := l.runner.RunCatalogSourceJob(ctx, res.ID, caps.Names())
	if err != nil {
		l.logLaunchFailure(source, err)
		return nil, &LaunchError{Source: source, Err: err}
	}

	if result == nil || result.JobID == "" {
		l.logger.Error("launch response had no job ID", slog.String("source", source))
		return nil, &LaunchError{Source: source, Err: ErrNoJobID}
	}

	l.logger.Info("job launched",
		slog.String("source", source),
		slog.String("job_id", result.JobID),
		slog.String("tracking_uri", result.JobURI),
	)

	return &JobHandle{
		JobID:        result.JobID,
		TrackingURI:  result.JobURI,
		SourceID:     res.ID,
		SourceName:   res.Name,
		Capabilities: caps.Names(),
	}, nil
}

// logLaunchFailure surfaces the server's own message on 5xx responses, which
// usually names the misconfigured connection or agent.
func (l *Launcher) logLaunchFailure(source string, err error) {
	attrs := []any{slog.String("source", source), slog.String("error", err.Error())}

	var apiErr *idmc.APIError
	if errors.As(err, &apiErr) {
		attrs = append(attrs, slog.Int("status", apiErr.StatusCode))

		if idmc.IsServerFault(err) {
			attrs = append(attrs, slog.String("server_message", apiErr.Message))
		}
	}

	l.logger.Error("job launch failed", attrs...)
}
