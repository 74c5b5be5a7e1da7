package scanjob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
)

// Monitor defaults.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultTimeout      = time.Hour
)

// StatusFetcher reads a job's status. Satisfied by *idmc.Client.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*idmc.JobStatus, error)
}

// State is the normalized lifecycle state of a job.
type State int

const (
	StateRunning State = iota
	StateSucceeded
	StatePartiallySucceeded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StatePartiallySucceeded:
		return "PARTIALLY_SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether s ends the polling loop.
func (s State) Terminal() bool {
	return s != StateRunning
}

// NormalizeState maps a remote status string onto a State. Unknown values,
// including the empty string, count as still running.
func NormalizeState(remote string) State {
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "COMPLETED", "SUCCESS", "SUCCESSFUL":
		return StateSucceeded
	case "PARTIAL_COMPLETED":
		return StatePartiallySucceeded
	case "FAILED", "ERROR", "CANCELLED":
		return StateFailed
	default:
		return StateRunning
	}
}

// OutcomeKind tags why monitoring stopped.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	PartialSuccess
	Failed
	TimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case PartialSuccess:
		return "partial_success"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of monitoring a job. Status is the last snapshot
// observed, if any. Reason explains Failed and TimedOut outcomes.
type Outcome struct {
	Kind    OutcomeKind
	Status  *idmc.JobStatus
	Reason  string
	Elapsed time.Duration
	Polls   int
}

// Success is true for Succeeded and PartialSuccess.
func (o Outcome) Success() bool {
	return o.Kind == Succeeded || o.Kind == PartialSuccess
}

// Err converts a non-successful outcome to an error, nil otherwise.
func (o Outcome) Err() error {
	switch o.Kind {
	case Failed:
		return fmt.Errorf("%w: %s", ErrJobFailed, o.Reason)
	case TimedOut:
		return fmt.Errorf("%w: %s", ErrMonitorTimeout, o.Reason)
	default:
		return nil
	}
}

// MonitorConfig holds the polling parameters.
type MonitorConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Validate checks that the interval is positive and the timeout leaves room
// for at least one interval.
func (c MonitorConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	if c.Timeout < c.PollInterval {
		return fmt.Errorf("timeout (%s) must be at least the poll interval (%s)", c.Timeout, c.PollInterval)
	}

	return nil
}

// Monitor polls a job until it reaches a terminal state or the timeout
// elapses. A local timeout only stops observation; the remote job keeps
// running.
type Monitor struct {
	status StatusFetcher
	cfg    MonitorConfig
	logger *slog.Logger

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewMonitor creates a Monitor. Zero fields in cfg take the defaults.
func NewMonitor(status StatusFetcher, cfg MonitorConfig, logger *slog.Logger) (*Monitor, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		status:    status,
		cfg:       cfg,
		logger:    logger,
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
	}, nil
}

// Check fetches the job status once and normalizes it.
func (m *Monitor) Check(ctx context.Context, jobID string) (State, *idmc.JobStatus, error) {
	st, err := m.status.JobStatus(ctx, jobID)
	if err != nil {
		return StateRunning, nil, err
	}

	return NormalizeState(st.Status), st, nil
}

// Wait polls jobID until a terminal state, the timeout, a polling error, or
// ctx cancellation. It never returns an error; the Outcome carries the kind.
// The timeout is checked before each fetch: once the elapsed time exceeds it,
// no further requests are issued.
func (m *Monitor) Wait(ctx context.Context, jobID string) Outcome {
	start := m.nowFunc()

	var (
		last  *idmc.JobStatus
		polls int
	)

	for {
		elapsed := m.nowFunc().Sub(start)
		if elapsed > m.cfg.Timeout {
			m.logger.Warn("job monitor timed out",
				slog.String("job_id", jobID),
				slog.Duration("elapsed", elapsed),
				slog.Int("polls", polls),
			)

			return Outcome{
				Kind:    TimedOut,
				Status:  last,
				Reason:  fmt.Sprintf("no terminal state after %s", elapsed.Round(time.Second)),
				Elapsed: elapsed,
				Polls:   polls,
			}
		}

		state, st, err := m.Check(ctx, jobID)
		polls++

		if err != nil {
			m.logger.Error("polling job status failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)

			return m.failed(start, last, polls, fmt.Sprintf("polling status: %v", err))
		}

		last = st

		m.logger.Info("job status",
			slog.String("job_id", jobID),
			slog.String("status", st.Status),
			slog.Duration("elapsed", elapsed.Round(time.Second)),
		)

		switch state {
		case StateSucceeded:
			return m.outcome(Succeeded, start, st, polls, "")
		case StatePartiallySucceeded:
			m.logger.Warn("job completed with partial success", slog.String("job_id", jobID))
			return m.outcome(PartialSuccess, start, st, polls, "")
		case StateFailed:
			reason := st.ErrorMessage
			if reason == "" {
				reason = "job reported " + st.Status
			}

			m.logger.Error("job failed",
				slog.String("job_id", jobID),
				slog.String("status", st.Status),
				slog.String("reason", reason),
			)

			return m.failed(start, st, polls, reason)
		}

		if err := m.sleepFunc(ctx, m.cfg.PollInterval); err != nil {
			m.logger.Warn("job monitor interrupted", slog.String("job_id", jobID))

			return m.failed(start, last, polls, fmt.Sprintf("interrupted: %v", err))
		}
	}
}

func (m *Monitor) failed(start time.Time, st *idmc.JobStatus, polls int, reason string) Outcome {
	return m.outcome(Failed, start, st, polls, reason)
}

func (m *Monitor) outcome(kind OutcomeKind, start time.Time, st *idmc.JobStatus, polls int, reason string) Outcome {
	return Outcome{
		Kind:    kind,
		Status:  st,
		Reason:  reason,
		Elapsed: m.nowFunc().Sub(start),
		Polls:   polls,
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
