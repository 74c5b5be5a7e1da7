package idmc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Catalog source and job API paths.
const (
	runSourcePathFmt = "/ccgf-catalog-source-management/api/v1/datasources/%s/run"
	jobStatusPathFmt = "/ccgf-orchestration-management/api/v1/jobs/%s"
)

// RunResult is the normalized response of a catalog source run request.
// JobID is empty when the server accepted the call but returned no job.
type RunResult struct {
	JobID  string
	JobURI string
}

// JobStatus is one status snapshot of a remote job.
type JobStatus struct {
	Status       string
	ErrorMessage string
	Raw          json.RawMessage
}

type runRequest struct {
	Capabilities []string `json:"capabilities"`
}

// runResponse mirrors the run endpoint. Older deployments report the
// tracking link as trackingURI instead of jobUri.
type runResponse struct {
	JobID       string `json:"jobId"`
	JobURI      string `json:"jobUri"`
	TrackingURI string `json:"trackingURI"` //nolint:tagliatelle // CDGC wire format
}

type jobStatusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

// RunCatalogSourceJob starts a scan of the catalog source with the given
// capability names. The request is never retried.
func (c *Client) RunCatalogSourceJob(ctx context.Context, sourceID string, capabilities []string) (*RunResult, error) {
	c.logger.Info("running catalog source",
		slog.String("source_id", sourceID),
		slog.Any("capabilities", capabilities),
	)

	path := fmt.Sprintf(runSourcePathFmt, url.PathEscape(sourceID))

	var rr runResponse
	if err := c.doJSON(ctx, http.MethodPost, path, runRequest{Capabilities: capabilities}, &rr); err != nil {
		return nil, err
	}

	result := &RunResult{JobID: rr.JobID, JobURI: rr.JobURI}
	if result.JobURI == "" {
		result.JobURI = rr.TrackingURI
	}

	return result, nil
}

// JobStatus fetches the current status of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	path := fmt.Sprintf(jobStatusPathFmt, url.PathEscape(jobID))

	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	var jr jobStatusResponse
	if err := json.Unmarshal(raw, &jr); err != nil {
		return nil, fmt.Errorf("idmc: decoding job status: %w", err)
	}

	c.logger.Debug("fetched job status",
		slog.String("job_id", jobID),
		slog.String("status", jr.Status),
	)

	return &JobStatus{
		Status:       jr.Status,
		ErrorMessage: jr.ErrorMessage,
		Raw:          raw,
	}, nil
}
