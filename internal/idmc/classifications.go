package idmc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

const classificationsPath = "/ccgf-metadata-discovery/api/v1/classifications"

// classificationList accepts both a bare array and the paged envelope the
// service returns on newer pods.
type classificationList []json.RawMessage

func (l *classificationList) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err == nil {
		*l = arr
		return nil
	}

	var env struct {
		Content []json.RawMessage `json:"content"`
		Items   []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("idmc: unexpected classification list shape: %w", err)
	}

	if env.Content != nil {
		*l = env.Content
	} else {
		*l = env.Items
	}

	return nil
}

// ListClassifications returns every classification in the organization as
// raw JSON objects.
func (c *Client) ListClassifications(ctx context.Context) ([]json.RawMessage, error) {
	var list classificationList
	if err := c.doJSON(ctx, http.MethodGet, classificationsPath, nil, &list); err != nil {
		return nil, err
	}

	c.logger.Debug("listed classifications", slog.Int("count", len(list)))

	return list, nil
}

// GetClassification returns the full details of one classification.
func (c *Client) GetClassification(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, classificationsPath+"/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// CreateClassification submits a new classification and returns the stored record.
func (c *Client) CreateClassification(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, classificationsPath, payload, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// UpdateClassification replaces the classification with the given ID.
func (c *Client) UpdateClassification(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPut, classificationsPath+"/"+url.PathEscape(id), payload, &raw); err != nil {
		return nil, err
	}

	return raw, nil
}
