package idmc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Search API path and paging defaults.
const (
	searchPath        = "/ccgf-searchv2/api/v1/search"
	defaultSearchSize = 100
)

// Asset attribute keys used by CDGC search hits.
const (
	attrName      = "core.name"
	attrOrigin    = "core.origin"
	attrIdentity  = "core.identity"
	attrClassType = "core.classType"
)

// SearchRequest describes one catalog search. Query is the knowledge query
// (usually "*"); Filter is a DSL filter expression.
type SearchRequest struct {
	Query    string
	Segments string
	Filter   string
	From     int
	Size     int
}

// Asset is a normalized search hit.
type Asset struct {
	Name      string
	OriginID  string
	Identity  string
	ClassType string
	Raw       json.RawMessage
}

// SearchResult holds the hits in the order the server ranked them.
type SearchResult struct {
	TotalHits int
	Hits      []Asset
}

type searchBody struct {
	From       int          `json:"from"`
	Size       int          `json:"size"`
	FilterSpec []filterSpec `json:"filterSpec,omitempty"`
}

type filterSpec struct {
	Type string `json:"type"`
	Expr string `json:"expr"`
}

// searchResponse mirrors the CDGC search JSON response.
// Unexported: callers use SearchResult via toResult().
type searchResponse struct {
	Summary struct {
		TotalHits flexInt `json:"total_hits"` //nolint:tagliatelle // CDGC wire format
	} `json:"summary"`
	Hits []json.RawMessage `json:"hits"`
}

type hitResponse struct {
	SystemAttributes map[string]any `json:"systemAttributes"`
	Summary          map[string]any `json:"summary"`
}

// flexInt accepts both 3 and "3"; the search service is not consistent.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}

	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("idmc: invalid integer %q: %w", string(b), err)
	}

	*f = flexInt(n)

	return nil
}

// SearchAssets runs a catalog search and returns the hits in server order.
func (c *Client) SearchAssets(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		req.Query = "*"
	}

	if req.Segments == "" {
		req.Segments = "all"
	}

	if req.Size == 0 {
		req.Size = defaultSearchSize
	}

	c.logger.Debug("searching assets",
		slog.String("query", req.Query),
		slog.String("filter", req.Filter),
	)

	params := url.Values{}
	params.Set("knowledgeQuery", req.Query)
	params.Set("segments", req.Segments)

	body := searchBody{From: req.From, Size: req.Size}
	if req.Filter != "" {
		body.FilterSpec = []filterSpec{{Type: "dsl", Expr: req.Filter}}
	}

	var sr searchResponse
	if err := c.doJSON(ctx, http.MethodPost, searchPath+"?"+params.Encode(), body, &sr); err != nil {
		return nil, err
	}

	result := &SearchResult{
		TotalHits: int(sr.Summary.TotalHits),
		Hits:      make([]Asset, 0, len(sr.Hits)),
	}

	for _, raw := range sr.Hits {
		var hr hitResponse
		if err := json.Unmarshal(raw, &hr); err != nil {
			return nil, fmt.Errorf("idmc: decoding search hit: %w", err)
		}

		result.Hits = append(result.Hits, Asset{
			Name:      stringAttr(hr.Summary, attrName),
			OriginID:  stringAttr(hr.SystemAttributes, attrOrigin),
			Identity:  stringAttr(hr.SystemAttributes, attrIdentity),
			ClassType: stringAttr(hr.SystemAttributes, attrClassType),
			Raw:       raw,
		})
	}

	c.logger.Debug("search complete",
		slog.Int("total_hits", result.TotalHits),
		slog.Int("returned", len(result.Hits)),
	)

	return result, nil
}

// stringAttr reads a string attribute, tolerating absent maps and keys.
func stringAttr(m map[string]any, key string) string {
	if m == nil {
		return ""
	}

	s, _ := m[key].(string)

	return s
}
