package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/kailas-cloud/contramate/internal/db"
)

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

type hit struct {
	ID     string                     `json:"_id"`
	Score  *float64                   `json:"_score"`
	Source map[string]json.RawMessage `json:"_source"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// SearchHybrid runs one bool query combining multi_match and kNN under the compiled filter.
func (s *Store) SearchHybrid(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if strings.TrimSpace(q.Text) == "" && len(q.Vector) == 0 {
		return nil, fmt.Errorf("text or vector is required")
	}
	return s.search(ctx, q.IndexName, buildHybridBody(q, s.semanticWeight, s.textWeight))
}

// SearchList returns filtered passages sorted by chunk index.
func (s *Store) SearchList(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	return s.search(ctx, q.IndexName, buildListBody(q))
}

func (s *Store) search(ctx context.Context, index string, body map[string]any) (*db.SearchResult, error) {
	var out searchResponse
	var apiErr errorResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/" + index + "/_search")
	if err != nil {
		return nil, &db.Error{Op: db.OpHTTPSearch, Err: err}
	}
	if resp.IsError() {
		return nil, &db.Error{Op: db.OpHTTPSearch, Err: statusError(resp, apiErr)}
	}

	entries := make([]db.SearchEntry, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		e := db.SearchEntry{Key: h.ID, Fields: flattenSource(h.Source)}
		if h.Score != nil {
			e.Score = *h.Score
		}
		entries = append(entries, e)
	}
	return &db.SearchResult{Total: out.Hits.Total.Value, Entries: entries}, nil
}

func statusError(resp *resty.Response, apiErr errorResponse) error {
	reason := apiErr.Error.Reason
	if reason == "" {
		reason = strings.TrimSpace(resp.String())
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound || apiErr.Error.Type == "index_not_found_exception":
		return fmt.Errorf("%w: %s", db.ErrIndexNotFound, reason)
	case resp.StatusCode() == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", db.ErrBadQuery, reason)
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode(), reason)
	}
}

// flattenSource converts _source values into strings. Arrays are joined with
// db.SectionSeparator, numbers keep their shortest form.
func flattenSource(src map[string]json.RawMessage) map[string]string {
	fields := make(map[string]string, len(src))
	for name, raw := range src {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			fields[name] = val
		case float64:
			fields[name] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			fields[name] = strconv.FormatBool(val)
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			fields[name] = strings.Join(parts, db.SectionSeparator)
		}
	}
	return fields
}
