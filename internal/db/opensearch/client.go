package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/kailas-cloud/contramate/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Default fusion weights of the hybrid query clauses.
const (
	DefaultSemanticWeight = 0.7
	DefaultTextWeight     = 0.3
)

// Config holds connection parameters for an OpenSearch cluster.
type Config struct {
	URL                string
	Username           string
	Password           string
	Timeout            time.Duration
	RetryCount         int
	InsecureSkipVerify bool
	// SemanticWeight and TextWeight boost the kNN and lexical clauses. Zero selects the default.
	SemanticWeight float64
	TextWeight     float64
}

// Store implements db.Store over the OpenSearch REST API.
type Store struct {
	client         *resty.Client
	semanticWeight float64
	textWeight     float64
}

// NewStore creates an OpenSearch store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition)

	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}
	if cfg.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // local clusters use self-signed certs
	}

	return newStore(client, cfg.SemanticWeight, cfg.TextWeight), nil
}

// NewStoreForTest wraps a preconfigured resty client, typically pointed at httptest.
func NewStoreForTest(c *resty.Client) *Store {
	return newStore(c, 0, 0)
}

func newStore(c *resty.Client, semantic, text float64) *Store {
	if semantic <= 0 {
		semantic = DefaultSemanticWeight
	}
	if text <= 0 {
		text = DefaultTextWeight
	}
	return &Store{client: c, semanticWeight: semantic, textWeight: text}
}

// retryCondition retries network errors and 5xx/429 replies. Searches are idempotent.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Ping checks cluster health.
func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get("/_cluster/health")
	if err != nil {
		return &db.Error{Op: db.OpClusterState, Err: err}
	}
	if resp.IsError() {
		return &db.Error{Op: db.OpClusterState, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() {
	s.client.GetClient().CloseIdleConnections()
}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for opensearch: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}
