package db

import (
	"context"
	"time"
)

// Store is the search backend facade.
// Consumers depend on the narrow sub-interfaces (ISP).
type Store interface {
	Pinger
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations with expiry.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Searcher runs queries against the passage index.
type Searcher interface {
	// SearchHybrid runs one combined lexical and vector query and returns fused, ranked hits.
	SearchHybrid(ctx context.Context, q *HybridQuery) (*SearchResult, error)
	// SearchList returns filtered hits ordered by chunk index, without relevance ranking.
	SearchList(ctx context.Context, q *ListQuery) (*SearchResult, error)
}
