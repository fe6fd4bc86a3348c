package domain

import "context"

type usageKey struct{}

// Usage collects token consumption of a single HTTP request.
// The handler stores a pointer in the context, services add to it, and the handler
// reports the totals in response headers.
type Usage struct {
	EmbeddingTokens  int
	GenerationTokens int
	// Embedded is true once an embedding was requested, even on a cache hit with 0 tokens.
	Embedded bool
}

// NewContextWithUsage returns a context carrying a fresh usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the collector stored in ctx, or nil.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbeddingTokens records embedding tokens. Safe on a nil receiver.
func (u *Usage) AddEmbeddingTokens(n int) {
	if u == nil {
		return
	}
	u.EmbeddingTokens += n
	u.Embedded = true
}

// AddGenerationTokens records completion tokens. Safe on a nil receiver.
func (u *Usage) AddGenerationTokens(n int) {
	if u == nil {
		return
	}
	u.GenerationTokens += n
}
