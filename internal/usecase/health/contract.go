package health

import "context"

// DBPinger checks search backend availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks model provider availability (embedding, generation).
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
