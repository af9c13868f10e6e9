package ports

import "context"

// HealthChecker reports liveness of one external dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}
