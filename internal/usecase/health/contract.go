package health

import (
	"context"

	"github.com/scotty-scheduler/courserag/internal/index"
)

// SnapshotProvider reports whether an index snapshot is loaded.
type SnapshotProvider interface {
	Snapshot() (*index.Snapshot, error)
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CachePinger checks embedding cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}
