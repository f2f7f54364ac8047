package retrieve

import (
	"context"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// SnapshotProvider hands out the active index snapshot.
type SnapshotProvider interface {
	Snapshot() (*index.Snapshot, error)
}
