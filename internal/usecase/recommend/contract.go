package recommend

import (
	"context"

	"github.com/scotty-scheduler/courserag/internal/domain"
)

// Retriever finds relevant course context for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.Hit, error)
}

// Generator produces a completion from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}
