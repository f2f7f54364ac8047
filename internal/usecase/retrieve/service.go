// Package retrieve embeds a query and ranks indexed courses by cosine
// similarity against the active snapshot.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/scotty-scheduler/courserag/internal/domain"
)

// Limits bound the top-K parameter of a retrieval request.
type Limits struct {
	DefaultTopK int
	MaxTopK     int
}

// Service handles query-time retrieval.
type Service struct {
	snapshots SnapshotProvider
	embed     Embedder

	// Identity of the query-time embedding configuration, compared against
	// the snapshot manifest before any search is served.
	model      string
	dimensions int

	limits Limits
}

// New creates a retrieval service. model and dimensions describe the embedder
// behind the decorator chain.
func New(snapshots SnapshotProvider, embed Embedder, model string, dimensions int, limits Limits) *Service {
	return &Service{
		snapshots:  snapshots,
		embed:      embed,
		model:      model,
		dimensions: dimensions,
		limits:     limits,
	}
}

// Retrieve returns up to topK courses ranked by similarity to the query.
// topK <= 0 selects the configured default; values above the maximum are
// clamped. An empty index yields an empty result, not an error.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) ([]domain.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrValidation)
	}

	if topK <= 0 {
		topK = s.limits.DefaultTopK
	}
	if s.limits.MaxTopK > 0 && topK > s.limits.MaxTopK {
		topK = s.limits.MaxTopK
	}

	snapshot, err := s.snapshots.Snapshot()
	if err != nil {
		return nil, err
	}

	manifest := snapshot.Manifest()
	if manifest.Model != s.model || manifest.Dimensions != s.dimensions {
		return nil, domain.NewIndexMismatch(manifest.Model, manifest.Dimensions, s.model, s.dimensions)
	}

	if snapshot.Len() == 0 {
		return nil, nil
	}

	embResult, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	hits, err := snapshot.Search(embResult.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search snapshot: %w", err)
	}
	return hits, nil
}
