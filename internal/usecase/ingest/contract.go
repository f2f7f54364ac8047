package ingest

import (
	"context"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
)

// BatchEmbedder vectorizes document chunks in batches.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Chunker splits syllabus text into embeddable pieces.
type Chunker interface {
	Chunk(text string) []string
}

// ArtifactWriter persists a built index.
type ArtifactWriter interface {
	Write(ctx context.Context, manifest index.Manifest, entries []index.Entry) error
}
