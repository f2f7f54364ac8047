// Package index holds the immutable in-memory retrieval index. A Snapshot is
// built offline (or loaded from the persisted artifact), never mutated, and
// shared read-only across requests. Rebuilds produce a fresh Snapshot that is
// swapped in atomically via Holder.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/scotty-scheduler/courserag/internal/domain"
)

// MetricCosine is the only similarity metric the index supports. It is
// recorded in the manifest so a loader can refuse anything else.
const MetricCosine = "cosine"

// Manifest identifies how an index was built. A query may only be served when
// the query-time embedder matches the manifest exactly.
type Manifest struct {
	Model      string
	Dimensions int
	Metric     string
	BuiltAt    time.Time
	DocCount   int
}

// Entry pairs a document with its embedding vector.
type Entry struct {
	Document domain.Document
	Vector   []float32
}

// Snapshot is an immutable nearest-neighbor index over course documents.
type Snapshot struct {
	manifest Manifest
	entries  []Entry
	byID     map[string]domain.Document
}

// NewSnapshot validates entries against the manifest and builds a Snapshot.
// Every vector must match the manifest dimension and belong to exactly one
// document.
func NewSnapshot(manifest Manifest, entries []Entry) (*Snapshot, error) {
	if manifest.Model == "" {
		return nil, fmt.Errorf("manifest model is required")
	}
	if manifest.Dimensions <= 0 {
		return nil, fmt.Errorf("manifest dimensions must be positive, got %d", manifest.Dimensions)
	}
	if manifest.Metric != MetricCosine {
		return nil, fmt.Errorf("unsupported similarity metric %q", manifest.Metric)
	}

	byID := make(map[string]domain.Document, len(entries))
	for _, e := range entries {
		if len(e.Vector) != manifest.Dimensions {
			return nil, fmt.Errorf("document %s: vector dimension %d, manifest says %d",
				e.Document.ID(), len(e.Vector), manifest.Dimensions)
		}
		if _, dup := byID[e.Document.ID()]; dup {
			return nil, fmt.Errorf("duplicate document id %s", e.Document.ID())
		}
		byID[e.Document.ID()] = e.Document
	}

	manifest.DocCount = len(entries)
	return &Snapshot{manifest: manifest, entries: entries, byID: byID}, nil
}

// Manifest returns the build metadata.
func (s *Snapshot) Manifest() Manifest { return s.manifest }

// Len returns the number of indexed documents.
func (s *Snapshot) Len() int { return len(s.entries) }

// Document looks up an indexed document by course id.
func (s *Snapshot) Document(id string) (domain.Document, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// Search returns up to k documents by descending cosine similarity to the
// query vector. Ties are broken by ascending document id for determinism.
// An empty snapshot yields an empty result, not an error.
func (s *Snapshot) Search(vector []float32, k int) ([]domain.Hit, error) {
	if len(vector) != s.manifest.Dimensions {
		return nil, fmt.Errorf("query vector dimension %d, index has %d",
			len(vector), s.manifest.Dimensions)
	}
	if k <= 0 || len(s.entries) == 0 {
		return nil, nil
	}

	hits := make([]domain.Hit, 0, len(s.entries))
	for _, e := range s.entries {
		hits = append(hits, domain.Hit{
			Document: e.Document,
			Score:    cosineSimilarity(vector, e.Vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID() < hits[j].Document.ID()
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosineSimilarity computes cos(a, b). A zero-magnitude vector scores 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2))
}

// Holder is the shared read-only reference to the active Snapshot. Reads are
// lock-free; a rebuild swaps the pointer atomically (double-buffering), so
// in-flight requests keep the snapshot they started with.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a Holder, optionally seeded with an initial snapshot.
func NewHolder(initial *Snapshot) *Holder {
	h := &Holder{}
	if initial != nil {
		h.current.Store(initial)
	}
	return h
}

// Snapshot returns the active snapshot, or an error when none is loaded.
func (h *Holder) Snapshot() (*Snapshot, error) {
	s := h.current.Load()
	if s == nil {
		return nil, domain.ErrIndexNotLoaded
	}
	return s, nil
}

// Swap atomically replaces the active snapshot.
func (h *Holder) Swap(s *Snapshot) {
	h.current.Store(s)
}
