package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testManifest() index.Manifest {
	return index.Manifest{
		Model:      "all-MiniLM-L6-v2",
		Dimensions: 3,
		Metric:     index.MetricCosine,
		BuiltAt:    time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteLoad_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entries := []index.Entry{
		{
			Document: domain.ReconstructDocument("18-100", "Intro", "intro syllabus", 3, 4.5),
			Vector:   []float32{1, 0, 0.5},
		},
		{
			Document: domain.ReconstructDocument("18-200", "Advanced", "advanced syllabus", 12, 3.0),
			Vector:   []float32{0, 1, -0.25},
		},
	}

	if err := s.Write(ctx, testManifest(), entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 documents, got %d", snap.Len())
	}

	m := snap.Manifest()
	if m.Model != "all-MiniLM-L6-v2" || m.Dimensions != 3 || m.Metric != index.MetricCosine {
		t.Errorf("manifest not preserved: %+v", m)
	}
	if !m.BuiltAt.Equal(testManifest().BuiltAt) {
		t.Errorf("built_at not preserved: %v", m.BuiltAt)
	}

	doc, ok := snap.Document("18-100")
	if !ok {
		t.Fatal("18-100 missing after load")
	}
	if doc.Title() != "Intro" || doc.WeeklyHours() != 3 || doc.Rating() != 4.5 {
		t.Errorf("metadata not preserved: %+v", doc)
	}

	hits, err := snap.Search([]float32{1, 0, 0.5}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Document.ID() != "18-100" {
		t.Errorf("vector not preserved, got %v", hits)
	}
}

func TestWrite_ReplacesPreviousArtifact(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []index.Entry{{
		Document: domain.ReconstructDocument("18-100", "Intro", "text", 0, 0),
		Vector:   []float32{1, 0, 0},
	}}
	if err := s.Write(ctx, testManifest(), first); err != nil {
		t.Fatalf("first Write: %v", err)
	}

	second := []index.Entry{{
		Document: domain.ReconstructDocument("15-213", "Systems", "text", 0, 0),
		Vector:   []float32{0, 1, 0},
	}}
	if err := s.Write(ctx, testManifest(), second); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("expected 1 document after rewrite, got %d", snap.Len())
	}
	if _, ok := snap.Document("18-100"); ok {
		t.Error("old document survived the rewrite")
	}
	if _, ok := snap.Document("15-213"); !ok {
		t.Error("new document missing after rewrite")
	}
}

func TestWrite_RejectsDimensionMismatch(t *testing.T) {
	s := openTestStore(t)
	entries := []index.Entry{{
		Document: domain.ReconstructDocument("18-100", "Intro", "text", 0, 0),
		Vector:   []float32{1, 0}, // manifest says 3
	}}
	if err := s.Write(context.Background(), testManifest(), entries); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestLoad_EmptyArtifact(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error for artifact without manifest")
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0.25, -1, 3.5, 0}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("position %d: %f != %f", i, in[i], out[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
