package retrieve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
)

const (
	testModel = "all-MiniLM-L6-v2"
	testDims  = 3
)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
	last  string
}

func (e *stubEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls++
	e.last = text
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vec, TotalTokens: 5}, nil
}

func testManifest() index.Manifest {
	return index.Manifest{
		Model:      testModel,
		Dimensions: testDims,
		Metric:     index.MetricCosine,
		BuiltAt:    time.Now(),
	}
}

func testSnapshot(t *testing.T, entries []index.Entry) *index.Snapshot {
	t.Helper()
	s, err := index.NewSnapshot(testManifest(), entries)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}

func courseEntry(t *testing.T, id string, vec []float32) index.Entry {
	t.Helper()
	doc, err := domain.NewDocument(id, "Course "+id, "syllabus text", 9, 4.0)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return index.Entry{Document: doc, Vector: vec}
}

func defaultLimits() Limits {
	return Limits{DefaultTopK: 4, MaxTopK: 20}
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	holder := index.NewHolder(testSnapshot(t, []index.Entry{
		courseEntry(t, "18-100", []float32{1, 0, 0}),
		courseEntry(t, "18-200", []float32{0, 1, 0}),
		courseEntry(t, "15-112", []float32{0.9, 0.1, 0}),
	}))
	embed := &stubEmbedder{vec: []float32{1, 0, 0}}
	svc := New(holder, embed, testModel, testDims, defaultLimits())

	hits, err := svc.Retrieve(context.Background(), "circuits intro", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Document.ID() != "18-100" {
		t.Errorf("top hit = %s, expected 18-100", hits[0].Document.ID())
	}
	if hits[1].Document.ID() != "15-112" {
		t.Errorf("second hit = %s, expected 15-112", hits[1].Document.ID())
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores not descending: %f < %f", hits[0].Score, hits[1].Score)
	}
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	holder := index.NewHolder(testSnapshot(t, nil))
	svc := New(holder, &stubEmbedder{vec: []float32{1, 0, 0}}, testModel, testDims, defaultLimits())

	_, err := svc.Retrieve(context.Background(), "   ", 4)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetrieve_IndexNotLoaded(t *testing.T) {
	svc := New(index.NewHolder(nil), &stubEmbedder{vec: []float32{1, 0, 0}}, testModel, testDims, defaultLimits())

	_, err := svc.Retrieve(context.Background(), "anything", 4)
	if !errors.Is(err, domain.ErrIndexNotLoaded) {
		t.Fatalf("expected index not loaded, got %v", err)
	}
}

func TestRetrieve_EmptyIndexYieldsEmptyResult(t *testing.T) {
	holder := index.NewHolder(testSnapshot(t, nil))
	embed := &stubEmbedder{vec: []float32{1, 0, 0}}
	svc := New(holder, embed, testModel, testDims, defaultLimits())

	hits, err := svc.Retrieve(context.Background(), "anything", 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
	if embed.calls != 0 {
		t.Errorf("empty index must not call the embedder, got %d calls", embed.calls)
	}
}

func TestRetrieve_ModelMismatch(t *testing.T) {
	holder := index.NewHolder(testSnapshot(t, []index.Entry{
		courseEntry(t, "18-100", []float32{1, 0, 0}),
	}))
	svc := New(holder, &stubEmbedder{vec: []float32{1, 0, 0}}, "other-model", testDims, defaultLimits())

	_, err := svc.Retrieve(context.Background(), "anything", 4)
	if !errors.Is(err, domain.ErrIndexMismatch) {
		t.Fatalf("expected index mismatch, got %v", err)
	}

	var mismatch *domain.IndexMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatal("expected IndexMismatchError")
	}
	if mismatch.IndexModel != testModel || mismatch.QueryModel != "other-model" {
		t.Errorf("mismatch detail wrong: %+v", mismatch)
	}
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	holder := index.NewHolder(testSnapshot(t, []index.Entry{
		courseEntry(t, "18-100", []float32{1, 0, 0}),
	}))
	svc := New(holder, &stubEmbedder{vec: []float32{1, 0, 0}}, testModel, 384, defaultLimits())

	_, err := svc.Retrieve(context.Background(), "anything", 4)
	if !errors.Is(err, domain.ErrIndexMismatch) {
		t.Fatalf("expected index mismatch, got %v", err)
	}
}

func TestRetrieve_TopKBounds(t *testing.T) {
	entries := []index.Entry{
		courseEntry(t, "18-100", []float32{1, 0, 0}),
		courseEntry(t, "18-200", []float32{0.8, 0.2, 0}),
		courseEntry(t, "18-300", []float32{0.6, 0.4, 0}),
	}
	holder := index.NewHolder(testSnapshot(t, entries))
	svc := New(holder, &stubEmbedder{vec: []float32{1, 0, 0}}, testModel, testDims,
		Limits{DefaultTopK: 2, MaxTopK: 2})

	hits, err := svc.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("Retrieve with default topK: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("default topK: expected 2 hits, got %d", len(hits))
	}

	hits, err = svc.Retrieve(context.Background(), "anything", 100)
	if err != nil {
		t.Fatalf("Retrieve with oversized topK: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("clamped topK: expected 2 hits, got %d", len(hits))
	}
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	holder := index.NewHolder(testSnapshot(t, []index.Entry{
		courseEntry(t, "18-100", []float32{1, 0, 0}),
	}))
	embed := &stubEmbedder{err: domain.ErrEmbeddingProviderError}
	svc := New(holder, embed, testModel, testDims, defaultLimits())

	_, err := svc.Retrieve(context.Background(), "anything", 4)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
