package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	lastText  string
	healthErr error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.lastText = text
	return EmbeddingResult{Embedding: []float32{1}}, nil
}

func (s *stubEmbedder) HealthCheck(_ context.Context) error { return s.healthErr }

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubEmbedder{}
	emb := NewInstructionEmbedder(inner, "query: ")

	if _, err := emb.Embed(context.Background(), "intro to systems"); err != nil {
		t.Fatal(err)
	}
	if inner.lastText != "query: intro to systems" {
		t.Errorf("embedded text = %q", inner.lastText)
	}
}

func TestInstructionEmbedder_ForwardsHealthCheck(t *testing.T) {
	inner := &stubEmbedder{healthErr: errors.New("provider down")}
	emb := NewInstructionEmbedder(inner, "query: ")

	var checker HealthChecker = emb
	if err := checker.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected provider failure to surface through the decorator")
	}

	inner.healthErr = nil
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Errorf("healthy provider must pass, got %v", err)
	}
}

type plainEmbedder struct{}

func (plainEmbedder) Embed(_ context.Context, _ string) (EmbeddingResult, error) {
	return EmbeddingResult{Embedding: []float32{1}}, nil
}

func TestInstructionEmbedder_InnerWithoutHealthPasses(t *testing.T) {
	emb := NewInstructionEmbedder(plainEmbedder{}, "")
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
