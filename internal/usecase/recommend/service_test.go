package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scotty-scheduler/courserag/internal/domain"
)

type stubRetriever struct {
	hits []domain.Hit
	err  error
	last struct {
		query string
		topK  int
	}
}

func (r *stubRetriever) Retrieve(_ context.Context, query string, topK int) ([]domain.Hit, error) {
	r.last.query = query
	r.last.topK = topK
	if r.err != nil {
		return nil, r.err
	}
	return r.hits, nil
}

// scriptedGenerator returns responses in order, repeating the last one.
type scriptedGenerator struct {
	responses []string
	errs      []error
	calls     int
	lastUser  string
}

func (g *scriptedGenerator) Generate(_ context.Context, _, user string) (string, error) {
	i := g.calls
	g.calls++
	g.lastUser = user
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	return g.responses[i], nil
}

func courseHit(t *testing.T, id, title string, hours, rating float64) domain.Hit {
	t.Helper()
	doc, err := domain.NewDocument(id, title, title+" syllabus text.", hours, rating)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return domain.Hit{Document: doc, Score: 0.9}
}

func fastConfig() Config {
	return Config{
		Model:             "gpt-4o",
		MaxAttempts:       3,
		BaseBackoff:       time.Millisecond,
		PerAttemptTimeout: time.Second,
	}
}

func TestRecommend_EndToEnd(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
		courseHit(t, "18-200", "Emerging Trends", 12, 3.0),
	}}
	gen := &scriptedGenerator{responses: []string{
		`{"courses":[{"id":"18-100","title":"Intro to ECE","description":"Gentle intro.","day":"Monday","start_time":"10:00","end_time":"11:20","location":"HH 1107"}]}`,
	}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	recs, err := svc.Recommend(context.Background(), "easy intro course", domain.Preferences{MaxWeeklyHours: 10}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}
	if recs[0].ID != "18-100" || recs[0].Title != "Intro to ECE" {
		t.Errorf("recommendation = %+v", recs[0])
	}
	if recs[0].Justification != "Gentle intro." || recs[0].Day != "Monday" {
		t.Errorf("schedule fields lost: %+v", recs[0])
	}
	if retriever.last.topK != 4 {
		t.Errorf("topK = %d", retriever.last.topK)
	}
}

func TestRecommend_PromptCarriesContextAndConstraints(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{responses: []string{`{"courses":[]}`}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	_, err := svc.Recommend(context.Background(), "circuits", domain.Preferences{MinRating: 4, MaxWeeklyHours: 10}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}

	for _, want := range []string{"circuits", "18-100", "Intro to ECE", "rating at least 4.0", "at most 10 hours"} {
		if !strings.Contains(gen.lastUser, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func TestRecommend_HardFilterOverridesModel(t *testing.T) {
	// The model recommends a 15 hrs/week course against a 10-hour cap.
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
		courseHit(t, "15-640", "Distributed Systems", 15, 4.8),
	}}
	gen := &scriptedGenerator{responses: []string{
		`{"courses":[
			{"id":"15-640","title":"Distributed Systems","description":"Heavy but great."},
			{"id":"18-100","title":"Intro to ECE","description":"Light intro."}
		]}`,
	}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	recs, err := svc.Recommend(context.Background(), "systems course", domain.Preferences{MaxWeeklyHours: 10}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected only the light course, got %d recommendations", len(recs))
	}
	if recs[0].ID != "18-100" {
		t.Errorf("surviving course = %s, expected 18-100", recs[0].ID)
	}
}

func TestRecommend_DropsHallucinatedCourses(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{responses: []string{
		`{"courses":[{"id":"99-999","title":"Imaginary Seminar","description":"Does not exist."}]}`,
	}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	recs, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("hallucinated course survived: %+v", recs)
	}
}

func TestRecommend_StripsMarkdownFences(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{responses: []string{
		"```json\n{\"courses\":[{\"id\":\"18-100\",\"title\":\"Intro to ECE\"}]}\n```",
	}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	recs, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "18-100" {
		t.Errorf("recs = %+v", recs)
	}
}

func TestRecommend_RetriesThenSucceeds(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{
		responses: []string{
			"not json at all",
			`{"courses":[{"id":"18-100","title":"Intro to ECE"}]}`,
		},
	}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	recs, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", gen.calls)
	}
	if len(recs) != 1 {
		t.Errorf("recs = %+v", recs)
	}
}

func TestRecommend_MalformedPayloadExhaustsRetries(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{responses: []string{"the model refuses to emit JSON"}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	_, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if !errors.Is(err, domain.ErrGenerationService) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if gen.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", gen.calls)
	}
}

func TestRecommend_EmptyIDFailsValidation(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{responses: []string{`{"courses":[{"id":"","title":"Nameless"}]}`}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	_, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if !errors.Is(err, domain.ErrGenerationService) {
		t.Fatalf("expected generation error for empty id, got %v", err)
	}
}

func TestRecommend_RateLimitSurfacesAfterRetries(t *testing.T) {
	retriever := &stubRetriever{hits: []domain.Hit{
		courseHit(t, "18-100", "Intro to ECE", 3, 4.5),
	}}
	gen := &scriptedGenerator{
		responses: []string{"", "", ""},
		errs:      []error{domain.ErrRateLimited, domain.ErrRateLimited, domain.ErrRateLimited},
	}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	_, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestRecommend_NoContextSkipsGeneration(t *testing.T) {
	retriever := &stubRetriever{}
	gen := &scriptedGenerator{responses: []string{`{"courses":[]}`}}
	svc := New(retriever, gen, fastConfig(), zap.NewNop())

	recs, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("recs = %+v", recs)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times on empty context", gen.calls)
	}
}

func TestRecommend_InvalidPreferences(t *testing.T) {
	svc := New(&stubRetriever{}, &scriptedGenerator{responses: []string{""}}, fastConfig(), zap.NewNop())

	_, err := svc.Recommend(context.Background(), "anything",
		domain.Preferences{MinWeeklyHours: 20, MaxWeeklyHours: 10}, 4)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecommend_RetrieverErrorPropagates(t *testing.T) {
	retriever := &stubRetriever{err: domain.ErrIndexNotLoaded}
	svc := New(retriever, &scriptedGenerator{responses: []string{""}}, fastConfig(), zap.NewNop())

	_, err := svc.Recommend(context.Background(), "anything", domain.Preferences{}, 4)
	if !errors.Is(err, domain.ErrIndexNotLoaded) {
		t.Fatalf("expected index not loaded, got %v", err)
	}
}

func TestStripMarkdownFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripMarkdownFences(tc.in); got != tc.want {
			t.Errorf("stripMarkdownFences(%q) = %q, expected %q", tc.in, got, tc.want)
		}
	}
}
