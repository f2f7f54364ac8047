// Package recommend composes the final course recommendations: retrieve
// context, prompt the generator, validate the structured payload, and apply
// the hard preference filter. The model is never trusted for constraints.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/metrics"
)

// Config holds generation retry parameters.
type Config struct {
	Model             string
	MaxAttempts       int
	BaseBackoff       time.Duration
	PerAttemptTimeout time.Duration
}

// Service turns a student query into filtered course recommendations.
type Service struct {
	retriever Retriever
	generator Generator
	cfg       Config
	logger    *zap.Logger
}

// New creates a recommendation service.
func New(retriever Retriever, generator Generator, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.PerAttemptTimeout <= 0 {
		cfg.PerAttemptTimeout = 30 * time.Second
	}
	return &Service{retriever: retriever, generator: generator, cfg: cfg, logger: logger}
}

// generatedPayload mirrors the JSON contract the system prompt demands.
type generatedPayload struct {
	Courses []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Day         string `json:"day"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
		Location    string `json:"location"`
	} `json:"courses"`
}

// Recommend retrieves context for the query, generates recommendations, and
// drops every course the index contradicts: unknown ids and courses whose
// indexed workload or rating violate the preferences.
func (s *Service) Recommend(
	ctx context.Context, query string, prefs domain.Preferences, topK int,
) ([]domain.Recommendation, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}

	hits, err := s.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	payload, err := s.generateWithRetry(ctx, buildUserPrompt(query, prefs, hits))
	if err != nil {
		return nil, err
	}

	return s.filterPayload(payload, prefs, hits), nil
}

// generateWithRetry calls the generator with a per-attempt timeout and
// exponential backoff between attempts. Malformed payloads count as failed
// attempts: the model may produce valid JSON on the next try.
func (s *Service) generateWithRetry(ctx context.Context, userPrompt string) (generatedPayload, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.GenerationRetriesTotal.WithLabelValues(s.cfg.Model).Inc()
			if err := sleepBackoff(ctx, s.cfg.BaseBackoff<<(attempt-2)); err != nil {
				return generatedPayload{}, err
			}
		}

		payload, err := s.generateOnce(ctx, userPrompt)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return generatedPayload{}, fmt.Errorf("generation canceled: %w", ctx.Err())
		}

		lastErr = err
		s.logger.Warn("Generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
			zap.Error(err))
	}

	if errors.Is(lastErr, domain.ErrRateLimited) {
		return generatedPayload{}, lastErr
	}
	return generatedPayload{}, fmt.Errorf("%w: %w", domain.ErrGenerationService, lastErr)
}

func (s *Service) generateOnce(ctx context.Context, userPrompt string) (generatedPayload, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.PerAttemptTimeout)
	defer cancel()

	raw, err := s.generator.Generate(attemptCtx, systemPrompt, userPrompt)
	if err != nil {
		return generatedPayload{}, err
	}
	return parsePayload(raw)
}

// parsePayload strips markdown fences, decodes the JSON contract, and
// rejects structurally invalid courses.
func parsePayload(raw string) (generatedPayload, error) {
	cleaned := stripMarkdownFences(raw)

	var payload generatedPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return generatedPayload{}, fmt.Errorf("malformed generation payload: %w", err)
	}

	for i, c := range payload.Courses {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Title) == "" {
			return generatedPayload{}, fmt.Errorf("generated course %d has empty id or title", i)
		}
	}
	return payload, nil
}

// filterPayload applies the hard constraints against indexed metadata. Ids
// outside the retrieved context are hallucinations and are dropped.
func (s *Service) filterPayload(
	payload generatedPayload, prefs domain.Preferences, hits []domain.Hit,
) []domain.Recommendation {
	indexed := make(map[string]domain.Document, len(hits))
	for _, h := range hits {
		indexed[h.Document.ID()] = h.Document
	}

	recs := make([]domain.Recommendation, 0, len(payload.Courses))
	for _, c := range payload.Courses {
		doc, ok := indexed[c.ID]
		if !ok {
			s.logger.Warn("Dropping hallucinated course", zap.String("id", c.ID))
			continue
		}
		if !prefs.Matches(doc) {
			s.logger.Debug("Dropping course violating preferences",
				zap.String("id", c.ID),
				zap.Float64("weekly_hours", doc.WeeklyHours()),
				zap.Float64("rating", doc.Rating()))
			continue
		}

		recs = append(recs, domain.Recommendation{
			ID:            c.ID,
			Title:         c.Title,
			Justification: c.Description,
			Day:           c.Day,
			StartTime:     c.StartTime,
			EndTime:       c.EndTime,
			Location:      c.Location,
		})
	}
	return recs
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("generation canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
