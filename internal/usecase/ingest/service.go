// Package ingest builds the retrieval index from a directory of syllabus
// files. Each document is chunked, embedded in batches, mean-pooled into a
// single vector, and written to the persisted artifact together with the
// build manifest.
package ingest

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
)

// Syllabus metadata patterns. Workload and rating are optional; a document
// without them gets zero values and passes every preference filter.
var (
	hoursPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:hrs?|hours)\s*(?:/|per)\s*week`)
	ratingPattern = regexp.MustCompile(`(?i)rating[:\s]*(\d(?:\.\d+)?)`)
)

// Config holds index build parameters.
type Config struct {
	Model          string
	Dimensions     int
	EmbedBatchSize int
	EmbedTimeout   time.Duration // per-batch deadline; 0 disables
}

// Report summarizes an index build.
type Report struct {
	Indexed int
	Skipped int
}

// Service builds index snapshots from syllabus directories.
type Service struct {
	embed   BatchEmbedder
	chunker Chunker
	writer  ArtifactWriter
	cfg     Config
	logger  *zap.Logger
}

// New creates an ingest service.
func New(embed BatchEmbedder, chunker Chunker, writer ArtifactWriter, cfg Config, logger *zap.Logger) *Service {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	return &Service{embed: embed, chunker: chunker, writer: writer, cfg: cfg, logger: logger}
}

// Build reads every *.txt file under dir, embeds it, and writes the index
// artifact. A document that cannot be read or embedded is logged and skipped;
// only directory-level and artifact-level failures are fatal.
func (s *Service) Build(ctx context.Context, dir string) (Report, error) {
	files, err := listSyllabusFiles(dir)
	if err != nil {
		return Report{}, fmt.Errorf("list syllabus files: %w", err)
	}

	var report Report
	entries := make([]index.Entry, 0, len(files))

	for _, path := range files {
		entry, err := s.buildEntry(ctx, path)
		if err != nil {
			report.Skipped++
			s.logger.Warn("Skipping document",
				zap.String("file", filepath.Base(path)),
				zap.Error(fmt.Errorf("%w: %w", domain.ErrIngestion, err)))
			continue
		}
		entries = append(entries, entry)
		report.Indexed++
	}

	manifest := index.Manifest{
		Model:      s.cfg.Model,
		Dimensions: s.cfg.Dimensions,
		Metric:     index.MetricCosine,
		BuiltAt:    time.Now().UTC(),
		DocCount:   len(entries),
	}

	if err := s.writer.Write(ctx, manifest, entries); err != nil {
		return Report{}, fmt.Errorf("write artifact: %w", err)
	}

	s.logger.Info("Index build complete",
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.String("model", manifest.Model))

	return report, nil
}

func (s *Service) buildEntry(ctx context.Context, path string) (index.Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return index.Entry{}, fmt.Errorf("read file: %w", err)
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	doc, err := parseSyllabus(id, string(raw))
	if err != nil {
		return index.Entry{}, err
	}

	vector, err := s.embedDocument(ctx, doc.Text())
	if err != nil {
		return index.Entry{}, fmt.Errorf("embed document: %w", err)
	}

	return index.Entry{Document: doc, Vector: vector}, nil
}

// embedDocument chunks the text, embeds the chunks in batches, and mean-pools
// the chunk vectors into one L2-normalized document vector.
func (s *Service) embedDocument(ctx context.Context, text string) ([]float32, error) {
	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no embeddable chunks")
	}

	pooled := make([]float64, s.cfg.Dimensions)
	var embedded int

	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		res, err := s.embedBatch(ctx, chunks[start:end])
		if err != nil {
			return nil, err
		}

		for _, vec := range res.Embeddings {
			if len(vec) != s.cfg.Dimensions {
				return nil, fmt.Errorf("chunk vector dimension %d, expected %d", len(vec), s.cfg.Dimensions)
			}
			for i, v := range vec {
				pooled[i] += float64(v)
			}
			embedded++
		}
	}

	if embedded == 0 {
		return nil, fmt.Errorf("provider returned no vectors")
	}

	var norm float64
	for i := range pooled {
		pooled[i] /= float64(embedded)
		norm += pooled[i] * pooled[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("document vector has zero magnitude")
	}

	vector := make([]float32, len(pooled))
	for i := range pooled {
		vector[i] = float32(pooled[i] / norm)
	}
	return vector, nil
}

func (s *Service) embedBatch(ctx context.Context, batch []string) (domain.BatchEmbeddingResult, error) {
	if s.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		defer cancel()
	}
	return s.embed.BatchEmbed(ctx, batch)
}

// parseSyllabus extracts the course document from raw file content. The
// first non-empty line is the title; workload and rating are matched by
// pattern anywhere in the text.
func parseSyllabus(id, raw string) (domain.Document, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.Document{}, fmt.Errorf("empty syllabus")
	}

	var title string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			title = trimmed
			break
		}
	}

	doc, err := domain.NewDocument(id, title, text, matchFloat(hoursPattern, text), matchFloat(ratingPattern, text))
	if err != nil {
		return domain.Document{}, fmt.Errorf("parse syllabus: %w", err)
	}
	return doc, nil
}

func matchFloat(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return v
}

func listSyllabusFiles(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("no syllabus files in %s", dir)
	}
	return files, nil
}
