// Package sqlite persists the index artifact: manifest, course documents and
// their embedding vectors. The artifact is written in one transaction by the
// indexer and loaded read-only by the API server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
)

const schema = `
CREATE TABLE IF NOT EXISTS manifest (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  model TEXT NOT NULL,
  dimensions INTEGER NOT NULL,
  metric TEXT NOT NULL,
  built_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  text TEXT NOT NULL,
  weekly_hours REAL NOT NULL DEFAULT 0,
  rating REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS vectors (
  course_id TEXT PRIMARY KEY REFERENCES courses(id) ON DELETE CASCADE,
  embedding BLOB NOT NULL
);`

// Store is the SQLite-backed index artifact.
type Store struct {
	db *sql.DB
}

// Open creates or opens an artifact file and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifact directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping artifact: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init artifact schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Write replaces the entire artifact with the given snapshot content. The
// swap is transactional so a concurrent Load sees either the old or the new
// index, never a mix.
func (s *Store) Write(ctx context.Context, manifest index.Manifest, entries []index.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin artifact write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{"DELETE FROM vectors", "DELETE FROM courses", "DELETE FROM manifest"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear artifact: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manifest (id, model, dimensions, metric, built_at) VALUES (1, ?, ?, ?, ?)`,
		manifest.Model, manifest.Dimensions, manifest.Metric, manifest.BuiltAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	courseStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO courses (id, title, text, weekly_hours, rating) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare course insert: %w", err)
	}
	defer courseStmt.Close()

	vectorStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vectors (course_id, embedding) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare vector insert: %w", err)
	}
	defer vectorStmt.Close()

	for _, e := range entries {
		if len(e.Vector) != manifest.Dimensions {
			return fmt.Errorf("document %s: vector dimension %d, manifest says %d",
				e.Document.ID(), len(e.Vector), manifest.Dimensions)
		}
		d := e.Document
		if _, err := courseStmt.ExecContext(ctx,
			d.ID(), d.Title(), d.Text(), d.WeeklyHours(), d.Rating()); err != nil {
			return fmt.Errorf("write course %s: %w", d.ID(), err)
		}
		if _, err := vectorStmt.ExecContext(ctx, d.ID(), encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("write vector %s: %w", d.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit artifact write: %w", err)
	}
	return nil
}

// Load reads the whole artifact into an immutable snapshot. Fails when the
// manifest is missing or any stored vector disagrees with it.
func (s *Store) Load(ctx context.Context) (*index.Snapshot, error) {
	var (
		manifest index.Manifest
		builtAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT model, dimensions, metric, built_at FROM manifest WHERE id = 1`,
	).Scan(&manifest.Model, &manifest.Dimensions, &manifest.Metric, &builtAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact has no manifest: %w", domain.ErrIndexNotLoaded)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if manifest.BuiltAt, err = time.Parse(time.RFC3339, builtAt); err != nil {
		return nil, fmt.Errorf("parse manifest built_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.text, c.weekly_hours, c.rating, v.embedding
		FROM courses c JOIN vectors v ON v.course_id = c.id
		ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("read courses: %w", err)
	}
	defer rows.Close()

	var entries []index.Entry
	for rows.Next() {
		var (
			id, title, text     string
			weeklyHours, rating float64
			blob                []byte
		)
		if err := rows.Scan(&id, &title, &text, &weeklyHours, &rating, &blob); err != nil {
			return nil, fmt.Errorf("scan course row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector for %s: %w", id, err)
		}
		entries = append(entries, index.Entry{
			Document: domain.ReconstructDocument(id, title, text, weeklyHours, rating),
			Vector:   vec,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}

	snap, err := index.NewSnapshot(manifest, entries)
	if err != nil {
		return nil, fmt.Errorf("build snapshot from artifact: %w", err)
	}
	return snap, nil
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
