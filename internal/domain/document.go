package domain

import (
	"fmt"
	"strings"
)

// Document is a single ingested course syllabus. Immutable once created.
// WeeklyHours and Rating are 0 when the syllabus did not state them.
type Document struct {
	id          string
	title       string
	text        string
	weeklyHours float64
	rating      float64
}

// NewDocument validates and creates a Document.
func NewDocument(id, title, text string, weeklyHours, rating float64) (Document, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, fmt.Errorf("document id is required")
	}
	if strings.TrimSpace(text) == "" {
		return Document{}, fmt.Errorf("document %s has empty text", id)
	}
	if weeklyHours < 0 {
		return Document{}, fmt.Errorf("document %s has negative weekly hours", id)
	}
	if rating < 0 || rating > 5 {
		return Document{}, fmt.Errorf("document %s rating %.2f outside [0, 5]", id, rating)
	}
	return Document{id: id, title: title, text: text, weeklyHours: weeklyHours, rating: rating}, nil
}

// ReconstructDocument creates a Document from trusted storage without validation.
func ReconstructDocument(id, title, text string, weeklyHours, rating float64) Document {
	return Document{id: id, title: title, text: text, weeklyHours: weeklyHours, rating: rating}
}

// ID returns the course code, e.g. "18-100".
func (d Document) ID() string { return d.id }

// Title returns the course title.
func (d Document) Title() string { return d.title }

// Text returns the cleaned syllabus text.
func (d Document) Text() string { return d.text }

// WeeklyHours returns the estimated weekly workload, 0 if unknown.
func (d Document) WeeklyHours() float64 { return d.weeklyHours }

// Rating returns the student rating on a 1-5 scale, 0 if unknown.
func (d Document) Rating() float64 { return d.rating }
