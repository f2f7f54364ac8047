package recommend

import (
	"fmt"
	"strings"

	"github.com/scotty-scheduler/courserag/internal/domain"
)

// systemPrompt pins the advisor persona and the JSON-only response contract.
const systemPrompt = `You are an academic advisor at CMU. Given the student's interest, past courses, and preferences (e.g., time commitment and rating), recommend 1-2 specific CMU courses. Return ONLY a valid JSON object with this format:

{
  "courses": [
    {
      "id": "18-709",
      "title": "Advanced Cloud Computing",
      "description": "Project-based course on scalable distributed systems.",
      "day": "Monday",
      "start_time": "16:00",
      "end_time": "17:50",
      "location": "DH 2315"
    },
    ...
  ]
}

Respond with ONLY this JSON object - no explanation, no commentary. Recommend only courses that appear in the provided context.`

// buildUserPrompt assembles the student request together with retrieved
// syllabi and stated constraints.
func buildUserPrompt(query string, prefs domain.Preferences, hits []domain.Hit) string {
	var b strings.Builder

	b.WriteString("Student request: ")
	b.WriteString(query)
	b.WriteString("\n")

	var constraints []string
	if prefs.MinRating > 0 {
		constraints = append(constraints, fmt.Sprintf("rating at least %.1f out of 5", prefs.MinRating))
	}
	if prefs.MinWeeklyHours > 0 {
		constraints = append(constraints, fmt.Sprintf("at least %.0f hours of work per week", prefs.MinWeeklyHours))
	}
	if prefs.MaxWeeklyHours > 0 {
		constraints = append(constraints, fmt.Sprintf("at most %.0f hours of work per week", prefs.MaxWeeklyHours))
	}
	if len(constraints) > 0 {
		b.WriteString("Constraints: ")
		b.WriteString(strings.Join(constraints, "; "))
		b.WriteString("\n")
	}

	b.WriteString("\nContext (course syllabi):\n")
	for _, hit := range hits {
		doc := hit.Document
		b.WriteString("---\n")
		fmt.Fprintf(&b, "Course ID: %s\n", doc.ID())
		fmt.Fprintf(&b, "Title: %s\n", doc.Title())
		if doc.WeeklyHours() > 0 {
			fmt.Fprintf(&b, "Weekly hours: %.1f\n", doc.WeeklyHours())
		}
		if doc.Rating() > 0 {
			fmt.Fprintf(&b, "Rating: %.1f/5\n", doc.Rating())
		}
		fmt.Fprintf(&b, "Syllabus:\n%s\n", doc.Text())
	}

	return b.String()
}

// stripMarkdownFences removes a leading ```json (or bare ```) fence and the
// matching trailing fence that some models wrap JSON payloads in.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
