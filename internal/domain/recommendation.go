package domain

// Recommendation is one recommended course in the final structured result.
// Schedule fields are advisory (used for calendar export) and may be empty.
type Recommendation struct {
	ID            string
	Title         string
	Justification string
	Day           string
	StartTime     string
	EndTime       string
	Location      string
}

// Hit is a single retrieval result: a document with its similarity score.
type Hit struct {
	Document Document
	Score    float64
}
