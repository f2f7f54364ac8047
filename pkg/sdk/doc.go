// Package courserag is a small HTTP client for the courserag API.
//
// Basic usage:
//
//	client := courserag.New("http://localhost:8080", courserag.WithAPIKey("secret"))
//	resp, err := client.Query(ctx, courserag.QueryRequest{
//		Query:   "hands-on distributed systems course",
//		Filters: courserag.Filters{MaxWeeklyHours: 12},
//	})
package courserag
