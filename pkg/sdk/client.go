package courserag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 90 * time.Second

// Client calls the courserag HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Filters are the hard constraints on recommended courses.
type Filters struct {
	MinRating      float64 `json:"min_rating,omitempty"`
	MinWeeklyHours float64 `json:"min_weekly_hours,omitempty"`
	MaxWeeklyHours float64 `json:"max_weekly_hours,omitempty"`
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Query   string  `json:"query"`
	TopK    int     `json:"top_k,omitempty"`
	Filters Filters `json:"filters"`
}

// Course is one recommended course.
type Course struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Justification string `json:"justification,omitempty"`
	Day           string `json:"day,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Location      string `json:"location,omitempty"`
}

// QueryResponse is the POST /query response.
type QueryResponse struct {
	Courses []Course `json:"courses"`
}

// HealthReport is the GET /health response.
type HealthReport struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	IndexedDocs int               `json:"indexed_docs"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("courserag: %d %s: %s", e.Status, e.Code, e.Message)
}

// Query requests course recommendations.
func (c *Client) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	var resp QueryResponse
	if err := c.post(ctx, "/query", req, &resp); err != nil {
		return QueryResponse{}, err
	}
	return resp, nil
}

// Health fetches the service health report. A degraded service answers 503,
// surfaced as an *APIError.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var report HealthReport
	err := c.get(ctx, "/health", &report)
	return report, err
}

// CalendarURL returns the download URL for a course's iCalendar file.
func (c *Client) CalendarURL(course Course) string {
	q := url.Values{}
	q.Set("id", course.ID)
	q.Set("title", course.Title)
	q.Set("day", course.Day)
	q.Set("start_time", course.StartTime)
	q.Set("end_time", course.EndTime)
	q.Set("location", course.Location)
	q.Set("description", course.Justification)
	return c.baseURL + "/calendar?" + q.Encode()
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("courserag: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("courserag: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("courserag: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("courserag: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "unknown"}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("courserag: decode response: %w", err)
		}
	}
	return nil
}
