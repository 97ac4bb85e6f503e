// Package googlefit fetches daily aggregates from the Google Fit REST API and
// reconciles them into per-day activity and weight records.
package googlefit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"example.com/healthsync/internal/domain"
)

// DefaultAggregateURL is the Google Fit dataset aggregate endpoint.
const DefaultAggregateURL = "https://www.googleapis.com/fitness/v1/users/me/dataset:aggregate"

const (
	// WindowDays is how many whole days before today every fetch covers.
	WindowDays = 30

	bucketMillis    = int64(24 * time.Hour / time.Millisecond)
	maxResponseSize = 8 << 20
)

var aggregateDataTypes = []string{
	dataTypeSteps,
	dataTypeCalories,
	dataTypeActiveMinutes,
	dataTypeHeartMinutes,
	dataTypeWeight,
}

// AggregateResponse holds the raw buckets of an aggregate call. Buckets are
// decoded individually during reconciliation so one bad bucket cannot discard
// the rest.
type AggregateResponse struct {
	Buckets []json.RawMessage
}

type aggregateRequest struct {
	AggregateBy     []aggregateBy `json:"aggregateBy"`
	BucketByTime    bucketByTime  `json:"bucketByTime"`
	StartTimeMillis int64         `json:"startTimeMillis"`
	EndTimeMillis   int64         `json:"endTimeMillis"`
}

type aggregateBy struct {
	DataTypeName string `json:"dataTypeName"`
}

type bucketByTime struct {
	DurationMillis int64 `json:"durationMillis"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for aggregate calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithClock overrides the wall clock used to compute the window.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client calls the aggregate endpoint.
type Client struct {
	aggregateURL string
	httpClient   *http.Client
	now          func() time.Time
}

// NewClient constructs a Client. An empty aggregateURL selects DefaultAggregateURL.
func NewClient(aggregateURL string, opts ...Option) *Client {
	if aggregateURL == "" {
		aggregateURL = DefaultAggregateURL
	}
	c := &Client{
		aggregateURL: aggregateURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the fetch range for now: UTC midnight WindowDays days ago up to now.
func Window(now time.Time) (time.Time, time.Time) {
	return domain.DayOf(now).AddDate(0, 0, -WindowDays), now
}

// FetchWindow requests daily buckets for the trailing window using accessToken.
func (c *Client) FetchWindow(ctx context.Context, accessToken string) (*AggregateResponse, error) {
	start, end := Window(c.now())

	aggregates := make([]aggregateBy, 0, len(aggregateDataTypes))
	for _, name := range aggregateDataTypes {
		aggregates = append(aggregates, aggregateBy{DataTypeName: name})
	}
	payload, err := json.Marshal(aggregateRequest{
		AggregateBy:     aggregates,
		BucketByTime:    bucketByTime{DurationMillis: bucketMillis},
		StartTimeMillis: start.UnixMilli(),
		EndTimeMillis:   end.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode aggregate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.aggregateURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build aggregate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return decodeAggregate(body)
}

func decodeAggregate(body []byte) (*AggregateResponse, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	raw, ok := envelope["bucket"]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: missing bucket array", domain.ErrMalformedResponse)
	}
	var buckets []json.RawMessage
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return nil, fmt.Errorf("%w: bucket is not an array", domain.ErrMalformedResponse)
	}
	return &AggregateResponse{Buckets: buckets}, nil
}
