// Package scoring calls the evaluation service that rates answers on the
// five quality dimensions.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/answerlab/qaeval/internal/model"
	"github.com/answerlab/qaeval/internal/resilience"
)

const (
	defaultBaseURL = "http://scoring.internal:8080"
	defaultTimeout = 120 * time.Second
	serviceName    = "scoring"
)

// Client scores a question's answers in one call.
type Client interface {
	Score(ctx context.Context, req ScoreRequest) ([]Result, error)
}

// ScoreRequest carries the question and every answer to rate. Classification
// gives the rater the question's category as context.
type ScoreRequest struct {
	Query          string        `json:"query"`
	Classification string        `json:"classification,omitempty"`
	Answers        []AnswerInput `json:"answers"`
}

// AnswerInput is one answer submitted for scoring.
type AnswerInput struct {
	AnswerID  string            `json:"answer_id"`
	Assistant model.AssistantID `json:"assistant"`
	Text      string            `json:"text"`
}

// Result is the five-dimension rating for one answer. Every dimension must be
// present and in range or the whole response is rejected.
type Result struct {
	AnswerID  string                      `json:"answer_id"`
	Assistant model.AssistantID           `json:"assistant"`
	Dims      [model.NumDimensions]int    `json:"dims"`
	DimNames  [model.NumDimensions]string `json:"dim_names"`
	Comment   string                      `json:"comment,omitempty"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default service base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets requests-per-second throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

type httpClient struct {
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates a scoring service client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
		limiter: rate.NewLimiter(2, 2),
		http: &http.Client{
			Timeout: 150 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Score(ctx context.Context, req ScoreRequest) ([]Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scoring: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/score", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "scoring: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewAPIError(resilience.FromTransport(err), serviceName, "score", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewAPIError(resilience.KindConnection, serviceName, "score", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &resilience.APIError{
			Kind:       resilience.FromHTTPStatus(resp.StatusCode),
			Service:    serviceName,
			Op:         "score",
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)),
		}
		if apiErr.Kind == resilience.KindRateLimited {
			apiErr.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, apiErr
	}

	var results []Result
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, resilience.NewAPIError(resilience.KindResponseFormat, serviceName, "score", err)
	}

	// A partial or out-of-range rating invalidates the whole response; nothing
	// from it is persisted.
	for _, r := range results {
		for i, d := range r.Dims {
			if d < 1 || d > 5 {
				return nil, resilience.NewAPIError(resilience.KindResponseFormat, serviceName, "score",
					eris.Errorf("answer %s: dimension %d out of range: %d", r.AnswerID, i+1, d))
			}
		}
	}

	return results, nil
}
