// Package classifier calls the question classification service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/answerlab/qaeval/internal/resilience"
)

const (
	defaultBaseURL  = "http://classifier.internal:8080"
	defaultTimeout  = 30 * time.Second
	serviceName     = "classifier"
	serviceCallerID = "qaeval"
)

// Client classifies user questions into business categories. priorAnswer is
// the production answer captured during sync; the service uses it as context
// and tolerates it being empty.
type Client interface {
	Classify(ctx context.Context, query, priorAnswer string) (string, error)
}

// classifyRequest is the request body for POST /v1/classify.
type classifyRequest struct {
	Query       string `json:"query"`
	PriorAnswer string `json:"prior_answer,omitempty"`
	CallerID    string `json:"caller_id"`
}

// classifyResponse is the response from POST /v1/classify.
type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
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

// NewClient creates a classification service client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		timeout: defaultTimeout,
		limiter: rate.NewLimiter(10, 10),
		http: &http.Client{
			Timeout: 60 * time.Second,
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

func (c *httpClient) Classify(ctx context.Context, query, priorAnswer string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "classifier: rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(classifyRequest{Query: query, PriorAnswer: priorAnswer, CallerID: serviceCallerID})
	if err != nil {
		return "", eris.Wrap(err, "classifier: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "classifier: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", resilience.NewAPIError(resilience.FromTransport(err), serviceName, "classify", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.NewAPIError(resilience.KindConnection, serviceName, "classify", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &resilience.APIError{
			Kind:       resilience.FromHTTPStatus(resp.StatusCode),
			Service:    serviceName,
			Op:         "classify",
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)),
		}
		if apiErr.Kind == resilience.KindRateLimited {
			apiErr.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return "", apiErr
	}

	var result classifyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", resilience.NewAPIError(resilience.KindResponseFormat, serviceName, "classify", err)
	}
	if result.Label == "" {
		return "", resilience.NewAPIError(resilience.KindResponseFormat, serviceName, "classify",
			eris.New("empty label in response"))
	}

	return result.Label, nil
}
