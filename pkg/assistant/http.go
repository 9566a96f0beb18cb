package assistant

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

const defaultTimeout = 60 * time.Second

// generateRequest is the request body for POST /v1/answers.
type generateRequest struct {
	Query string `json:"query"`
}

// generateResponse is the response from POST /v1/answers.
type generateResponse struct {
	Answer string `json:"answer"`
}

// Option configures the HTTP generator.
type Option func(*httpClient)

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
	service string
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
	http    *http.Client
}

// NewHTTP creates a Generator for an assistant that exposes the answers API
// over HTTP. The service name appears in errors and logs.
func NewHTTP(service, baseURL string, opts ...Option) Generator {
	c := &httpClient{
		service: service,
		baseURL: baseURL,
		timeout: defaultTimeout,
		limiter: rate.NewLimiter(5, 5),
		http: &http.Client{
			Timeout: 90 * time.Second,
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

func (c *httpClient) Generate(ctx context.Context, query string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrapf(err, "%s: rate limit wait", c.service)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Query: query})
	if err != nil {
		return "", eris.Wrapf(err, "%s: marshal request", c.service)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/answers", bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrapf(err, "%s: create request", c.service)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", resilience.NewAPIError(resilience.FromTransport(err), c.service, "generate", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resilience.NewAPIError(resilience.KindConnection, c.service, "generate", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &resilience.APIError{
			Kind:       resilience.FromHTTPStatus(resp.StatusCode),
			Service:    c.service,
			Op:         "generate",
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)),
		}
		if apiErr.Kind == resilience.KindRateLimited {
			apiErr.RetryAfter = resilience.ParseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return "", apiErr
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", resilience.NewAPIError(resilience.KindResponseFormat, c.service, "generate", err)
	}
	if result.Answer == "" {
		return "", resilience.NewAPIError(resilience.KindResponseFormat, c.service, "generate",
			eris.New("empty answer in response"))
	}

	return result.Answer, nil
}
