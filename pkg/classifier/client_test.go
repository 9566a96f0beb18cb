package classifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerlab/qaeval/internal/resilience"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantLabel string
		wantKind  resilience.Kind
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"label": "billing", "confidence": 0.92}`,
			wantLabel: "billing",
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error": "slow down"}`,
			wantKind: resilience.KindRateLimited,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error": "boom"}`,
			wantKind: resilience.KindServer,
		},
		{
			name:     "bad credentials",
			status:   http.StatusUnauthorized,
			body:     `{"error": "no"}`,
			wantKind: resilience.KindAuthentication,
		},
		{
			name:     "malformed response",
			status:   http.StatusOK,
			body:     `{invalid json`,
			wantKind: resilience.KindResponseFormat,
		},
		{
			name:     "empty label",
			status:   http.StatusOK,
			body:     `{"label": "", "confidence": 0.1}`,
			wantKind: resilience.KindResponseFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/classify", r.URL.Path)

				reqBody, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				var req classifyRequest
				require.NoError(t, json.Unmarshal(reqBody, &req))
				assert.Equal(t, "how do I pay", req.Query)
				assert.Equal(t, "pay via the billing page", req.PriorAnswer)
				assert.Equal(t, "qaeval", req.CallerID)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL))
			label, err := c.Classify(context.Background(), "how do I pay", "pay via the billing page")

			if tt.wantKind != "" {
				require.Error(t, err)
				kind, ok := resilience.ErrorKind(err)
				require.True(t, ok)
				assert.Equal(t, tt.wantKind, kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestClassify_RetryAfterHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.Classify(context.Background(), "q", "")
	require.Error(t, err)

	var apiErr *resilience.APIError
	require.ErrorAs(t, err, &apiErr)
	require.NotNil(t, apiErr.RetryAfter)
	assert.Equal(t, int64(7), int64(apiErr.RetryAfter.Seconds()))
	assert.True(t, apiErr.Retryable())
}
