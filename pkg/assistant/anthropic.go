package assistant

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/answerlab/qaeval/internal/resilience"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// anthropicClient generates answers through the official Anthropic SDK. Used
// for competitor assistants backed by Claude models.
type anthropicClient struct {
	service string
	client  sdk.Client
	model   string
	limiter *rate.Limiter
}

// AnthropicOption configures the Anthropic generator.
type AnthropicOption func(*anthropicClient)

// WithModel overrides the default model.
func WithModel(model string) AnthropicOption {
	return func(c *anthropicClient) {
		c.model = model
	}
}

// WithAnthropicRateLimit sets requests-per-second throttling.
func WithAnthropicRateLimit(rps float64) AnthropicOption {
	return func(c *anthropicClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// NewAnthropic creates a Generator backed by the Anthropic API.
func NewAnthropic(service, apiKey string, opts ...AnthropicOption) Generator {
	c := &anthropicClient{
		service: service,
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		model:   defaultAnthropicModel,
		limiter: rate.NewLimiter(2, 2),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *anthropicClient) Generate(ctx context.Context, query string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", resilience.NewAPIError(resilience.KindTimeout, c.service, "generate", err)
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: 1024,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(query)),
		},
	})
	if err != nil {
		return "", classifySDKError(c.service, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", resilience.NewAPIError(resilience.KindResponseFormat, c.service, "generate",
			errors.New("no text content in response"))
	}

	return answer, nil
}

// classifySDKError maps an Anthropic SDK failure onto the retry taxonomy.
func classifySDKError(service string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		out := resilience.NewAPIError(resilience.FromHTTPStatus(apiErr.StatusCode), service, "generate", err)
		out.StatusCode = apiErr.StatusCode
		return out
	}
	return resilience.NewAPIError(resilience.FromTransport(err), service, "generate", err)
}
