package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient throttles request starts on the wrapped client.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps client with a token bucket. A non-positive
// perSecond disables limiting and returns client unchanged.
func NewRateLimitedClient(client LLMClient, perSecond float64, burst int) LLMClient {
	if perSecond <= 0 {
		return client
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (c *RateLimitedClient) StreamChat(ctx context.Context, messages []Message, opts ChatOptions) (<-chan StreamChunk, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.inner.StreamChat(ctx, messages, opts)
}

func (c *RateLimitedClient) IsTransientError(err error) bool {
	return c.inner.IsTransientError(err)
}

func (c *RateLimitedClient) Provider() string {
	return c.inner.Provider()
}
