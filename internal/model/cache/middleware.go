package cache

import (
	"context"

	"github.com/cascade-ai/cascade/internal/model/transport"
)

// NewPopulateMiddleware returns transport middleware that writes every
// successful primary response through to the cache. Write failures are
// logged, never surfaced: a cache outage must not fail a good response.
func NewPopulateMiddleware(c *Cache) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil || resp == nil || resp.Source != transport.SourcePrimary {
				return resp, err
			}

			fingerprint := req.Fingerprint
			if fingerprint == "" {
				fingerprint = transport.Fingerprint(req.Prompt)
			}
			if putErr := c.Put(ctx, req.Prompt, fingerprint, resp); putErr != nil {
				c.logger.Warn("failed to populate cache", "fingerprint", fingerprint, "error", putErr)
			}
			return resp, nil
		})
	}
}
