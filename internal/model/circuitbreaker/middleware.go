package circuitbreaker

import (
	"context"

	llmerrors "github.com/cascade-ai/cascade/internal/model/errors"
	"github.com/cascade-ai/cascade/internal/model/transport"
)

// NewMiddleware returns transport middleware that gates each request
// behind the breaker for its tier. Rejections surface as UnavailableError
// so the fallback chain advances without retrying. Validation failures and
// local rate-limit rejections do not count against the breaker: neither
// says anything about tier health.
func NewMiddleware(registry *Registry) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			breaker := registry.Get(req.TierID)

			cleanup, err := breaker.Allow()
			if err != nil {
				return nil, err
			}
			defer cleanup()

			resp, err := next.Handle(ctx, req)
			switch {
			case err == nil:
				breaker.RecordSuccess()
			case llmerrors.IsValidation(err), llmerrors.IsRateLimit(err):
				// No health signal.
			default:
				breaker.RecordFailure()
			}
			return resp, err
		})
	}
}
