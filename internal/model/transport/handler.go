// Package transport defines the invocation pipeline contracts: the
// Request/Response pair exchanged with model tiers, the Handler interface
// processed through a composable middleware chain, and the Invoker
// abstraction over the external model-invocation service.
package transport

import "context"

// Handler processes tier invocation requests through a composable
// middleware pipeline. It is the core abstraction that lets rate limiting,
// circuit breaking, and retry logic layer over the bare invocation.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
// Applied in reverse order with the last middleware closest to the core
// handler, enabling layered request processing.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler. Middleware
// executes in the order provided with the first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
