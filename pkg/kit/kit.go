// Package kit holds the endpoint/middleware plumbing shared by the transports,
// plus the request-scoped values carried on the context.
package kit

import (
	"context"

	"github.com/google/uuid"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain applies middlewares so that the first one is the outermost.
func Chain(e Endpoint, mws ...Middleware) Endpoint {
	for i := len(mws) - 1; i >= 0; i-- {
		e = mws[i](e)
	}
	return e
}

type ctxKey int

const (
	transportKey ctxKey = iota
	userIDKey
	requestIDKey
	traceIDKey
)

func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

func GetTransport(ctx context.Context) string {
	v, _ := ctx.Value(transportKey).(string)
	return v
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// NewRequestContext tags ctx with a fresh request ID, reused as the trace ID
// so SQL traces correlate with the invocation that issued them.
func NewRequestContext(ctx context.Context, transport string) context.Context {
	id := uuid.NewString()
	ctx = WithTransport(ctx, transport)
	ctx = WithRequestID(ctx, id)
	return WithTraceID(ctx, id)
}
