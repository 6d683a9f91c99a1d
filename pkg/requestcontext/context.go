// Package requestcontext carries request-scoped values from middleware to
// services without importing net/http.
package requestcontext

import (
	"context"
	"time"

	"credence/pkg/domain"
)

type key int

const (
	actorKey key = iota
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// Actor returns the authenticated caller, or the zero Actor for anonymous
// requests.
func Actor(ctx context.Context) domain.Actor { return value[domain.Actor](ctx, actorKey) }

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ClientIP(ctx context.Context) string  { return value[string](ctx, clientIPKey) }
func UserAgent(ctx context.Context) string { return value[string](ctx, userAgentKey) }

// WithClientMetadata records where a request came from. Audit records read it
// back through ClientIP and UserAgent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

func RequestID(ctx context.Context) string { return value[string](ctx, requestIDKey) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the single timestamp for everything one request or one worker batch
// records. Outside a request it is the current UTC time.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
