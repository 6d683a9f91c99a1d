package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"credence/pkg/domain"
	"credence/pkg/requestcontext"
)

// NewActor builds an actor with fresh user id for tenant.
func NewActor(tenantID domain.TenantID, role domain.Role, departments ...string) domain.Actor {
	return domain.Actor{
		TenantID:    tenantID,
		UserID:      domain.UserID(uuid.New()),
		Role:        role,
		Departments: departments,
	}
}

// NewTenantID returns a random tenant id.
func NewTenantID() domain.TenantID {
	return domain.TenantID(uuid.New())
}

// WithActor adds the actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// FixedClock pins requestcontext.Now to t for the returned context.
func FixedClock(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
