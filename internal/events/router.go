package events

import (
	"context"
	"log/slog"
)

// Router dispatches envelopes to type-specific handlers. Types without a handler
// are acknowledged and skipped.
type Router struct {
	handlers map[Type]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[Type]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for one event type.
func (r *Router) Register(typ Type, handler Handler) {
	r.handlers[typ] = handler
}

func (r *Router) Handle(ctx context.Context, env Envelope) error {
	handler, ok := r.handlers[env.Type]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, env)
		}
		r.logger.DebugContext(ctx, "no handler for event type, skipping",
			"type", env.Type,
			"activity_id", env.ActivityID,
		)
		return nil
	}
	return handler.Handle(ctx, env)
}
