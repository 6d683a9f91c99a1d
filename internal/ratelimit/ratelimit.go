// Package ratelimit counts requests per key over a sliding window.
package ratelimit

import (
	"context"
	"time"
)

// Limit is the request budget for one key.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Enabled reports whether the limit constrains anything.
func (l Limit) Enabled() bool {
	return l.Requests > 0 && l.Window > 0
}

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Store records a request against key and reports whether it fits in limit.
type Store interface {
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

func deny(limit Limit, oldest, now time.Time) *Result {
	reset := oldest.Add(limit.Window)
	retry := reset.Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return &Result{
		Allowed:    false,
		Limit:      limit.Requests,
		Remaining:  0,
		ResetAt:    reset,
		RetryAfter: retry,
	}
}
