// Package ratelimit implements fixed-window request limits over a pluggable
// counter store, so a single process can use memory and a fleet can share Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store counts hits per key within a fixed window.
type Store interface {
	// Hit records one request for key and returns the number of requests
	// seen in the current window and the time the window ends.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

// Rule is a named limit of Limit requests per Window.
type Rule struct {
	Name   string
	Limit  int64
	Window time.Duration
}

var (
	General      = Rule{Name: "general", Limit: 100, Window: 15 * time.Minute}
	Login        = Rule{Name: "login", Limit: 5, Window: 15 * time.Minute}
	OTP          = Rule{Name: "otp", Limit: 3, Window: 10 * time.Minute}
	Reset        = Rule{Name: "reset", Limit: 3, Window: time.Hour}
	Verification = Rule{Name: "verification", Limit: 3, Window: time.Hour}
)

// Decision is the outcome of one limited request.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// Limiter applies rules against a store.
type Limiter struct {
	store Store
}

// New creates a limiter over store.
func New(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow records a request for key under rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, key string) (Decision, error) {
	count, resetAt, err := l.store.Hit(ctx, fmt.Sprintf("ratelimit:%s:%s", rule.Name, key), rule.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", rule.Name, err)
	}
	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= rule.Limit,
		Limit:     rule.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
