// Package ratelimit implements sliding-window rate limiting keyed by an
// arbitrary string, with an in-process backend and a Redis backend for
// multi-instance deployments.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// Count is the number of attempts inside the window including this one.
	Count int
	Limit int
	// RetryAfter is how long until enough attempts leave the window for the
	// next one to pass, assuming no further attempts meanwhile. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter records an attempt for key and reports whether it stays within
// limit attempts per window. Every attempt is recorded, rejected ones included,
// so retrying during the cooldown extends it.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// ScanKey and SubmitKey build the limiter keys for the two gated entry points.
func ScanKey(storeID, ip string) string   { return "scan:" + storeID + ":" + ip }
func SubmitKey(storeID, ip string) string { return "submit:" + storeID + ":" + ip }

// releaseIndex is the position, counted from the newest attempt (-1), of the
// attempt that must leave the window before another one fits under limit.
func releaseIndex(limit int) int64 {
	return -int64(max(limit, 1))
}

// decide judges count attempts against limit. release is the timestamp of the
// attempt at releaseIndex(limit).
func decide(count, limit int, release time.Time, window time.Duration, now time.Time) Decision {
	d := Decision{Allowed: count <= limit, Count: count, Limit: limit}
	if !d.Allowed {
		d.RetryAfter = max(release.Add(window).Sub(now), time.Second)
	}
	return d
}
