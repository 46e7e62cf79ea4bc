// Package ratelimit keeps per-owner, per-endpoint quota bookkeeping so that
// pipeline stages can refuse a provider call before burning the quota.
package ratelimit

import (
	"context"
	"time"

	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/store"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

// Guarded provider endpoints.
const (
	EndpointTimeline = "timeline"
	EndpointTweet    = "tweet"
)

// Decision is the outcome of a budget check. When not allowed, Wait is the
// duration until the quota window resets.
type Decision struct {
	Allowed bool
	Wait    time.Duration
}

// Tracker reads and writes RateLimitRecords. A blocked decision means the
// caller must not attempt the guarded provider call and should surface a
// "rate limited, retry after Wait" condition instead of a hard failure.
type Tracker struct {
	store store.RateLimitStore

	// Injected clock for tests.
	now func() time.Time
}

func NewTracker(s store.RateLimitStore) *Tracker {
	return &Tracker{store: s, now: time.Now}
}

// CheckBudget decides whether a call on the endpoint may proceed for the
// owner. An absent or expired record always allows; an expired record is
// opportunistically cleared.
func (t *Tracker) CheckBudget(ctx context.Context, ownerId string, endpoint string) (Decision, error) {
	record, err := t.store.GetRateLimit(ctx, ownerId, endpoint)
	if err != nil {
		return Decision{}, err
	}
	if record == nil {
		return Decision{Allowed: true}, nil
	}

	now := t.now()
	if record.Expired(now) {
		// Stale record must never block a request. Cleanup is best-effort.
		if err := t.store.DeleteRateLimit(ctx, ownerId, endpoint); err != nil {
			Logger.Log.Warnln("fail to clear stale rate limit record:", err)
		}
		return Decision{Allowed: true}, nil
	}

	if record.Remaining > 0 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Wait: record.ResetAt.Sub(now)}, nil
}

// RecordUsage upserts the latest quota metadata reported by a provider.
// Best-effort and idempotent, the latest call always wins. Failures are
// logged, a lost record only costs one wasted provider call later.
func (t *Tracker) RecordUsage(ctx context.Context, ownerId string, endpoint string, remaining int, limit int, resetAt time.Time) {
	record := &model.RateLimitRecord{
		OwnerId:   ownerId,
		Endpoint:  endpoint,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   resetAt,
		UpdatedAt: t.now(),
	}
	if err := t.store.UpsertRateLimit(ctx, record); err != nil {
		Logger.Log.Warnf("fail to record rate limit usage for owner %s endpoint %s: %s", ownerId, endpoint, err)
	}
}
