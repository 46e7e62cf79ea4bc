package ingestion

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/store"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

// DefaultPageSize bounds one timeline page per fetch run.
const DefaultPageSize = 20

// ErrConfigurationMissing is returned when the owner never saved a
// monitoring configuration. Not retriable.
var ErrConfigurationMissing = errors.New("monitoring configuration missing")

// FetchResult summarizes one fetch run. When RateLimited is true no provider
// call was made (or the provider refused it) and the run should simply be
// retried after Wait by the next scheduled trigger.
type FetchResult struct {
	FetchedCount  int
	InsertedCount int
	RateLimited   bool
	Wait          time.Duration
}

// Fetcher orchestrates one ingestion run for one owner.
type Fetcher struct {
	configs    store.ConfigStore
	posts      store.PostStore
	tracker    *ratelimit.Tracker
	timeline   providers.Timeline
	reconciler *Reconciler
	pageSize   int

	// Injected clock for tests.
	now func() time.Time
}

func NewFetcher(configs store.ConfigStore, posts store.PostStore, tracker *ratelimit.Tracker, timeline providers.Timeline) *Fetcher {
	return &Fetcher{
		configs:    configs,
		posts:      posts,
		tracker:    tracker,
		timeline:   timeline,
		reconciler: NewReconciler(posts),
		pageSize:   DefaultPageSize,
		now:        time.Now,
	}
}

// FetchNewPosts pulls the owner's timeline since the stored cursor, persists
// the new non-duplicate posts, and advances the cursor over everything
// fetched. The cursor moves over the fetched set, not just the inserted one,
// so a page full of retweets still makes forward progress instead of being
// re-scanned forever.
func (f *Fetcher) FetchNewPosts(ctx context.Context, ownerId string) (*FetchResult, error) {
	config, err := f.configs.GetConfig(ctx, ownerId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrConfigurationMissing
	}
	if err != nil {
		return nil, errors.Wrap(err, "fail to load monitoring config")
	}

	decision, err := f.tracker.CheckBudget(ctx, ownerId, ratelimit.EndpointTimeline)
	if err != nil {
		return nil, errors.Wrap(err, "fail to check timeline budget")
	}
	if !decision.Allowed {
		return &FetchResult{RateLimited: true, Wait: decision.Wait}, nil
	}

	response, err := f.timeline.ListRecentPosts(ctx, config.SourceAccount, config.Cursor, f.pageSize)
	if err != nil {
		if rateLimitErr, ok := providers.AsRateLimitError(err); ok {
			// Record the exhausted window so the next run short-circuits
			// locally, then defer to the next scheduled trigger. The config
			// is left untouched, this is not a failure of the account.
			f.tracker.RecordUsage(ctx, ownerId, ratelimit.EndpointTimeline,
				rateLimitErr.Remaining, rateLimitErr.Limit, rateLimitErr.ResetAt)
			return &FetchResult{RateLimited: true, Wait: time.Until(rateLimitErr.ResetAt)}, nil
		}
		// Cursor is deliberately not advanced, the next run retries the same
		// window.
		return nil, errors.Wrap(err, "fail to list recent posts")
	}

	if response.RateLimit != nil {
		f.tracker.RecordUsage(ctx, ownerId, ratelimit.EndpointTimeline,
			response.RateLimit.Remaining, response.RateLimit.Limit, response.RateLimit.ResetAt)
	}

	result := &FetchResult{FetchedCount: len(response.Posts)}

	newPosts, err := f.reconciler.Reconcile(ctx, ownerId, response.Posts, response.Media)
	if err != nil {
		return result, err
	}
	if len(newPosts) > 0 {
		if err := f.posts.InsertPosts(ctx, newPosts); err != nil {
			return result, errors.Wrap(err, "fail to insert post batch")
		}
		result.InsertedCount = len(newPosts)

		for _, threadId := range distinctThreadIds(newPosts) {
			if err := f.posts.ResolveThreadPositions(ctx, ownerId, threadId); err != nil {
				Logger.Log.Warnf("fail to resolve thread positions for thread %s: %s", threadId, err)
			}
		}
	}

	if err := f.advanceCursor(ctx, config, response.Posts); err != nil {
		return result, err
	}
	return result, nil
}

// advanceCursor moves the cursor to the newest fetched post id. The cursor
// never moves backwards.
func (f *Fetcher) advanceCursor(ctx context.Context, config *model.MonitoringConfig, fetched []providers.RawPost) error {
	newest := config.Cursor
	for _, raw := range fetched {
		if newest == "" || providers.ComparePostIds(raw.Id, newest) > 0 {
			newest = raw.Id
		}
	}
	if newest == config.Cursor {
		return nil
	}
	config.Cursor = newest
	config.UpdatedAt = f.now()
	return errors.Wrap(f.configs.UpsertConfig(ctx, config), "fail to advance cursor")
}

func distinctThreadIds(posts []*model.Post) []string {
	seen := make(map[string]bool)
	var threadIds []string
	for _, post := range posts {
		if post.ThreadId == nil || seen[*post.ThreadId] {
			continue
		}
		seen[*post.ThreadId] = true
		threadIds = append(threadIds, *post.ThreadId)
	}
	return threadIds
}
