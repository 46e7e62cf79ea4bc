// Package publication selects queued posts and publishes them under the
// per-batch fairness rule, interpreting the publish failure taxonomy into
// state transitions and backoff.
package publication

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/store"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

const (
	// DefaultBatchSize caps one scheduler invocation.
	DefaultBatchSize = 10

	// Pacing between consecutive publish calls within one batch, to stay
	// polite with the provider.
	interCallDelay = 2 * time.Second
)

// OutcomeKind classifies what happened to one selected post.
type OutcomeKind string

const (
	OutcomePosted      OutcomeKind = "posted"
	OutcomeSkipped     OutcomeKind = "skipped"
	OutcomeRateLimited OutcomeKind = "rate_limited"
	OutcomeFailed      OutcomeKind = "failed"
)

// Outcome is the per-post result of one batch run.
type Outcome struct {
	PostId  string      `json:"post_id"`
	OwnerId string      `json:"owner_id"`
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Scheduler publishes queued posts, oldest first, at most one per owner per
// batch. The fairness set lives in memory for a single RunBatch call only,
// overlapping scheduler invocations are not protected against and must be
// prevented by the host scheduler.
type Scheduler struct {
	posts     store.PostStore
	tracker   *ratelimit.Tracker
	publisher providers.Publisher

	// Injected clock and sleeper for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewScheduler(posts store.PostStore, tracker *ratelimit.Tracker, publisher providers.Publisher) *Scheduler {
	return &Scheduler{
		posts:     posts,
		tracker:   tracker,
		publisher: publisher,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// RunBatch processes up to maxPosts queued posts whose retry_after has
// elapsed, created_at ascending. Posts beyond the first per owner are
// skipped and re-examined on the next batch.
func (s *Scheduler) RunBatch(ctx context.Context, maxPosts int) ([]Outcome, error) {
	if maxPosts <= 0 {
		maxPosts = DefaultBatchSize
	}
	queued, err := s.posts.ListPublishablePosts(ctx, s.now(), maxPosts)
	if err != nil {
		return nil, errors.Wrap(err, "fail to list publishable posts")
	}

	var outcomes []Outcome
	ownersProcessed := make(map[string]bool)
	calls := 0
	for _, post := range queued {
		if ownersProcessed[post.OwnerId] {
			outcomes = append(outcomes, Outcome{
				PostId:  post.Id,
				OwnerId: post.OwnerId,
				Kind:    OutcomeSkipped,
				Message: "another post for this owner was already published in this batch",
			})
			continue
		}
		ownersProcessed[post.OwnerId] = true

		if calls > 0 {
			s.sleep(interCallDelay)
		}
		calls++
		outcomes = append(outcomes, s.publishOne(ctx, post))
	}
	return outcomes, nil
}

func (s *Scheduler) publishOne(ctx context.Context, post *model.Post) Outcome {
	decision, err := s.tracker.CheckBudget(ctx, post.OwnerId, ratelimit.EndpointTweet)
	if err != nil {
		Logger.Log.Warnf("fail to check tweet budget for owner %s: %s", post.OwnerId, err)
	} else if !decision.Allowed {
		return s.deferForRateLimit(ctx, post, s.now().Add(decision.Wait))
	}

	publishedId, err := s.publisher.Publish(ctx, formatPostText(post))
	if err != nil {
		return s.handlePublishError(ctx, post, err)
	}

	post.Status = model.PostStatusPosted
	post.PublishedPostId = &publishedId
	post.ErrorMessage = nil
	post.RetryAfter = nil
	s.persist(ctx, post)
	return Outcome{PostId: post.Id, OwnerId: post.OwnerId, Kind: OutcomePosted}
}

func (s *Scheduler) handlePublishError(ctx context.Context, post *model.Post, err error) Outcome {
	publishErr, ok := providers.AsPublishError(err)
	if !ok {
		publishErr = providers.NewOtherPublishError(err.Error())
	}

	switch publishErr.Kind {
	case providers.PublishDuplicate:
		// The exact text is already out there, so the goal state is reached.
		// Normalize to success with a visible warning, never retry.
		warning := "already published, marking as posted"
		post.Status = model.PostStatusPosted
		post.ErrorMessage = &warning
		post.RetryAfter = nil
		s.persist(ctx, post)
		return Outcome{PostId: post.Id, OwnerId: post.OwnerId, Kind: OutcomePosted, Message: warning}

	case providers.PublishRateLimited:
		s.tracker.RecordUsage(ctx, post.OwnerId, ratelimit.EndpointTweet,
			0, publishErr.Limit, publishErr.ResetAt)
		return s.deferForRateLimit(ctx, post, publishErr.ResetAt)

	case providers.PublishPermission:
		return s.fail(ctx, post, publishErr.Message)

	default:
		return s.fail(ctx, post, publishErr.Message)
	}
}

// deferForRateLimit keeps the post queued with retry_after set so it is
// excluded from selection until the window resets.
func (s *Scheduler) deferForRateLimit(ctx context.Context, post *model.Post, resetAt time.Time) Outcome {
	waitMinutes := int(math.Ceil(resetAt.Sub(s.now()).Minutes()))
	message := fmt.Sprintf("Rate limit exceeded. Please try again in %d minutes.", waitMinutes)

	post.Status = model.PostStatusQueued
	post.RetryAfter = &resetAt
	post.ErrorMessage = &message
	s.persist(ctx, post)
	return Outcome{PostId: post.Id, OwnerId: post.OwnerId, Kind: OutcomeRateLimited, Message: message}
}

func (s *Scheduler) fail(ctx context.Context, post *model.Post, message string) Outcome {
	post.Status = model.PostStatusFailed
	post.ErrorMessage = &message
	post.RetryAfter = nil
	s.persist(ctx, post)
	return Outcome{PostId: post.Id, OwnerId: post.OwnerId, Kind: OutcomeFailed, Message: message}
}

// persist writes the post state best-effort. An unconfirmed write leaves the
// post in unknown state, the next batch re-derives everything from the store.
func (s *Scheduler) persist(ctx context.Context, post *model.Post) {
	if err := s.posts.UpdatePost(ctx, post); err != nil {
		Logger.Log.Errorf("fail to persist post %s after publish attempt: %s", post.Id, err)
	}
}
