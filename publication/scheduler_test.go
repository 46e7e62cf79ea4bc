package publication

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/store"
)

type fakePublisher struct {
	err         error
	nextId      string
	publishedAs []string
}

func (f *fakePublisher) Publish(ctx context.Context, text string) (string, error) {
	f.publishedAs = append(f.publishedAs, text)
	if f.err != nil {
		return "", f.err
	}
	return f.nextId, nil
}

func newTestScheduler(publisher providers.Publisher) (*Scheduler, *store.FakeStore, time.Time) {
	fakeStore := store.NewFakeStore()
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	scheduler := NewScheduler(fakeStore, ratelimit.NewTracker(fakeStore), publisher)
	scheduler.now = func() time.Time { return now }
	scheduler.sleep = func(time.Duration) {}
	return scheduler, fakeStore, now
}

func queuedPost(id string, ownerId string, createdAt time.Time) *model.Post {
	translated := "translated " + id
	return &model.Post{
		Id:             id,
		OwnerId:        ownerId,
		SourcePostId:   "src-" + id,
		OriginalText:   "original " + id,
		TranslatedText: &translated,
		Status:         model.PostStatusQueued,
		CreatedAt:      createdAt,
	}
}

func TestRunBatchPublishesOldestFirst(t *testing.T) {
	publisher := &fakePublisher{nextId: "ext-1"}
	scheduler, fakeStore, now := newTestScheduler(publisher)
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{
		queuedPost("p2", "u2", now.Add(-time.Hour)),
		queuedPost("p1", "u1", now.Add(-2*time.Hour)),
	}))

	outcomes, err := scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "p1", outcomes[0].PostId)
	assert.Equal(t, OutcomePosted, outcomes[0].Kind)
	assert.Equal(t, OutcomePosted, outcomes[1].Kind)

	post, err := fakeStore.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusPosted, post.Status)
	require.NotNil(t, post.PublishedPostId)
	assert.Equal(t, "ext-1", *post.PublishedPostId)
}

func TestRunBatchFairnessOnePostPerOwner(t *testing.T) {
	publisher := &fakePublisher{nextId: "ext-1"}
	scheduler, fakeStore, now := newTestScheduler(publisher)
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{
		queuedPost("p1", "u1", now.Add(-3*time.Hour)),
		queuedPost("p2", "u1", now.Add(-2*time.Hour)),
		queuedPost("p3", "u1", now.Add(-time.Hour)),
	}))

	outcomes, err := scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, OutcomePosted, outcomes[0].Kind)
	assert.Equal(t, OutcomeSkipped, outcomes[1].Kind)
	assert.Equal(t, OutcomeSkipped, outcomes[2].Kind)
	assert.Len(t, publisher.publishedAs, 1)

	for _, id := range []string{"p2", "p3"} {
		post, err := fakeStore.GetPost(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.PostStatusQueued, post.Status)
	}
}

func TestRunBatchRateLimitKeepsPostQueued(t *testing.T) {
	resetAt := time.Date(2023, 5, 1, 12, 15, 0, 0, time.UTC)
	publisher := &fakePublisher{err: providers.NewPublishRateLimitError(resetAt, 50)}
	scheduler, fakeStore, now := newTestScheduler(publisher)
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{
		queuedPost("p1", "u1", now.Add(-time.Hour)),
	}))

	outcomes, err := scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeRateLimited, outcomes[0].Kind)

	post, err := fakeStore.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusQueued, post.Status)
	require.NotNil(t, post.RetryAfter)
	assert.Equal(t, resetAt, *post.RetryAfter)
	require.NotNil(t, post.ErrorMessage)
	assert.Contains(t, *post.ErrorMessage, "15 minutes")

	// Excluded from the immediate next batch until the window resets.
	outcomes, err = scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	// The provider window is recorded for the owner.
	record, err := fakeStore.GetRateLimit(context.Background(), "u1", ratelimit.EndpointTweet)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 0, record.Remaining)
}

func TestRunBatchDuplicateContentIsSuccess(t *testing.T) {
	publisher := &fakePublisher{err: providers.NewDuplicateContentError()}
	scheduler, fakeStore, now := newTestScheduler(publisher)
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{
		queuedPost("p1", "u1", now.Add(-time.Hour)),
	}))

	outcomes, err := scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomePosted, outcomes[0].Kind)
	assert.NotEmpty(t, outcomes[0].Message)

	post, err := fakeStore.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusPosted, post.Status)
	assert.Nil(t, post.PublishedPostId)
}

func TestRunBatchPermissionErrorIsTerminal(t *testing.T) {
	publisher := &fakePublisher{err: providers.NewPermissionError("API permission error. Please check your API access level.")}
	scheduler, fakeStore, now := newTestScheduler(publisher)
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{
		queuedPost("p1", "u1", now.Add(-time.Hour)),
	}))

	outcomes, err := scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, OutcomeFailed, outcomes[0].Kind)

	post, err := fakeStore.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusFailed, post.Status)
}

func TestRunBatchAppendsMediaReference(t *testing.T) {
	publisher := &fakePublisher{nextId: "ext-1"}
	scheduler, fakeStore, now := newTestScheduler(publisher)

	post := queuedPost("p1", "u1", now.Add(-time.Hour))
	require.NoError(t, post.SetMedia([]model.MediaAttachment{
		{Kind: "photo", Url: "https://img/1.jpg"},
	}))
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{post}))

	_, err := scheduler.RunBatch(context.Background(), DefaultBatchSize)
	require.NoError(t, err)

	require.Len(t, publisher.publishedAs, 1)
	assert.True(t, strings.HasPrefix(publisher.publishedAs[0], "translated p1"))
	assert.Contains(t, publisher.publishedAs[0], "View 1 media: https://twitter.com/i/status/src-p1")
}
