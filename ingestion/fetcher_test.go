package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/store"
)

type fakeTimeline struct {
	response *providers.TimelineResponse
	err      error
	calls    int
	cursors  []string
}

func (f *fakeTimeline) ListRecentPosts(ctx context.Context, accountHandle string, sinceCursor string, maxResults int) (*providers.TimelineResponse, error) {
	f.calls++
	f.cursors = append(f.cursors, sinceCursor)
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func newTestFetcher(t *testing.T, timeline providers.Timeline) (*Fetcher, *store.FakeStore) {
	t.Helper()
	fakeStore := store.NewFakeStore()
	require.NoError(t, fakeStore.UpsertConfig(context.Background(), &model.MonitoringConfig{
		OwnerId:        "u1",
		SourceAccount:  "rnr",
		TargetLanguage: "es",
		Cursor:         "100",
		AutoMode:       true,
	}))
	fetcher := NewFetcher(fakeStore, fakeStore, ratelimit.NewTracker(fakeStore), timeline)
	return fetcher, fakeStore
}

func timelineWith(posts ...providers.RawPost) *providers.TimelineResponse {
	return &providers.TimelineResponse{Posts: posts, Media: map[string]providers.Media{}}
}

func TestFetchNewPostsConfigurationMissing(t *testing.T) {
	fetcher, _ := newTestFetcher(t, &fakeTimeline{response: timelineWith()})

	_, err := fetcher.FetchNewPosts(context.Background(), "nobody")
	assert.True(t, errors.Is(err, ErrConfigurationMissing))
}

func TestFetchNewPostsInsertsAndAdvancesCursor(t *testing.T) {
	timeline := &fakeTimeline{response: timelineWith(rawPost("101", "a1"), rawPost("103", "a1"), rawPost("102", "a1"))}
	fetcher, fakeStore := newTestFetcher(t, timeline)

	result, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.FetchedCount)
	assert.Equal(t, 3, result.InsertedCount)

	config, err := fakeStore.GetConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "103", config.Cursor)
	assert.Equal(t, []string{"100"}, timeline.cursors)
}

func TestFetchNewPostsIdempotentRefetch(t *testing.T) {
	timeline := &fakeTimeline{response: timelineWith(rawPost("101", "a1"))}
	fetcher, fakeStore := newTestFetcher(t, timeline)

	_, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)
	result, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.InsertedCount)

	pending, err := fakeStore.ListOwnerPostsByStatus(context.Background(), "u1", model.PostStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestFetchNewPostsAdvancesCursorOverFilteredPosts(t *testing.T) {
	// A page of pure retweets inserts nothing, but the cursor must still move
	// past it so the window is never re-scanned.
	retweet := rawPost("105", "a1")
	retweet.References = []providers.PostReference{{Type: providers.ReferenceRetweeted, Id: "9"}}
	timeline := &fakeTimeline{response: timelineWith(retweet)}
	fetcher, fakeStore := newTestFetcher(t, timeline)

	result, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.InsertedCount)

	config, err := fakeStore.GetConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "105", config.Cursor)
}

func TestFetchNewPostsBlockedByLocalBudget(t *testing.T) {
	timeline := &fakeTimeline{response: timelineWith(rawPost("101", "a1"))}
	fetcher, fakeStore := newTestFetcher(t, timeline)
	require.NoError(t, fakeStore.UpsertRateLimit(context.Background(), &model.RateLimitRecord{
		OwnerId:   "u1",
		Endpoint:  ratelimit.EndpointTimeline,
		Remaining: 0,
		Limit:     15,
		ResetAt:   time.Now().Add(10 * time.Minute),
	}))

	result, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, result.RateLimited)
	assert.True(t, result.Wait > 0)
	assert.Equal(t, 0, timeline.calls)
}

func TestFetchNewPostsProviderRateLimit(t *testing.T) {
	resetAt := time.Now().Add(15 * time.Minute)
	timeline := &fakeTimeline{err: &providers.RateLimitError{
		RateLimit: providers.RateLimit{Remaining: 0, Limit: 15, ResetAt: resetAt},
	}}
	fetcher, fakeStore := newTestFetcher(t, timeline)

	result, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, result.RateLimited)

	// The window is recorded so the next run short-circuits locally, and the
	// cursor is untouched.
	record, err := fakeStore.GetRateLimit(context.Background(), "u1", ratelimit.EndpointTimeline)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 0, record.Remaining)

	config, err := fakeStore.GetConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "100", config.Cursor)
}

func TestFetchNewPostsProviderErrorLeavesCursor(t *testing.T) {
	timeline := &fakeTimeline{err: errors.New("connection reset")}
	fetcher, fakeStore := newTestFetcher(t, timeline)

	_, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.Error(t, err)

	config, err := fakeStore.GetConfig(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "100", config.Cursor)
}

func TestFetchNewPostsResolvesThreadPositions(t *testing.T) {
	first := rawPost("101", "a1")
	first.References = []providers.PostReference{{Type: providers.ReferenceRepliedTo, Id: "90"}}
	first.InReplyToUserId = "a1"
	first.ConversationId = "90"
	first.CreatedAt = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	second := rawPost("102", "a1")
	second.References = []providers.PostReference{{Type: providers.ReferenceRepliedTo, Id: "101"}}
	second.InReplyToUserId = "a1"
	second.ConversationId = "90"
	second.CreatedAt = time.Date(2023, 5, 1, 12, 1, 0, 0, time.UTC)

	timeline := &fakeTimeline{response: timelineWith(second, first)}
	fetcher, fakeStore := newTestFetcher(t, timeline)

	_, err := fetcher.FetchNewPosts(context.Background(), "u1")
	require.NoError(t, err)

	pending, err := fakeStore.ListOwnerPostsByStatus(context.Background(), "u1", model.PostStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.NotNil(t, pending[0].ThreadPosition)
	require.NotNil(t, pending[1].ThreadPosition)
	assert.Equal(t, int32(0), *pending[0].ThreadPosition)
	assert.Equal(t, "101", pending[0].SourcePostId)
	assert.Equal(t, int32(1), *pending[1].ThreadPosition)
}
