package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tweetbridge/tweetbridge/ingestion"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/publication"
	"github.com/tweetbridge/tweetbridge/ratelimit"
	"github.com/tweetbridge/tweetbridge/store"
	"github.com/tweetbridge/tweetbridge/translation"
)

type stubTimeline struct {
	response *providers.TimelineResponse
}

func (s *stubTimeline) ListRecentPosts(ctx context.Context, accountHandle string, sinceCursor string, maxResults int) (*providers.TimelineResponse, error) {
	return s.response, nil
}

type stubTranslator struct{}

func (s *stubTranslator) Translate(ctx context.Context, text string, targetLanguageCode string) (string, error) {
	return "translated " + text, nil
}

type stubPublisher struct{}

func (s *stubPublisher) Publish(ctx context.Context, text string) (string, error) {
	return "ext-1", nil
}

func newTestRouter(t *testing.T, fakeStore *store.FakeStore, timeline providers.Timeline) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tracker := ratelimit.NewTracker(fakeStore)
	handler := &PipelineHandler{
		Configs:   fakeStore,
		Fetcher:   ingestion.NewFetcher(fakeStore, fakeStore, tracker, timeline),
		Stage:     translation.NewStage(fakeStore, fakeStore, &stubTranslator{}),
		Scheduler: publication.NewScheduler(fakeStore, tracker, &stubPublisher{}),
	}

	router := gin.New()
	RegisterTriggerRoutes(router.Group("/"), handler)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest("POST", path, &body)
	require.NoError(t, err)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

// A manual-mode owner has no daemon working for them, the trigger endpoints
// must cover every configuration, not just the auto-mode ones.
func TestTriggerEndpointsServeManualModeOwner(t *testing.T) {
	fakeStore := store.NewFakeStore()
	require.NoError(t, fakeStore.UpsertConfig(context.Background(), &model.MonitoringConfig{
		OwnerId:        "u1",
		SourceAccount:  "rnr",
		TargetLanguage: "es",
		AutoMode:       false,
	}))

	timeline := &stubTimeline{response: &providers.TimelineResponse{
		Posts: []providers.RawPost{{
			Id:             "101",
			Text:           "Hello",
			CreatedAt:      time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
			AuthorId:       "a1",
			ConversationId: "101",
		}},
		Media: map[string]providers.Media{},
	}}
	router := newTestRouter(t, fakeStore, timeline)

	recorder := postJSON(t, router, "/ingest", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	pending, err := fakeStore.ListOwnerPostsByStatus(context.Background(), "u1", model.PostStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	recorder = postJSON(t, router, "/translate", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	post, err := fakeStore.GetPost(context.Background(), pending[0].Id)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusTranslated, post.Status)

	recorder = postJSON(t, router, "/queue", gin.H{"owner_id": "u1", "post_id": post.Id})
	require.Equal(t, http.StatusOK, recorder.Code)

	post, err = fakeStore.GetPost(context.Background(), post.Id)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusQueued, post.Status)
}

func TestQueueRejectsForeignOwner(t *testing.T) {
	fakeStore := store.NewFakeStore()
	require.NoError(t, fakeStore.UpsertConfig(context.Background(), &model.MonitoringConfig{
		OwnerId:        "u1",
		SourceAccount:  "rnr",
		TargetLanguage: "es",
	}))
	require.NoError(t, fakeStore.InsertPosts(context.Background(), []*model.Post{{
		Id:           "p1",
		OwnerId:      "u1",
		SourcePostId: "101",
		Status:       model.PostStatusTranslated,
	}}))
	router := newTestRouter(t, fakeStore, &stubTimeline{response: &providers.TimelineResponse{}})

	recorder := postJSON(t, router, "/queue", gin.H{"owner_id": "u2", "post_id": "p1"})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
