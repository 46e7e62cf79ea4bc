package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tweetbridge/tweetbridge/model"
)

// FakeStore is an in-memory implementation of PostStore, ConfigStore and
// RateLimitStore used in tests and local development.
type FakeStore struct {
	mu         sync.Mutex
	posts      map[string]*model.Post
	configs    map[string]*model.MonitoringConfig
	rateLimits map[string]*model.RateLimitRecord

	// When non-nil, every write returns this error. Used to exercise the
	// persistence failure paths.
	WriteErr error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		posts:      make(map[string]*model.Post),
		configs:    make(map[string]*model.MonitoringConfig),
		rateLimits: make(map[string]*model.RateLimitRecord),
	}
}

func rateLimitKey(ownerId, endpoint string) string {
	return ownerId + "__" + endpoint
}

func copyPost(post *model.Post) *model.Post {
	clone := *post
	return &clone
}

func (s *FakeStore) InsertPosts(ctx context.Context, posts []*model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	for _, post := range posts {
		if s.hasSourceId(post.OwnerId, post.SourcePostId) {
			continue
		}
		if post.Id == "" {
			post.Id = uuid.New().String()
		}
		s.posts[post.Id] = copyPost(post)
	}
	return nil
}

func (s *FakeStore) hasSourceId(ownerId, sourceId string) bool {
	for _, post := range s.posts {
		if post.OwnerId == ownerId && post.SourcePostId == sourceId {
			return true
		}
	}
	return false
}

func (s *FakeStore) UpdatePost(ctx context.Context, post *model.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	if _, ok := s.posts[post.Id]; !ok {
		return ErrNotFound
	}
	s.posts[post.Id] = copyPost(post)
	return nil
}

func (s *FakeStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPost(post), nil
}

func (s *FakeStore) ListOwnerPostsByStatus(ctx context.Context, ownerId string, status model.PostStatus) ([]*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var posts []*model.Post
	for _, post := range s.posts {
		if post.OwnerId == ownerId && post.Status == status {
			posts = append(posts, copyPost(post))
		}
	}
	sortPostsByCreatedAt(posts)
	return posts, nil
}

func (s *FakeStore) ListPublishablePosts(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var posts []*model.Post
	for _, post := range s.posts {
		if post.Status != model.PostStatusQueued {
			continue
		}
		if post.RetryAfter != nil && post.RetryAfter.After(now) {
			continue
		}
		posts = append(posts, copyPost(post))
	}
	sortPostsByCreatedAt(posts)
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (s *FakeStore) ExistingSourceIds(ctx context.Context, ownerId string, sourceIds []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make(map[string]bool)
	for _, id := range sourceIds {
		candidates[id] = true
	}
	existing := make(map[string]bool)
	for _, post := range s.posts {
		if post.OwnerId == ownerId && candidates[post.SourcePostId] {
			existing[post.SourcePostId] = true
		}
	}
	return existing, nil
}

func (s *FakeStore) ResolveThreadPositions(ctx context.Context, ownerId string, threadId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	var posts []*model.Post
	for _, post := range s.posts {
		if post.OwnerId == ownerId && post.ThreadId != nil && *post.ThreadId == threadId {
			posts = append(posts, post)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].SourcePostId < posts[j].SourcePostId
	})
	for i, post := range posts {
		position := int32(i)
		post.ThreadPosition = &position
	}
	return nil
}

func (s *FakeStore) GetConfig(ctx context.Context, ownerId string) (*model.MonitoringConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	config, ok := s.configs[ownerId]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *config
	return &clone, nil
}

func (s *FakeStore) UpsertConfig(ctx context.Context, config *model.MonitoringConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	clone := *config
	s.configs[config.OwnerId] = &clone
	return nil
}

func (s *FakeStore) ListConfigs(ctx context.Context) ([]*model.MonitoringConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var configs []*model.MonitoringConfig
	for _, config := range s.configs {
		clone := *config
		configs = append(configs, &clone)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].OwnerId < configs[j].OwnerId })
	return configs, nil
}

func (s *FakeStore) ListActiveConfigs(ctx context.Context) ([]*model.MonitoringConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var configs []*model.MonitoringConfig
	for _, config := range s.configs {
		if config.AutoMode {
			clone := *config
			configs = append(configs, &clone)
		}
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].OwnerId < configs[j].OwnerId })
	return configs, nil
}

func (s *FakeStore) GetRateLimit(ctx context.Context, ownerId string, endpoint string) (*model.RateLimitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.rateLimits[rateLimitKey(ownerId, endpoint)]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *FakeStore) UpsertRateLimit(ctx context.Context, record *model.RateLimitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	clone := *record
	s.rateLimits[rateLimitKey(record.OwnerId, record.Endpoint)] = &clone
	return nil
}

func (s *FakeStore) DeleteRateLimit(ctx context.Context, ownerId string, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	delete(s.rateLimits, rateLimitKey(ownerId, endpoint))
	return nil
}

func sortPostsByCreatedAt(posts []*model.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.Before(posts[j].CreatedAt)
		}
		return posts[i].SourcePostId < posts[j].SourcePostId
	})
}
