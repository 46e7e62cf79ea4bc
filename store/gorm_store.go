package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements PostStore, ConfigStore and RateLimitStore on top of
// gorm/postgres.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) InsertPosts(ctx context.Context, posts []*model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	for _, post := range posts {
		if post.Id == "" {
			post.Id = uuid.New().String()
		}
	}
	// The unique index on (owner_id, source_post_id) is the dedup key, a
	// conflicting insert means another run already stored the post.
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "source_post_id"}},
		DoNothing: true,
	}).Create(posts)
	return errors.Wrap(res.Error, "fail to insert post batch")
}

func (s *GormStore) UpdatePost(ctx context.Context, post *model.Post) error {
	res := s.DB.WithContext(ctx).Save(post)
	return errors.Wrapf(res.Error, "fail to update post %s", post.Id)
}

func (s *GormStore) GetPost(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	res := s.DB.WithContext(ctx).Where("id = ?", id).First(&post)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &post, nil
}

func (s *GormStore) ListOwnerPostsByStatus(ctx context.Context, ownerId string, status model.PostStatus) ([]*model.Post, error) {
	var posts []*model.Post
	res := s.DB.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerId, status).
		Order("created_at ASC").
		Find(&posts)
	return posts, res.Error
}

func (s *GormStore) ListPublishablePosts(ctx context.Context, now time.Time, limit int) ([]*model.Post, error) {
	var posts []*model.Post
	res := s.DB.WithContext(ctx).
		Where("status = ?", model.PostStatusQueued).
		Where("retry_after IS NULL OR retry_after <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&posts)
	return posts, res.Error
}

func (s *GormStore) ExistingSourceIds(ctx context.Context, ownerId string, sourceIds []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(sourceIds) == 0 {
		return existing, nil
	}
	var found []string
	res := s.DB.WithContext(ctx).Model(&model.Post{}).
		Where("owner_id = ? AND source_post_id IN ?", ownerId, sourceIds).
		Pluck("source_post_id", &found)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "fail to bulk query existing source ids")
	}
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

func (s *GormStore) ResolveThreadPositions(ctx context.Context, ownerId string, threadId string) error {
	var posts []*model.Post
	res := s.DB.WithContext(ctx).
		Where("owner_id = ? AND thread_id = ?", ownerId, threadId).
		Order("created_at ASC, source_post_id ASC").
		Find(&posts)
	if res.Error != nil {
		return res.Error
	}
	for i, post := range posts {
		position := int32(i)
		if post.ThreadPosition != nil && *post.ThreadPosition == position {
			continue
		}
		post.ThreadPosition = &position
		if err := s.DB.WithContext(ctx).Model(post).Update("thread_position", position).Error; err != nil {
			return errors.Wrapf(err, "fail to resolve thread position for post %s", post.Id)
		}
	}
	return nil
}

func (s *GormStore) GetConfig(ctx context.Context, ownerId string) (*model.MonitoringConfig, error) {
	var config model.MonitoringConfig
	res := s.DB.WithContext(ctx).Where("owner_id = ?", ownerId).First(&config)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &config, nil
}

func (s *GormStore) UpsertConfig(ctx context.Context, config *model.MonitoringConfig) error {
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}},
		UpdateAll: true,
	}).Create(config)
	return errors.Wrapf(res.Error, "fail to upsert config for owner %s", config.OwnerId)
}

func (s *GormStore) ListConfigs(ctx context.Context) ([]*model.MonitoringConfig, error) {
	var configs []*model.MonitoringConfig
	res := s.DB.WithContext(ctx).Find(&configs)
	return configs, res.Error
}

func (s *GormStore) ListActiveConfigs(ctx context.Context) ([]*model.MonitoringConfig, error) {
	var configs []*model.MonitoringConfig
	res := s.DB.WithContext(ctx).Where("auto_mode = ?", true).Find(&configs)
	return configs, res.Error
}

func (s *GormStore) GetRateLimit(ctx context.Context, ownerId string, endpoint string) (*model.RateLimitRecord, error) {
	var record model.RateLimitRecord
	res := s.DB.WithContext(ctx).
		Where("owner_id = ? AND endpoint = ?", ownerId, endpoint).
		First(&record)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &record, nil
}

func (s *GormStore) UpsertRateLimit(ctx context.Context, record *model.RateLimitRecord) error {
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "endpoint"}},
		UpdateAll: true,
	}).Create(record)
	return errors.Wrapf(res.Error, "fail to upsert rate limit for owner %s endpoint %s", record.OwnerId, record.Endpoint)
}

func (s *GormStore) DeleteRateLimit(ctx context.Context, ownerId string, endpoint string) error {
	res := s.DB.WithContext(ctx).
		Where("owner_id = ? AND endpoint = ?", ownerId, endpoint).
		Delete(&model.RateLimitRecord{})
	return res.Error
}
