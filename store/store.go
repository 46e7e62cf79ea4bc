// Package store defines the persistence boundary of the pipeline. Every
// pipeline stage talks to these interfaces only, so that tests can inject the
// in-memory fake and production can pick gorm/postgres (posts, configs) and
// optionally redis (rate limits).
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// PostStore persists posts and the lifecycle mutations applied to them. All
// updates are scoped to a single post row, no cross-post transaction is ever
// required.
type PostStore interface {
	// InsertPosts inserts a batch of new posts. Ids are assigned by the store
	// when empty. Conflicts on (owner_id, source_post_id) are ignored so a
	// re-run of the same batch is a no-op.
	InsertPosts(ctx context.Context, posts []*model.Post) error

	// UpdatePost persists the current state of a single post by id.
	UpdatePost(ctx context.Context, post *model.Post) error

	// GetPost fetches one post by id, ErrNotFound when missing.
	GetPost(ctx context.Context, id string) (*model.Post, error)

	// ListOwnerPostsByStatus returns the owner's posts in the given status,
	// created_at ascending.
	ListOwnerPostsByStatus(ctx context.Context, ownerId string, status model.PostStatus) ([]*model.Post, error)

	// ListPublishablePosts returns queued posts whose retry_after is unset or
	// has elapsed, created_at ascending, capped at limit.
	ListPublishablePosts(ctx context.Context, now time.Time, limit int) ([]*model.Post, error)

	// ExistingSourceIds returns, among the candidate source post ids, the set
	// the owner already has, in one bulk query.
	ExistingSourceIds(ctx context.Context, ownerId string, sourceIds []string) (map[string]bool, error)

	// ResolveThreadPositions recomputes thread_position for all posts of a
	// thread, ordered by created_at, ties broken by source post id ascending.
	ResolveThreadPositions(ctx context.Context, ownerId string, threadId string) error
}

// ConfigStore persists per-owner monitoring configurations.
type ConfigStore interface {
	// GetConfig fetches the owner's config, ErrNotFound when missing.
	GetConfig(ctx context.Context, ownerId string) (*model.MonitoringConfig, error)

	// UpsertConfig creates or replaces the owner's config.
	UpsertConfig(ctx context.Context, config *model.MonitoringConfig) error

	// ListConfigs returns every saved config.
	ListConfigs(ctx context.Context) ([]*model.MonitoringConfig, error)

	// ListActiveConfigs returns all configs with auto mode enabled.
	ListActiveConfigs(ctx context.Context) ([]*model.MonitoringConfig, error)
}

// RateLimitStore persists the last known provider quota per (owner, endpoint).
type RateLimitStore interface {
	// GetRateLimit returns the record, or (nil, nil) when absent.
	GetRateLimit(ctx context.Context, ownerId string, endpoint string) (*model.RateLimitRecord, error)

	// UpsertRateLimit creates or replaces the record, latest call wins.
	UpsertRateLimit(ctx context.Context, record *model.RateLimitRecord) error

	// DeleteRateLimit removes the record. Deleting an absent record is not an
	// error.
	DeleteRateLimit(ctx context.Context, ownerId string, endpoint string) error
}
