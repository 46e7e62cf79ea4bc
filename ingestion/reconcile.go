// Package ingestion turns raw timeline pages into persisted pending posts:
// the reconciler filters and deduplicates a raw batch, the fetcher drives the
// timeline provider and advances the per-owner cursor.
package ingestion

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/store"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

// Reconciler decides which raw posts become new pending Post records.
type Reconciler struct {
	posts store.PostStore
}

func NewReconciler(posts store.PostStore) *Reconciler {
	return &Reconciler{posts: posts}
}

// Reconcile filters a raw batch down to the posts worth mirroring, drops the
// ones the owner already has, and returns new records ready for insertion,
// all with status pending. Re-running the same batch yields nothing, the
// bulk source id lookup makes re-fetches idempotent.
func (r *Reconciler) Reconcile(ctx context.Context, ownerId string, rawPosts []providers.RawPost, media map[string]providers.Media) ([]*model.Post, error) {
	var candidates []providers.RawPost
	for _, raw := range rawPosts {
		if shouldMirror(&raw) {
			candidates = append(candidates, raw)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sourceIds := make([]string, 0, len(candidates))
	for _, raw := range candidates {
		sourceIds = append(sourceIds, raw.Id)
	}
	existing, err := r.posts.ExistingSourceIds(ctx, ownerId, sourceIds)
	if err != nil {
		return nil, errors.Wrap(err, "fail to look up existing source ids")
	}

	var newPosts []*model.Post
	for _, raw := range candidates {
		if existing[raw.Id] {
			continue
		}
		post, err := buildPost(ownerId, &raw, media)
		if err != nil {
			return nil, err
		}
		newPosts = append(newPosts, post)
	}
	return newPosts, nil
}

// shouldMirror keeps a post when it stands on its own, quotes another post,
// or continues a thread by the same author. Retweets and replies to other
// accounts are not the monitored account's own content.
func shouldMirror(raw *providers.RawPost) bool {
	if raw.IsRetweet() {
		return false
	}
	if raw.IsQuote() {
		return true
	}
	if !raw.IsReply() {
		return true
	}
	return raw.InReplyToUserId == raw.AuthorId
}

// threadIdFor returns the conversation id for thread continuations, empty
// otherwise. Standalone posts carry no thread id even though the provider
// assigns them a conversation id equal to their own id.
func threadIdFor(raw *providers.RawPost) string {
	if raw.IsReply() && raw.InReplyToUserId == raw.AuthorId {
		return raw.ConversationId
	}
	return ""
}

func buildPost(ownerId string, raw *providers.RawPost, media map[string]providers.Media) (*model.Post, error) {
	post := &model.Post{
		OwnerId:         ownerId,
		SourcePostId:    raw.Id,
		OriginalText:    raw.Text,
		Status:          model.PostStatusPending,
		CreatedAt:       raw.CreatedAt,
		AuthorName:      raw.AuthorName,
		AuthorUsername:  raw.AuthorUsername,
		AuthorAvatarUrl: raw.AuthorAvatar,
	}
	if threadId := threadIdFor(raw); threadId != "" {
		post.ThreadId = &threadId
	}

	// Join media key references against the lookup map, preserving order.
	// A key the provider didn't resolve is dropped, missing media metadata
	// must never fail the whole post.
	var attachments []model.MediaAttachment
	for _, key := range raw.MediaKeys {
		resolved, ok := media[key]
		if !ok {
			Logger.Log.Debugln("dropping unresolved media key:", key)
			continue
		}
		attachments = append(attachments, model.MediaAttachment{
			Kind:    resolved.Kind,
			Url:     resolved.Url,
			AltText: resolved.AltText,
		})
	}
	if len(attachments) > 0 {
		if err := post.SetMedia(attachments); err != nil {
			return nil, errors.Wrapf(err, "fail to encode media for post %s", raw.Id)
		}
	}
	return post, nil
}
