// Package translation drives pending posts through the translation provider
// and records the outcome on each post.
package translation

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tweetbridge/tweetbridge/model"
	"github.com/tweetbridge/tweetbridge/providers"
	"github.com/tweetbridge/tweetbridge/store"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

// Outcome is the per-post result of one translation run.
type Outcome struct {
	PostId  string           `json:"post_id"`
	Status  model.PostStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

// Stage translates an owner's pending posts sequentially. Posts are
// independent, one failure never blocks the rest of the run.
type Stage struct {
	posts      store.PostStore
	configs    store.ConfigStore
	translator providers.Translator
}

func NewStage(posts store.PostStore, configs store.ConfigStore, translator providers.Translator) *Stage {
	return &Stage{
		posts:      posts,
		configs:    configs,
		translator: translator,
	}
}

// TranslatePending processes every pending post of the owner. On success a
// post moves to translated, or directly to queued when the owner runs in
// auto mode. On any provider failure, including an empty result, the post
// moves to failed and is never auto-retried, a manual re-trigger is needed.
func (s *Stage) TranslatePending(ctx context.Context, ownerId string) ([]Outcome, error) {
	config, err := s.configs.GetConfig(ctx, ownerId)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.New("monitoring configuration missing")
	}
	if err != nil {
		return nil, errors.Wrap(err, "fail to load monitoring config")
	}

	pending, err := s.posts.ListOwnerPostsByStatus(ctx, ownerId, model.PostStatusPending)
	if err != nil {
		return nil, errors.Wrap(err, "fail to list pending posts")
	}

	var outcomes []Outcome
	for _, post := range pending {
		outcomes = append(outcomes, s.translateOne(ctx, config, post))
	}
	return outcomes, nil
}

func (s *Stage) translateOne(ctx context.Context, config *model.MonitoringConfig, post *model.Post) Outcome {
	// Mark the post in-flight first. If the process dies mid-call the post is
	// left visibly stuck in translating instead of silently pending.
	post.Status = model.PostStatusTranslating
	if err := s.posts.UpdatePost(ctx, post); err != nil {
		Logger.Log.Warnf("fail to mark post %s translating: %s", post.Id, err)
	}

	translated, err := s.translator.Translate(ctx, post.OriginalText, config.TargetLanguage)
	if err != nil {
		message := err.Error()
		post.Status = model.PostStatusFailed
		post.ErrorMessage = &message
		if updateErr := s.posts.UpdatePost(ctx, post); updateErr != nil {
			Logger.Log.Errorf("fail to persist failed translation for post %s: %s", post.Id, updateErr)
		}
		return Outcome{PostId: post.Id, Status: post.Status, Message: message}
	}

	post.TranslatedText = &translated
	post.Status = model.PostStatusTranslated
	if config.AutoMode {
		post.Status = model.PostStatusQueued
	}
	post.ErrorMessage = nil
	if err := s.posts.UpdatePost(ctx, post); err != nil {
		// The in-memory outcome is still reported, but an unconfirmed write
		// means unknown state, the next run re-derives it from the store.
		Logger.Log.Errorf("fail to persist translation for post %s: %s", post.Id, err)
	}
	return Outcome{PostId: post.Id, Status: post.Status}
}

// QueuePost moves one translated post into the publication queue. Used by
// owners who review translations instead of running in auto mode.
func (s *Stage) QueuePost(ctx context.Context, ownerId string, postId string) (*Outcome, error) {
	post, err := s.posts.GetPost(ctx, postId)
	if err != nil {
		return nil, err
	}
	if post.OwnerId != ownerId {
		return nil, store.ErrNotFound
	}
	if !model.CanTransition(post.Status, model.PostStatusQueued) || post.Status != model.PostStatusTranslated {
		return nil, errors.Errorf("post %s cannot be queued from status %s", postId, post.Status)
	}
	post.Status = model.PostStatusQueued
	if err := s.posts.UpdatePost(ctx, post); err != nil {
		return nil, errors.Wrapf(err, "fail to queue post %s", postId)
	}
	return &Outcome{PostId: post.Id, Status: post.Status}, nil
}
