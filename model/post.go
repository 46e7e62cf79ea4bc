package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

/*

Post is one source tweet together with its translation/publication lifecycle.

Id: primary key, assigned by the store (uuid v4) at insertion
CreatedAt: creation time of the source tweet, not of the row. The publication
	scheduler orders by this field so that older tweets are published first.
UpdatedAt: time of the last lifecycle mutation

OwnerId: the user who configured monitoring, "belongs-to" relation
SourcePostId: immutable external tweet id. Unique per owner, this pair is the
	dedup key for ingestion.
OriginalText: tweet text as fetched
TranslatedText: set iff the post passed the translation stage
Status: lifecycle state, see CanTransition for the full machine
ErrorMessage: last failure or warning in human readable form
PublishedPostId: id of the republished tweet, set iff Status is posted
RetryAfter: when set and in the future, the publication scheduler must not
	select this post
MediaAttachments: ordered JSON array of MediaAttachment captured at ingestion
ThreadId: conversation id when the post continues a same-author thread
ThreadPosition: ordering key inside the thread, resolved from CreatedAt once
	persisted (ties broken by SourcePostId ascending)

AuthorName / AuthorUsername / AuthorAvatarUrl: display metadata of the tweet
	author captured at ingestion time
*/

type Post struct {
	Id               string `gorm:"primaryKey"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	OwnerId          string `gorm:"uniqueIndex:idx_posts_owner_source"`
	SourcePostId     string `gorm:"uniqueIndex:idx_posts_owner_source"`
	OriginalText     string
	TranslatedText   *string
	Status           PostStatus `gorm:"index"`
	ErrorMessage     *string
	PublishedPostId  *string
	RetryAfter       *time.Time
	MediaAttachments datatypes.JSON
	ThreadId         *string
	ThreadPosition   *int32
	AuthorName       string
	AuthorUsername   string
	AuthorAvatarUrl  string
}

// MediaAttachment is one pre-hosted media item referenced by a post.
type MediaAttachment struct {
	Kind    string `json:"kind"`
	Url     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// Media decodes the MediaAttachments JSON column. A nil column decodes to an
// empty slice.
func (p *Post) Media() ([]MediaAttachment, error) {
	if len(p.MediaAttachments) == 0 {
		return []MediaAttachment{}, nil
	}
	var media []MediaAttachment
	if err := json.Unmarshal(p.MediaAttachments, &media); err != nil {
		return nil, err
	}
	return media, nil
}

// SetMedia encodes media into the MediaAttachments JSON column, preserving
// order.
func (p *Post) SetMedia(media []MediaAttachment) error {
	bytes, err := json.Marshal(media)
	if err != nil {
		return err
	}
	p.MediaAttachments = datatypes.JSON(bytes)
	return nil
}
