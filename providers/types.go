// Package providers holds the external service boundary: the source timeline,
// the translation service and the publishing endpoint. Each is an interface
// plus one or more thin HTTP clients. All provider failure shapes are decoded
// into typed errors here, nothing downstream inspects raw responses.
package providers

import (
	"context"
	"time"
)

// ReferenceType classifies how a raw post points at another post.
type ReferenceType string

const (
	ReferenceRepliedTo ReferenceType = "replied_to"
	ReferenceQuoted    ReferenceType = "quoted"
	ReferenceRetweeted ReferenceType = "retweeted"
)

// PostReference is one referenced post entry on a raw post.
type PostReference struct {
	Type ReferenceType
	Id   string
}

// RawPost is one post as returned by the source timeline, before
// deduplication and thread reconstruction.
type RawPost struct {
	Id             string
	Text           string
	CreatedAt      time.Time
	AuthorId       string
	AuthorName     string
	AuthorUsername string
	AuthorAvatar   string
	// ConversationId is the id of the root post of the reply chain this post
	// belongs to. Equals Id for a standalone post.
	ConversationId string
	// InReplyToUserId is the author id of the post being replied to, empty
	// when the post is not a reply.
	InReplyToUserId string
	MediaKeys       []string
	References      []PostReference
}

// IsReply reports whether the post replies to another post.
func (p *RawPost) IsReply() bool {
	for _, ref := range p.References {
		if ref.Type == ReferenceRepliedTo {
			return true
		}
	}
	return false
}

// IsRetweet reports whether the post is a plain retweet.
func (p *RawPost) IsRetweet() bool {
	for _, ref := range p.References {
		if ref.Type == ReferenceRetweeted {
			return true
		}
	}
	return false
}

// IsQuote reports whether the post quotes another post.
func (p *RawPost) IsQuote() bool {
	for _, ref := range p.References {
		if ref.Type == ReferenceQuoted {
			return true
		}
	}
	return false
}

// Media is one media object referenced from raw posts by key.
type Media struct {
	Key     string
	Kind    string
	Url     string
	AltText string
}

// RateLimit is the quota metadata a provider reports alongside a response.
type RateLimit struct {
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// TimelineResponse is one page of recent posts with resolved media and
// optional rate limit metadata.
type TimelineResponse struct {
	Posts     []RawPost
	Media     map[string]Media
	RateLimit *RateLimit
}

// Timeline lists recent posts of an account, bounded below by sinceCursor
// (exclusive, an external post id) when non-empty.
type Timeline interface {
	ListRecentPosts(ctx context.Context, accountHandle string, sinceCursor string, maxResults int) (*TimelineResponse, error)
}

// Translator translates text into the target language.
type Translator interface {
	Translate(ctx context.Context, text string, targetLanguageCode string) (string, error)
}

// Publisher publishes text and returns the new external post id.
type Publisher interface {
	Publish(ctx context.Context, text string) (string, error)
}
