package providers

import (
	"context"

	twitterscraper "github.com/n0madic/twitter-scraper"
	"github.com/pkg/errors"
)

// ScraperTimeline implements Timeline with the keyless twitter scraper. It is
// the fallback for owners without API credentials. The scraper reports no
// quota metadata, so responses carry a nil RateLimit and budget tracking for
// this provider relies purely on the publish side.
type ScraperTimeline struct {
	scraper *twitterscraper.Scraper

	// Caches the static profile lookup per username, fetching it repeatedly
	// introduces extreme latency.
	profileCache map[string]*twitterscraper.Profile
}

func NewScraperTimeline() *ScraperTimeline {
	return &ScraperTimeline{
		scraper:      twitterscraper.New(),
		profileCache: make(map[string]*twitterscraper.Profile),
	}
}

func (s *ScraperTimeline) ListRecentPosts(ctx context.Context, accountHandle string, sinceCursor string, maxResults int) (*TimelineResponse, error) {
	if maxResults > maxPageSize {
		maxResults = maxPageSize
	}
	tweets, _, err := s.scraper.FetchTweets(accountHandle, maxResults, "")
	if err != nil {
		return nil, errors.Wrapf(err, "fail to scrape tweets for %s", accountHandle)
	}

	response := &TimelineResponse{Media: make(map[string]Media)}
	for _, tweet := range tweets {
		// Pinned tweets are returned first regardless of age and would stall
		// the cursor if treated as the newest post.
		if tweet.IsPin {
			continue
		}
		if sinceCursor != "" && ComparePostIds(tweet.ID, sinceCursor) <= 0 {
			continue
		}
		post, err := s.convertTweet(tweet, response)
		if err != nil {
			return nil, err
		}
		response.Posts = append(response.Posts, *post)
	}
	return response, nil
}

func (s *ScraperTimeline) convertTweet(tweet *twitterscraper.Tweet, response *TimelineResponse) (*RawPost, error) {
	profile, err := s.getUserProfile(tweet.Username)
	if err != nil {
		return nil, err
	}

	post := &RawPost{
		Id:             tweet.ID,
		Text:           tweet.Text,
		CreatedAt:      tweet.TimeParsed,
		AuthorId:       tweet.UserID,
		AuthorName:     profile.Name,
		AuthorUsername: tweet.Username,
		AuthorAvatar:   profile.Avatar,
		ConversationId: conversationRootId(tweet),
	}
	if tweet.IsReply && tweet.InReplyToStatus != nil {
		post.References = append(post.References, PostReference{
			Type: ReferenceRepliedTo,
			Id:   tweet.InReplyToStatus.ID,
		})
		post.InReplyToUserId = tweet.InReplyToStatus.UserID
	}
	if tweet.IsRetweet && tweet.RetweetedStatus != nil {
		post.References = append(post.References, PostReference{
			Type: ReferenceRetweeted,
			Id:   tweet.RetweetedStatus.ID,
		})
	}
	if tweet.IsQuoted && tweet.QuotedStatus != nil {
		post.References = append(post.References, PostReference{
			Type: ReferenceQuoted,
			Id:   tweet.QuotedStatus.ID,
		})
	}

	// The scraper resolves photos to direct urls already, key them by url so
	// the media join downstream stays uniform with the API client.
	for _, photoUrl := range tweet.Photos {
		post.MediaKeys = append(post.MediaKeys, photoUrl)
		response.Media[photoUrl] = Media{Key: photoUrl, Kind: "photo", Url: photoUrl}
	}
	return post, nil
}

func (s *ScraperTimeline) getUserProfile(username string) (*twitterscraper.Profile, error) {
	if profile, ok := s.profileCache[username]; ok {
		return profile, nil
	}
	profile, err := s.scraper.GetProfile(username)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to get profile for user %s", username)
	}
	s.profileCache[username] = &profile
	return &profile, nil
}

// conversationRootId walks the reply chain up to the oldest ancestor the
// scraper returned, which is the conversation root for complete threads.
func conversationRootId(tweet *twitterscraper.Tweet) string {
	root := tweet
	for root.InReplyToStatus != nil {
		root = root.InReplyToStatus
	}
	return root.ID
}
