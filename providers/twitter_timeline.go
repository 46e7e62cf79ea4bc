package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
	Logger "github.com/tweetbridge/tweetbridge/utils/log"
)

const (
	getUserByUsernameBaseUri = `https://api.twitter.com/2/users/by/username/%s`
	getUserTweetsBaseUri     = `https://api.twitter.com/2/users/%s/tweets`

	// Twitter caps max_results for the user tweets endpoint at [5, 100]. We
	// never request more than a small page per fetch run.
	minPageSize = 5
	maxPageSize = 20

	// Fallback window when a 429 response carries no reset header.
	defaultTimelineResetWindow = 15 * time.Minute
)

// TwitterTimeline implements Timeline on top of the Twitter V2 API.
type TwitterTimeline struct {
	// HttpClient that is used to actually make request
	client *http.Client

	// Bearer token used to actually make Twitter request
	bearerToken string

	// Caches username -> user id lookups, which are static, to avoid paying
	// an extra round trip on every fetch run.
	userIdCache map[string]string
}

func NewTwitterTimeline(client *http.Client, bearerToken string) *TwitterTimeline {
	return &TwitterTimeline{
		client:      client,
		bearerToken: bearerToken,
		userIdCache: make(map[string]string),
	}
}

type twitterUserResponse struct {
	Data *struct {
		Id       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []twitterApiError `json:"errors"`
}

type twitterApiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type twitterTweetObject struct {
	Id               string `json:"id"`
	Text             string `json:"text"`
	CreatedAt        string `json:"created_at"`
	AuthorId         string `json:"author_id"`
	ConversationId   string `json:"conversation_id"`
	InReplyToUserId  string `json:"in_reply_to_user_id"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		Id   string `json:"id"`
	} `json:"referenced_tweets"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type twitterMediaObject struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	Url             string `json:"url"`
	PreviewImageUrl string `json:"preview_image_url"`
	AltText         string `json:"alt_text"`
}

type twitterUserObject struct {
	Id              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageUrl string `json:"profile_image_url"`
}

type userTimelineResponse struct {
	Data     []twitterTweetObject `json:"data"`
	Includes struct {
		Media []twitterMediaObject `json:"media"`
		Users []twitterUserObject  `json:"users"`
	} `json:"includes"`
	Errors []twitterApiError `json:"errors"`
}

func (t *TwitterTimeline) ListRecentPosts(ctx context.Context, accountHandle string, sinceCursor string, maxResults int) (*TimelineResponse, error) {
	userId, err := t.lookupUserId(ctx, accountHandle)
	if err != nil {
		return nil, err
	}

	req, err := t.constructUserTweetsRequest(ctx, userId, sinceCursor, maxResults)
	if err != nil {
		return nil, err
	}
	res, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fail to request user tweets")
	}
	defer res.Body.Close()

	rateLimit := parseRateLimitHeaders(res.Header)
	if res.StatusCode == http.StatusTooManyRequests {
		rateLimitErr := &RateLimitError{
			RateLimit: RateLimit{ResetAt: time.Now().Add(defaultTimelineResetWindow)},
		}
		if rateLimit != nil {
			rateLimitErr.RateLimit = *rateLimit
		}
		return nil, rateLimitErr
	}

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "fail to read user tweets response")
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d from user tweets endpoint: %s", res.StatusCode, string(body))
	}

	parsed := &userTimelineResponse{}
	if err := json.Unmarshal(body, parsed); err != nil {
		return nil, errors.Wrap(err, "fail to parse user tweets response")
	}

	return convertUserTimelineResponse(parsed, rateLimit), nil
}

// lookupUserId resolves the account handle to the stable user id, caching the
// result for the lifetime of the client.
func (t *TwitterTimeline) lookupUserId(ctx context.Context, accountHandle string) (string, error) {
	cleanHandle := strings.TrimPrefix(accountHandle, "@")
	if userId, ok := t.userIdCache[cleanHandle]; ok {
		return userId, nil
	}

	url := fmt.Sprintf(getUserByUsernameBaseUri, cleanHandle)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Add("Authorization", "Bearer "+t.bearerToken)

	res, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fail to request user by username")
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		rateLimitErr := &RateLimitError{
			RateLimit: RateLimit{ResetAt: time.Now().Add(defaultTimelineResetWindow)},
		}
		if rateLimit := parseRateLimitHeaders(res.Header); rateLimit != nil {
			rateLimitErr.RateLimit = *rateLimit
		}
		return "", rateLimitErr
	}

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrap(err, "fail to read user by username response")
	}
	// Only a clean 200 without a data object means the account does not
	// exist, anything else is a provider failure and must stay retriable.
	if res.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status %d from user lookup endpoint: %s", res.StatusCode, string(body))
	}

	parsed := &twitterUserResponse{}
	if err := json.Unmarshal(body, parsed); err != nil {
		return "", errors.Wrap(err, "fail to parse user by username response")
	}
	if parsed.Data == nil {
		return "", errors.Wrapf(ErrNotFound, "user @%s", cleanHandle)
	}

	t.userIdCache[cleanHandle] = parsed.Data.Id
	return parsed.Data.Id, nil
}

func (t *TwitterTimeline) constructUserTweetsRequest(ctx context.Context, userId string, sinceCursor string, maxResults int) (*http.Request, error) {
	if maxResults > maxPageSize {
		maxResults = maxPageSize
	}
	if maxResults < minPageSize {
		maxResults = minPageSize
	}

	url := fmt.Sprintf(getUserTweetsBaseUri, userId)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Authorization", "Bearer "+t.bearerToken)

	query := req.URL.Query()
	query.Set("max_results", strconv.Itoa(maxResults))
	query.Set("tweet.fields", "created_at,author_id,conversation_id,in_reply_to_user_id,referenced_tweets,attachments")
	query.Set("user.fields", "name,username,profile_image_url")
	query.Set("media.fields", "media_key,type,url,preview_image_url,alt_text")
	query.Set("expansions", "attachments.media_keys,author_id")
	if sinceCursor != "" {
		query.Set("since_id", sinceCursor)
	}
	req.URL.RawQuery = query.Encode()
	return req, nil
}

func convertUserTimelineResponse(parsed *userTimelineResponse, rateLimit *RateLimit) *TimelineResponse {
	response := &TimelineResponse{
		Media:     make(map[string]Media),
		RateLimit: rateLimit,
	}

	users := make(map[string]twitterUserObject)
	for _, user := range parsed.Includes.Users {
		users[user.Id] = user
	}
	for _, media := range parsed.Includes.Media {
		url := media.Url
		if url == "" {
			url = media.PreviewImageUrl
		}
		response.Media[media.MediaKey] = Media{
			Key:     media.MediaKey,
			Kind:    media.Type,
			Url:     url,
			AltText: media.AltText,
		}
	}

	for _, tweet := range parsed.Data {
		post := RawPost{
			Id:              tweet.Id,
			Text:            tweet.Text,
			AuthorId:        tweet.AuthorId,
			ConversationId:  tweet.ConversationId,
			InReplyToUserId: tweet.InReplyToUserId,
			MediaKeys:       tweet.Attachments.MediaKeys,
		}
		// The creation time is documented as RFC3339 but we have seen other
		// shapes from mirror endpoints, parse leniently.
		createdAt, err := dateparse.ParseAny(tweet.CreatedAt)
		if err != nil {
			Logger.Log.Warnln("fail to parse tweet creation time, falling back to now:", tweet.CreatedAt)
			createdAt = time.Now()
		}
		post.CreatedAt = createdAt
		if author, ok := users[tweet.AuthorId]; ok {
			post.AuthorName = author.Name
			post.AuthorUsername = author.Username
			post.AuthorAvatar = author.ProfileImageUrl
		}
		for _, ref := range tweet.ReferencedTweets {
			post.References = append(post.References, PostReference{
				Type: ReferenceType(ref.Type),
				Id:   ref.Id,
			})
		}
		response.Posts = append(response.Posts, post)
	}

	return response
}

func parseRateLimitHeaders(header http.Header) *RateLimit {
	limitStr := header.Get("x-rate-limit-limit")
	remainingStr := header.Get("x-rate-limit-remaining")
	resetStr := header.Get("x-rate-limit-reset")
	if limitStr == "" || remainingStr == "" || resetStr == "" {
		return nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return nil
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil
	}
	return &RateLimit{
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   time.Unix(resetUnix, 0),
	}
}
