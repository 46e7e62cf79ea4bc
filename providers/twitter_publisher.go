package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

const (
	createTweetUri = `https://api.twitter.com/2/tweets`

	// Fallback window when a 429 response carries no reset header.
	defaultPublishResetWindow = 15 * time.Minute
)

// TwitterPublisher implements Publisher on top of the Twitter V2 create
// tweet endpoint. Every failure shape of the endpoint is decoded here into
// the closed PublishError variant, callers never see raw responses.
type TwitterPublisher struct {
	client      *http.Client
	accessToken string
}

func NewTwitterPublisher(client *http.Client, accessToken string) *TwitterPublisher {
	return &TwitterPublisher{
		client:      client,
		accessToken: accessToken,
	}
}

type createTweetRequest struct {
	Text string `json:"text"`
}

type createTweetResponse struct {
	Data *struct {
		Id   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (p *TwitterPublisher) Publish(ctx context.Context, text string) (string, error) {
	encoded, err := json.Marshal(createTweetRequest{Text: text})
	if err != nil {
		return "", NewOtherPublishError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, "POST", createTweetUri, bytes.NewReader(encoded))
	if err != nil {
		return "", NewOtherPublishError(err.Error())
	}
	req.Header.Add("Authorization", "Bearer "+p.accessToken)
	req.Header.Add("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return "", NewOtherPublishError(fmt.Sprintf("fail to post tweet: %s", err.Error()))
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return "", NewOtherPublishError(fmt.Sprintf("fail to read post tweet response: %s", err.Error()))
	}

	parsed := &createTweetResponse{}
	// Body decode failure is tolerated for error statuses, the status code
	// alone is enough to classify.
	json.Unmarshal(body, parsed)

	return decodeCreateTweetResponse(res.StatusCode, res.Header, parsed)
}

func decodeCreateTweetResponse(statusCode int, header http.Header, parsed *createTweetResponse) (string, error) {
	switch statusCode {
	case http.StatusCreated, http.StatusOK:
		if parsed.Data == nil {
			return "", NewOtherPublishError("post tweet response missing data")
		}
		return parsed.Data.Id, nil

	case http.StatusTooManyRequests:
		resetAt := time.Now().Add(defaultPublishResetWindow)
		limit := 0
		if rateLimit := parseRateLimitHeaders(header); rateLimit != nil {
			resetAt = rateLimit.ResetAt
			limit = rateLimit.Limit
		}
		return "", NewPublishRateLimitError(resetAt, limit)

	case http.StatusForbidden:
		if strings.Contains(strings.ToLower(errorDetail(parsed)), "duplicate") {
			return "", NewDuplicateContentError()
		}
		return "", NewPermissionError("API permission error. Please check your API access level.")

	case http.StatusUnauthorized:
		return "", NewPermissionError("API authorization failed. Please reconnect your account.")

	case http.StatusBadRequest:
		return "", NewValidationError(errorDetail(parsed))

	default:
		return "", NewOtherPublishError(fmt.Sprintf("unexpected status %d: %s", statusCode, errorDetail(parsed)))
	}
}

func errorDetail(parsed *createTweetResponse) string {
	if parsed.Detail != "" {
		return parsed.Detail
	}
	if len(parsed.Errors) > 0 && parsed.Errors[0].Message != "" {
		return parsed.Errors[0].Message
	}
	if parsed.Title != "" {
		return parsed.Title
	}
	return "failed to post tweet"
}
