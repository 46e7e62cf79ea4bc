package providers

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCreateTweetResponseSuccess(t *testing.T) {
	parsed := &createTweetResponse{}
	parsed.Data = &struct {
		Id   string `json:"id"`
		Text string `json:"text"`
	}{Id: "123", Text: "hola"}

	id, err := decodeCreateTweetResponse(http.StatusCreated, http.Header{}, parsed)
	require.NoError(t, err)
	assert.Equal(t, "123", id)
}

func TestDecodeCreateTweetResponseDuplicate(t *testing.T) {
	parsed := &createTweetResponse{
		Detail: "You are not allowed to create a Tweet with duplicate content.",
	}

	_, err := decodeCreateTweetResponse(http.StatusForbidden, http.Header{}, parsed)
	publishErr, ok := AsPublishError(err)
	require.True(t, ok)
	assert.Equal(t, PublishDuplicate, publishErr.Kind)
}

func TestDecodeCreateTweetResponsePermission(t *testing.T) {
	parsed := &createTweetResponse{Detail: "Your client app is not configured with the appropriate oauth1 app permissions for this endpoint."}

	_, err := decodeCreateTweetResponse(http.StatusForbidden, http.Header{}, parsed)
	publishErr, ok := AsPublishError(err)
	require.True(t, ok)
	assert.Equal(t, PublishPermission, publishErr.Kind)
}

func TestDecodeCreateTweetResponseRateLimited(t *testing.T) {
	resetAt := time.Now().Add(900 * time.Second).Truncate(time.Second)
	header := http.Header{}
	header.Set("x-rate-limit-limit", "50")
	header.Set("x-rate-limit-remaining", "0")
	header.Set("x-rate-limit-reset", strconv.FormatInt(resetAt.Unix(), 10))

	_, err := decodeCreateTweetResponse(http.StatusTooManyRequests, header, &createTweetResponse{})
	publishErr, ok := AsPublishError(err)
	require.True(t, ok)
	assert.Equal(t, PublishRateLimited, publishErr.Kind)
	assert.Equal(t, 50, publishErr.Limit)
	assert.True(t, publishErr.ResetAt.Equal(resetAt))
}

func TestDecodeCreateTweetResponseValidation(t *testing.T) {
	parsed := &createTweetResponse{Detail: "Tweet text is too long."}

	_, err := decodeCreateTweetResponse(http.StatusBadRequest, http.Header{}, parsed)
	publishErr, ok := AsPublishError(err)
	require.True(t, ok)
	assert.Equal(t, PublishValidation, publishErr.Kind)
	assert.Equal(t, "Tweet text is too long.", publishErr.Message)
}

func TestDecodeCreateTweetResponseServerError(t *testing.T) {
	_, err := decodeCreateTweetResponse(http.StatusInternalServerError, http.Header{}, &createTweetResponse{})
	publishErr, ok := AsPublishError(err)
	require.True(t, ok)
	assert.Equal(t, PublishOther, publishErr.Kind)
}
