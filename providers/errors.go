package providers

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by the timeline when the monitored account does not
// exist.
var ErrNotFound = errors.New("account not found")

// RateLimitError is returned by the timeline when the provider rejected the
// call for quota reasons. Carries the quota metadata so callers can record it.
type RateLimitError struct {
	RateLimit
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// PublishErrorKind enumerates the closed set of publish failure classes.
type PublishErrorKind int

const (
	// The exact text was already published. Not a true failure.
	PublishDuplicate PublishErrorKind = iota
	// Quota exhausted, retry after ResetAt.
	PublishRateLimited
	// Credentials lack the required access level. Needs owner action.
	PublishPermission
	// The provider rejected the content itself. Needs owner action.
	PublishValidation
	// Anything else: network failure, 5xx, unexpected body.
	PublishOther
)

// PublishError is the tagged failure variant of the publishing provider,
// decoded exactly once at the provider boundary.
type PublishError struct {
	Kind    PublishErrorKind
	Message string
	// Rate limit metadata, only meaningful for PublishRateLimited.
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *PublishError) Error() string {
	return e.Message
}

func NewDuplicateContentError() *PublishError {
	return &PublishError{Kind: PublishDuplicate, Message: "content was already published"}
}

func NewPublishRateLimitError(resetAt time.Time, limit int) *PublishError {
	return &PublishError{
		Kind:    PublishRateLimited,
		Message: fmt.Sprintf("rate limited until %s", resetAt.Format(time.RFC3339)),
		ResetAt: resetAt,
		Limit:   limit,
	}
}

func NewPermissionError(message string) *PublishError {
	return &PublishError{Kind: PublishPermission, Message: message}
}

func NewValidationError(message string) *PublishError {
	return &PublishError{Kind: PublishValidation, Message: message}
}

func NewOtherPublishError(message string) *PublishError {
	return &PublishError{Kind: PublishOther, Message: message}
}

// AsPublishError unwraps err into a PublishError if it is one.
func AsPublishError(err error) (*PublishError, bool) {
	var publishErr *PublishError
	if errors.As(err, &publishErr) {
		return publishErr, true
	}
	return nil, false
}

// AsRateLimitError unwraps err into a timeline RateLimitError if it is one.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}
