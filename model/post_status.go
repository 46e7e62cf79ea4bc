package model

// PostStatus is the lifecycle state of a Post.
type PostStatus string

const (
	// Freshly ingested, waiting for translation.
	PostStatusPending PostStatus = "pending"
	// Translation in flight. Only exists for crash visibility, a post stuck
	// in this state means the translation stage died mid-call.
	PostStatusTranslating PostStatus = "translating"
	// Translated, waiting to be queued for publication.
	PostStatusTranslated PostStatus = "translated"
	// Queued for the publication scheduler.
	PostStatusQueued PostStatus = "queued"
	// Republished. Terminal.
	PostStatusPosted PostStatus = "posted"
	// Needs owner action. Terminal for automatic processing.
	PostStatusFailed PostStatus = "failed"
)

// validTransitions lists, per state, the states a post may move to. The
// queued self-loop is the rate-limit deferral with RetryAfter set.
var validTransitions = map[PostStatus][]PostStatus{
	PostStatusPending:     {PostStatusTranslating, PostStatusTranslated, PostStatusFailed},
	PostStatusTranslating: {PostStatusTranslated, PostStatusFailed},
	PostStatusTranslated:  {PostStatusQueued, PostStatusFailed},
	PostStatusQueued:      {PostStatusQueued, PostStatusPosted, PostStatusFailed},
	PostStatusPosted:      {},
	PostStatusFailed:      {},
}

// CanTransition returns true iff a post in state from may move to state to.
func CanTransition(from, to PostStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states the automatic pipeline never leaves.
func (s PostStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}
