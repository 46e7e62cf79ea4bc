package model

import (
	"time"
)

/*

RateLimitRecord is the last known provider quota for one owner on one
endpoint, updated opportunistically after every provider call.

OwnerId, Endpoint: composite primary key
Remaining: calls left in the current window
Limit: window size as reported by the provider
ResetAt: when the window resets. Once now >= ResetAt the record is logically
	expired and must be treated as absent, it must never block a request.
*/

type RateLimitRecord struct {
	OwnerId   string `gorm:"primaryKey"`
	Endpoint  string `gorm:"primaryKey"`
	Remaining int
	Limit     int
	ResetAt   time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record's window has already reset.
func (r *RateLimitRecord) Expired(now time.Time) bool {
	return !now.Before(r.ResetAt)
}
