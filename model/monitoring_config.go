package model

import (
	"time"
)

/*

MonitoringConfig is the per-owner monitoring setup, one row per owner.

OwnerId: primary key, "belongs-to" User
SourceAccount: the tweeter handle being monitored, without the leading "@"
TargetLanguage: language the posts are translated into, e.g. "es"
CheckIntervalSec: how often the pipeline daemon should ingest for this owner
Cursor: last seen external tweet id. Bounds the next fetch so only newer
	tweets are returned. Only ever moves forward with respect to the
	provider's chronological ordering.
AutoMode: when true, translated posts are queued for publication without
	owner review. When false the daemon skips this config and the owner drives
	the stages through the trigger endpoints.
*/

type MonitoringConfig struct {
	OwnerId          string `gorm:"primaryKey"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
	SourceAccount    string
	TargetLanguage   string
	CheckIntervalSec int64
	Cursor           string
	AutoMode         bool
}

// CheckInterval returns the ingestion interval, defaulting to 5 minutes when
// unset.
func (c *MonitoringConfig) CheckInterval() time.Duration {
	if c.CheckIntervalSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CheckIntervalSec) * time.Second
}
