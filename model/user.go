package model

import (
	"time"
)

/*

User is one authenticated owner of the service.

Id: primary key, the canonical owner identifier. It is minted exactly once
when the account is created (uuid v4) and stored everywhere else as a plain
foreign key. No other identity (email, external OAuth subject) is ever used
to derive an owner id.
CreatedAt: time when entity is created

Email: sign-in email, unique
*/

type User struct {
	Id        string `gorm:"primaryKey"`
	CreatedAt time.Time
	Email     string `gorm:"uniqueIndex"`
}
