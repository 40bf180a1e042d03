// Package model defines domain entities used by services and repositories.
package model

import "time"

// User is a shop customer keyed by the external chat id.
type User struct {
	ID               int64  // external chat id, assigned by the messenger
	Username         string
	Language         string // ISO-639-1, lowercase
	Balance          int64  // minor units, never negative
	TotalReplenished int64
	IsBlocked        bool
	ReferrerID       *int64 // nil for organic users; forms a forest
	ReferralCode     string // unique random token
	CreatedAt        time.Time
}
