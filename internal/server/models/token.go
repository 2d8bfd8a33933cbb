package models

import "time"

// Token mirrors a row of the users_token table: one stored bearer token
// (access or refresh) owned by a user. A user may hold several concurrent
// rows (multi-device sessions). A row past Expiration is inert and gets
// collected by the expiry sweep.
type Token struct {
	ID         int64
	UserID     int64
	Token      string
	Expiration time.Time
}
