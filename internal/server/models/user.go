package models

import "time"

// Column defaults applied on creation when the caller leaves the
// corresponding fields empty.
const (
	DefaultRole   = "new-user"
	DefaultStatus = "new-user"
	DefaultAvatar = "~/sp2024/mpt/DOCC/assets/default/default_avatar.jpg"
)

// User mirrors a row of the users table. HashPassword always holds the
// hashed form, never the plaintext. DeleteAt set means the record is
// soft-deleted: hidden from authentication lookups but never physically
// removed by normal flows.
//
// Token and RefreshToken are a denormalized cache of the most recently
// issued pair; the users_token table stays authoritative for verification
// and revocation.
type User struct {
	ID           int64
	Name         string
	Surname      string
	Email        string
	Phone        string
	Username     string
	HashPassword string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeleteAt     *time.Time
	LastActive   *time.Time
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	Role         string
	Permissions  []string
	Avatar       string
	Status       string
	Token        string
	RefreshToken string
}
