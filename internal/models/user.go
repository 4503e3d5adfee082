package models

import (
	"time"
)

// User is a local account. Imported commenters and friends get
// placeholder users the first time their identity is seen.
type User struct {
	ID          string    `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	SiteDomain  string    `json:"site_domain,omitempty" db:"site_domain"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// MaxUsernameLength matches the users.username column.
const MaxUsernameLength = 30

// Identity is an external identifier (an OpenID or profile URL)
// optionally bound to a local user.
type Identity struct {
	ID         string    `json:"id" db:"id"`
	Identifier string    `json:"identifier" db:"identifier"`
	UserID     string    `json:"user_id,omitempty" db:"user_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TrustGroup is a sharing circle owned by a user. (UserID, Tag) is unique.
type TrustGroup struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Tag         string    `json:"tag" db:"tag"`
	DisplayName string    `json:"display_name" db:"display_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Avatar is a named profile picture for a user.
type Avatar struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	StorageName string    `json:"-" db:"storage_name"`
	URL         string    `json:"url" db:"url"`
	Width       int       `json:"width" db:"width"`
	Height      int       `json:"height" db:"height"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
