package models

import "time"

// RevokedToken is a denylisted access token identified by its jti claim.
type RevokedToken struct {
	JTI       string    `db:"jti" json:"jti"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
