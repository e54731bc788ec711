package models

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user. Identifier may be
// a username or an email address; Username is accepted for older clients.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password" validate:"required"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// Principal returns the trimmed login identifier.
func (r LoginRequest) Principal() string {
	if id := strings.TrimSpace(r.Identifier); id != "" {
		return id
	}
	return strings.TrimSpace(r.Username)
}

// LoginResponse returns the issued token and where the client should land.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	Role        UserRole  `json:"role"`
	IsAdmin     bool      `json:"is_admin"`
	ExpiresAt   time.Time `json:"expires_at"`
	RedirectTo  string    `json:"redirect_to"`
	User        UserInfo  `json:"user"`
}

// RegisterRequest is the self-registration payload.
type RegisterRequest struct {
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password" validate:"required,min=8"`
	Email    string   `json:"email" validate:"required,email"`
	Role     UserRole `json:"role"`
}

// UpdateProfileRequest changes the caller's own account.
type UpdateProfileRequest struct {
	Email           *string `json:"email" validate:"omitempty,email"`
	Password        *string `json:"password" validate:"omitempty,min=8"`
	CurrentPassword string  `json:"current_password"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	IsAdmin  bool     `json:"is_admin"`
}

// Profile is returned by GET /my-profile.
type Profile struct {
	UserInfo
	StudentProfile  *Student `json:"student_profile,omitempty"`
	EnrolledCourses []Course `json:"enrolled_courses,omitempty"`
	TaughtCourses   []Course `json:"taught_courses,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	IsAdmin  bool     `json:"is_admin"`
	jwt.RegisteredClaims
}

// Administrator reports whether the token holder bypasses role checks.
func (c *JWTClaims) Administrator() bool {
	return c != nil && (c.IsAdmin || c.Role == RoleAdmin)
}

// HasRole reports whether the token holder may act as any of the roles.
func (c *JWTClaims) HasRole(roles ...UserRole) bool {
	if c == nil {
		return false
	}
	if c.Administrator() {
		return true
	}
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}
