package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleLecturer UserRole = "lecturer"
	RoleStudent  UserRole = "student"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleLecturer, RoleStudent:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	IsAdmin      bool       `db:"is_admin" json:"is_admin"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Administrator reports whether the user carries admin privileges either by role or flag.
func (u *User) Administrator() bool {
	return u != nil && (u.IsAdmin || u.Role == RoleAdmin)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Search    string
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}

// NewPagination derives the page count from total rows.
func NewPagination(page, perPage, total int) *Pagination {
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, Total: total, Pages: pages}
}

// NormalizePage applies default and maximum page sizes shared by list endpoints.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

// DashboardPath is the landing page for a role after login.
func DashboardPath(role UserRole, isAdmin bool) string {
	if isAdmin {
		return "/admin/dashboard"
	}
	switch role {
	case RoleAdmin:
		return "/admin/dashboard"
	case RoleLecturer:
		return "/lecturer/dashboard"
	case RoleStudent:
		return "/student/dashboard"
	default:
		return "/login"
	}
}

// Info returns the public view of the user.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, IsAdmin: u.IsAdmin}
}
