package portal

import (
	"net/url"
	"strings"

	"github.com/noah-isme/presencepro-api/internal/models"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

// DashboardPath is the landing page for a role.
func DashboardPath(role models.UserRole) string {
	switch role {
	case models.RoleAdmin:
		return "/admin/dashboard"
	case models.RoleLecturer:
		return "/lecturer/dashboard"
	case models.RoleStudent:
		return "/student/dashboard"
	default:
		return LoginPath
	}
}

// landingPath treats the is_admin flag as the admin role.
func landingPath(user *models.UserInfo) string {
	if user == nil {
		return LoginPath
	}
	if user.IsAdmin {
		return DashboardPath(models.RoleAdmin)
	}
	return DashboardPath(user.Role)
}

var guardedPrefixes = []struct {
	prefix string
	role   models.UserRole
}{
	{"/admin", models.RoleAdmin},
	{"/lecturer", models.RoleLecturer},
	{"/student", models.RoleStudent},
}

// RequiredRole derives the role a path needs from its first segment. Paths
// outside the dashboards need none.
func RequiredRole(path string) (models.UserRole, bool) {
	for _, g := range guardedPrefixes {
		if path == g.prefix || strings.HasPrefix(path, g.prefix+"/") {
			return g.role, true
		}
	}
	return "", false
}

// Decision is the outcome of a route check.
type Decision struct {
	Allowed  bool
	Redirect string
}

// Guard decides whether user may open path. Unauthenticated visitors and
// role mismatches are sent to the login page with the requested path as a
// return hint. Administrators also pass the lecturer pages; student pages
// need a student profile and admit students only.
func Guard(path string, user *models.UserInfo) Decision {
	role, guarded := RequiredRole(path)
	if !guarded {
		return Decision{Allowed: true}
	}
	if user != nil && (user.Role == role || (role != models.RoleStudent && isAdmin(user))) {
		return Decision{Allowed: true}
	}
	return Decision{Redirect: LoginPath + "?redirect=" + url.QueryEscape(path)}
}

func isAdmin(user *models.UserInfo) bool {
	return user.IsAdmin || user.Role == models.RoleAdmin
}
