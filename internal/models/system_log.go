package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// LogLevel grades system log entries.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Valid reports whether the level is known.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// System log actions.
const (
	LogActionLogin          = "LOGIN"
	LogActionLoginFailed    = "LOGIN_FAILED"
	LogActionLogout         = "LOGOUT"
	LogActionRegister       = "REGISTER"
	LogActionProfileUpdate  = "PROFILE_UPDATE"
	LogActionUserCreate     = "USER_CREATE"
	LogActionUserUpdate     = "USER_UPDATE"
	LogActionUserDelete     = "USER_DELETE"
	LogActionQRIssue        = "QR_ISSUE"
	LogActionQRRevoke       = "QR_REVOKE"
	LogActionAttendanceMark = "ATTENDANCE_MARK"
	LogActionSettingsUpdate = "SETTINGS_UPDATE"
	LogActionImport         = "STUDENT_IMPORT"
	LogActionRequest        = "REQUEST"
	LogActionReportRequest  = "REPORT_REQUEST"
)

// SystemLog is an audit trail record surfaced on the admin system log view.
type SystemLog struct {
	ID         string         `db:"id" json:"id"`
	Level      LogLevel       `db:"level" json:"level"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resource_id,omitempty"`
	UserID     *string        `db:"user_id" json:"user_id,omitempty"`
	Username   *string        `db:"username" json:"username,omitempty"`
	Message    string         `db:"message" json:"message"`
	Details    types.JSONText `db:"details" json:"details,omitempty"`
	IPAddress  *string        `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  *string        `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"timestamp"`
}

// SystemLogFilter scopes system log queries.
type SystemLogFilter struct {
	Search    string
	Level     *LogLevel
	StartDate *Date
	EndDate   *Date
	Page      int
	PerPage   int
}
