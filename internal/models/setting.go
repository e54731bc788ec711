package models

import "time"

// SettingType defines supported types for setting values.
type SettingType string

const (
	SettingTypeInteger  SettingType = "INTEGER"
	SettingTypeBoolean  SettingType = "BOOLEAN"
	SettingTypeTimezone SettingType = "TIMEZONE"
)

// Setting keys recognised by the admin settings API.
const (
	SettingSessionTimeout        = "session_timeout"
	SettingQRCodeExpiration      = "qr_code_expiration"
	SettingLateGracePeriod       = "late_grace_period"
	SettingApplicationTimezone   = "application_timezone"
	SettingAllowSelfRegistration = "allow_self_registration"
)

// Setting represents a persisted admin setting.
type Setting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description *string     `db:"description" json:"description,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}
