package models

import "time"

// Session is a single scheduled meeting of a course. The QR columns describe
// the attendance window currently open for it, if any.
type Session struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	CourseName  string     `db:"course_name" json:"course_name"`
	LecturerID  *string    `db:"lecturer_id" json:"lecturer_id,omitempty"`
	SessionDate Date       `db:"session_date" json:"session_date"`
	StartTime   string     `db:"start_time" json:"start_time"`
	EndTime     string     `db:"end_time" json:"end_time"`
	Topic       *string    `db:"topic" json:"topic,omitempty"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	QRCodeUUID  *string    `db:"qr_code_uuid" json:"-"`
	QRCodeData  *string    `db:"qr_code_data" json:"-"`
	IssuedAt    *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// QRActive reports whether attendance can be taken at now.
func (s *Session) QRActive(now time.Time) bool {
	return s != nil && s.IsActive && s.ExpiresAt != nil && now.Before(*s.ExpiresAt)
}

// OwnedBy reports whether the lecturer teaches the session's course.
func (s *Session) OwnedBy(userID string) bool {
	return s != nil && s.LecturerID != nil && *s.LecturerID == userID
}

// SessionQRUpdate is the persisted side of a QR issue or revoke.
type SessionQRUpdate struct {
	IsActive   bool
	QRCodeUUID *string
	QRCodeData *string
	IssuedAt   *time.Time
	ExpiresAt  *time.Time
}

// PublicSessionDetails is exposed to unauthenticated scanners.
type PublicSessionDetails struct {
	SessionID   string  `db:"id" json:"session_id"`
	CourseName  string  `db:"course_name" json:"course_name"`
	SessionDate Date    `db:"session_date" json:"session_date"`
	StartTime   string  `db:"start_time" json:"start_time"`
	EndTime     string  `db:"end_time" json:"end_time"`
	Topic       *string `db:"topic" json:"topic,omitempty"`
}

// SessionFilter scopes the paginated session listing.
type SessionFilter struct {
	CourseID   string
	LecturerID string
	Page       int
	PerPage    int
}
