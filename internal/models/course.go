package models

import "time"

// DefaultAttendanceMarks is the mark weight of full attendance in a course.
const DefaultAttendanceMarks = 100

// Course groups sessions taught by a lecturer.
type Course struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	Description          *string   `db:"description" json:"description,omitempty"`
	LecturerID           *string   `db:"lecturer_id" json:"lecturer_id,omitempty"`
	LecturerName         *string   `db:"lecturer_name" json:"lecturer_name,omitempty"`
	TotalAttendanceMarks int       `db:"total_attendance_marks" json:"total_attendance_marks"`
	TotalSessions        int       `db:"total_sessions" json:"total_sessions"`
	EnrolledStudentCount int       `db:"enrolled_student_count" json:"enrolled_student_count"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// TaughtBy reports whether the given user owns the course.
func (c *Course) TaughtBy(userID string) bool {
	return c != nil && c.LecturerID != nil && *c.LecturerID == userID
}

// CourseFilter scopes course listings by visibility.
type CourseFilter struct {
	LecturerID       string
	StudentProfileID string
	Search           string
	Page             int
	PerPage          int
}
