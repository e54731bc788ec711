package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "Present"
	AttendanceStatusAbsent  AttendanceStatus = "Absent"
	AttendanceStatusLate    AttendanceStatus = "Late"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// Attended reports whether the status counts towards attendance percentages.
func (s AttendanceStatus) Attended() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusLate
}

// Attendance is a single student's mark for a session.
type Attendance struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  *string          `db:"marked_by" json:"marked_by,omitempty"`
	Timestamp time.Time        `db:"timestamp" json:"timestamp"`
}

// AttendanceRosterEntry is one enrolled student's standing for a session.
type AttendanceRosterEntry struct {
	StudentDBID  string           `db:"student_db_id" json:"id"`
	StudentIndex string           `db:"student_index" json:"student_id"`
	Name         string           `db:"name" json:"name"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Timestamp    *time.Time       `db:"timestamp" json:"timestamp,omitempty"`
}

// StudentAttendanceRecord is a mark joined with its session and course.
type StudentAttendanceRecord struct {
	AttendanceID string           `db:"attendance_id" json:"id"`
	SessionID    string           `db:"session_id" json:"session_id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	CourseName   string           `db:"course_name" json:"course_name"`
	SessionDate  Date             `db:"session_date" json:"session_date"`
	StartTime    string           `db:"start_time" json:"start_time"`
	EndTime      string           `db:"end_time" json:"end_time"`
	Status       AttendanceStatus `db:"status" json:"status"`
	Timestamp    time.Time        `db:"timestamp" json:"timestamp"`
}

// AttendanceRange narrows attendance aggregates to session dates.
type AttendanceRange struct {
	StartDate *Date
	EndDate   *Date
}
