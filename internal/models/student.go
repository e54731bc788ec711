package models

import "time"

// Student is the academic profile of a learner. StudentID holds the index
// number students type on the attendance form.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	ClassName *string   `db:"class_name" json:"class_name,omitempty"`
	Major     *string   `db:"major" json:"major,omitempty"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter scopes student listings.
type StudentFilter struct {
	Search     string
	StudentID  string
	Name       string
	CourseName string
	LecturerID string
	Page       int
	PerPage    int
}
