package dto

// CreateCourseRequest is the payload for POST /courses.
type CreateCourseRequest struct {
	Name                 string  `json:"name" validate:"required,max=120"`
	Description          *string `json:"description" validate:"omitempty,max=255"`
	LecturerID           *string `json:"lecturer_id"`
	TotalAttendanceMarks *int    `json:"total_attendance_marks" validate:"omitempty,min=0"`
}

// UpdateCourseRequest is the partial payload for PUT /courses/:id.
type UpdateCourseRequest struct {
	Name                 *string `json:"name" validate:"omitempty,min=1,max=120"`
	Description          *string `json:"description" validate:"omitempty,max=255"`
	LecturerID           *string `json:"lecturer_id"`
	TotalAttendanceMarks *int    `json:"total_attendance_marks" validate:"omitempty,min=0"`
}

// EnrollmentRequest lists student profile ids to (un)enroll.
type EnrollmentRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
}

// EnrollResult reports the outcome of an enrollment call.
type EnrollResult struct {
	Message         string `json:"message"`
	NewlyEnrolled   int    `json:"newly_enrolled"`
	AlreadyEnrolled int    `json:"already_enrolled"`
}

// UnenrollResult reports the outcome of an unenrollment call.
type UnenrollResult struct {
	Message     string `json:"message"`
	Unenrolled  int    `json:"unenrolled"`
	NotEnrolled int    `json:"not_enrolled"`
}
