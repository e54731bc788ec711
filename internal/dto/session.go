package dto

// CreateSessionRequest is the payload for POST /sessions.
type CreateSessionRequest struct {
	CourseID    string  `json:"course_id" validate:"required"`
	SessionDate string  `json:"session_date" validate:"required"`
	StartTime   string  `json:"start_time" validate:"required"`
	EndTime     string  `json:"end_time" validate:"required"`
	Topic       *string `json:"topic" validate:"omitempty,max=255"`
}

// GenerateQRRequest carries the requested lifetime in minutes. A nil
// duration falls back to the configured default.
type GenerateQRRequest struct {
	Duration *int `json:"duration"`
}

// UpdateSessionRequest is the partial payload for PUT /sessions/:id.
type UpdateSessionRequest struct {
	SessionDate *string `json:"session_date"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Topic       *string `json:"topic" validate:"omitempty,max=255"`
}
