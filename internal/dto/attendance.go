package dto

import (
	"time"

	"github.com/noah-isme/presencepro-api/internal/models"
)

// MarkAttendanceRequest is submitted from the public scan form.
type MarkAttendanceRequest struct {
	StudentIndexNumber string `json:"student_index_number"`
	QRCodeUUID         string `json:"qr_code_uuid"`
}

// MarkAttendanceResponse confirms a recorded mark.
type MarkAttendanceResponse struct {
	Message     string                  `json:"message"`
	SessionID   string                  `json:"session_id"`
	StudentID   string                  `json:"student_id"`
	StudentName string                  `json:"student_name"`
	Status      models.AttendanceStatus `json:"status"`
	Timestamp   time.Time               `json:"timestamp"`
}

// RecordAttendanceRequest is a manual status set by a lecturer.
type RecordAttendanceRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required,oneof=Present Absent Late"`
}

// MyAttendanceResponse is returned to students.
type MyAttendanceResponse struct {
	Records []models.StudentAttendanceRecord     `json:"records"`
	Courses []models.StudentAttendancePercentage `json:"courses"`
}
