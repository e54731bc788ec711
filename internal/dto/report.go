package dto

import (
	"time"

	"github.com/noah-isme/presencepro-api/internal/models"
)

// ReportRequest captures POST /reports/export payload.
type ReportRequest struct {
	Type      models.ReportType   `json:"type"`
	CourseID  string              `json:"course_id" validate:"required"`
	StartDate *models.Date        `json:"start_date,omitempty"`
	EndDate   *models.Date        `json:"end_date,omitempty"`
	Format    models.ReportFormat `json:"format"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Type       models.ReportType   `json:"type"`
	Format     models.ReportFormat `json:"format"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}

// AttendanceReportQuery carries GET /reports/attendance filters.
type AttendanceReportQuery struct {
	CourseID  string `form:"course_id"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}
