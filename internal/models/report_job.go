package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReportType selects the dataset an export job renders.
type ReportType string

const (
	// ReportTypeAttendance lists every mark of the course in range.
	ReportTypeAttendance ReportType = "attendance"
	// ReportTypeCourseSummary has one row per session plus totals.
	ReportTypeCourseSummary ReportType = "course_summary"
)

// Valid reports whether the type is known.
func (t ReportType) Valid() bool {
	return t == ReportTypeAttendance || t == ReportTypeCourseSummary
}

// ReportFormat is the file encoding of an export.
type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
	ReportFormatJSON ReportFormat = "json"
)

// Queueable is true for formats the async report worker produces. JSON is
// only offered by the synchronous student export.
func (f ReportFormat) Queueable() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus is the lifecycle of a report job: QUEUED, PROCESSING, then
// FINISHED or FAILED.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// Terminal is true once the job will not change again.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusFailed
}

// ReportJob is a row of report_jobs.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// Downloadable is true for a finished job with a stored result.
func (j *ReportJob) Downloadable() bool {
	return j != nil && j.Status == ReportStatusFinished && j.ResultURL != nil && *j.ResultURL != ""
}

// DownloadToken is the last path segment of the result URL, or "".
func (j *ReportJob) DownloadToken() string {
	if j == nil || j.ResultURL == nil {
		return ""
	}
	url := *j.ResultURL
	return url[strings.LastIndex(url, "/")+1:]
}

// ReportJobParams is stored in the params JSONB column.
type ReportJobParams struct {
	CourseID  string       `json:"course_id"`
	StartDate *Date        `json:"start_date,omitempty"`
	EndDate   *Date        `json:"end_date,omitempty"`
	Format    ReportFormat `json:"format"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode report params: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner; NULL and empty values decode to zero params.
func (p *ReportJobParams) Scan(value interface{}) error {
	*p = ReportJobParams{}
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("report params: cannot scan %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode report params: %w", err)
	}
	return nil
}
