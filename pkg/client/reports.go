package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
)

// LogQuery filters the system log view.
type LogQuery struct {
	Search    string
	Level     models.LogLevel
	StartDate string
	EndDate   string
	Page      int
	PerPage   int
}

func (q LogQuery) values() url.Values {
	query := pageQuery(q.Page, q.PerPage)
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Level != "" {
		query.Set("level", string(q.Level))
	}
	if q.StartDate != "" {
		query.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		query.Set("end_date", q.EndDate)
	}
	return query
}

// AttendanceReport returns the session-level attendance report.
func (c *Client) AttendanceReport(ctx context.Context, q ReportQuery) (*models.AttendanceReport, error) {
	var report models.AttendanceReport
	if _, err := c.do(ctx, http.MethodGet, "/reports/attendance", q.values(), nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// RequestReport queues an export job.
func (c *Client) RequestReport(ctx context.Context, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	var job dto.ReportJobResponse
	if _, err := c.do(ctx, http.MethodPost, "/reports/export", nil, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ReportStatus polls an export job.
func (c *Client) ReportStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	var status dto.ReportStatusResponse
	if _, err := c.do(ctx, http.MethodGet, "/reports/export/"+escape(id), nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListReports returns the caller's recent export jobs.
func (c *Client) ListReports(ctx context.Context, limit int) ([]dto.ReportStatusResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var jobs []dto.ReportStatusResponse
	if _, err := c.do(ctx, http.MethodGet, "/reports/export", query, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// DownloadReport fetches a finished export by its result URL, which the
// server returns as a path on the API host.
func (c *Client) DownloadReport(ctx context.Context, resultURL string) (*File, error) {
	ref, err := url.Parse(resultURL)
	if err != nil {
		return nil, fmt.Errorf("parse result url: %w", err)
	}
	if !strings.HasPrefix(ref.Path, "/") && !ref.IsAbs() {
		return c.download(ctx, c.endpoint("/"+resultURL, nil))
	}
	return c.download(ctx, c.baseURL.ResolveReference(ref).String())
}

// AtRiskStudents lists students under the attendance threshold. Zero uses
// the server default.
func (c *Client) AtRiskStudents(ctx context.Context, threshold float64) ([]models.AtRiskStudent, error) {
	query := url.Values{}
	if threshold > 0 {
		query.Set("threshold", strconv.FormatFloat(threshold, 'f', -1, 64))
	}
	var students []models.AtRiskStudent
	if _, err := c.do(ctx, http.MethodGet, "/lecturer/at-risk-students", query, nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// TopStudents lists the best attenders across the lecturer's courses.
func (c *Client) TopStudents(ctx context.Context, limit int) ([]models.TopStudent, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var students []models.TopStudent
	if _, err := c.do(ctx, http.MethodGet, "/lecturer/top-students", query, nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// WeekdayAnalysis returns attendance rates by day of week.
func (c *Client) WeekdayAnalysis(ctx context.Context, q ReportQuery) (*models.ChartSeries, error) {
	var series models.ChartSeries
	if _, err := c.do(ctx, http.MethodGet, "/lecturer/weekday-analysis", q.values(), nil, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// AttendanceTrends returns weekly attendance rates.
func (c *Client) AttendanceTrends(ctx context.Context, courseID string, weeks int) (*models.ChartSeries, error) {
	query := url.Values{}
	if courseID != "" {
		query.Set("course_id", courseID)
	}
	if weeks > 0 {
		query.Set("weeks", strconv.Itoa(weeks))
	}
	var series models.ChartSeries
	if _, err := c.do(ctx, http.MethodGet, "/attendance/trends", query, nil, &series); err != nil {
		return nil, err
	}
	return &series, nil
}

// EngagementReport groups students into engagement tiers.
func (c *Client) EngagementReport(ctx context.Context) (*models.EngagementReport, error) {
	var report models.EngagementReport
	if _, err := c.do(ctx, http.MethodGet, "/lecturer/student-engagement-report", nil, nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// DashboardStats returns the admin headline counters.
func (c *Client) DashboardStats(ctx context.Context) (*models.AdminDashboardStats, error) {
	var stats models.AdminDashboardStats
	if _, err := c.do(ctx, http.MethodGet, "/admin/dashboard-stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DashboardCharts returns the admin chart datasets.
func (c *Client) DashboardCharts(ctx context.Context) (*models.AdminDashboardCharts, error) {
	var charts models.AdminDashboardCharts
	if _, err := c.do(ctx, http.MethodGet, "/admin/dashboard-charts", nil, nil, &charts); err != nil {
		return nil, err
	}
	return &charts, nil
}

// SystemMetrics returns process counters since start.
func (c *Client) SystemMetrics(ctx context.Context) (*models.SystemMetrics, error) {
	var metrics models.SystemMetrics
	if _, err := c.do(ctx, http.MethodGet, "/admin/metrics", nil, nil, &metrics); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// Settings lists the admin tunables.
func (c *Client) Settings(ctx context.Context) ([]dto.SettingItem, error) {
	var items []dto.SettingItem
	if _, err := c.do(ctx, http.MethodGet, "/admin/settings", nil, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateSetting changes one tunable.
func (c *Client) UpdateSetting(ctx context.Context, key, value string) (*dto.SettingItem, error) {
	var item dto.SettingItem
	body := map[string]string{"value": value}
	if _, err := c.do(ctx, http.MethodPut, "/admin/settings/"+escape(key), nil, body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateSettings saves several tunables at once.
func (c *Client) UpdateSettings(ctx context.Context, values map[string]string) ([]dto.SettingItem, error) {
	req := dto.BulkUpdateSettingsRequest{}
	for key, value := range values {
		req.Items = append(req.Items, dto.UpdateSettingRequest{Key: key, Value: value})
	}
	var items []dto.SettingItem
	if _, err := c.do(ctx, http.MethodPut, "/admin/settings", nil, req, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SystemLogs pages through the audit trail.
func (c *Client) SystemLogs(ctx context.Context, q LogQuery) ([]models.SystemLog, *models.Pagination, error) {
	var logs []models.SystemLog
	env, err := c.do(ctx, http.MethodGet, "/admin/system-logs", q.values(), nil, &logs)
	if err != nil {
		return nil, nil, err
	}
	return logs, env.Pagination, nil
}

// ExportSystemLogs downloads the filtered log as CSV.
func (c *Client) ExportSystemLogs(ctx context.Context, q LogQuery) (*File, error) {
	return c.download(ctx, c.endpoint("/admin/system-logs/export", q.values()))
}
