package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

type analyticsService interface {
	AttendanceReport(ctx context.Context, filter models.ReportFilter, actor *models.JWTClaims) (*models.AttendanceReport, bool, error)
	AtRiskStudents(ctx context.Context, threshold float64, actor *models.JWTClaims) ([]models.AtRiskStudent, bool, error)
	TopStudents(ctx context.Context, limit int, actor *models.JWTClaims) ([]models.TopStudent, bool, error)
	WeekdayAnalysis(ctx context.Context, filter models.ReportFilter, actor *models.JWTClaims) (*models.ChartSeries, bool, error)
	Trends(ctx context.Context, courseID string, weeks int, actor *models.JWTClaims) (*models.ChartSeries, bool, error)
	Engagement(ctx context.Context, actor *models.JWTClaims) (*models.EngagementReport, bool, error)
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// AttendanceReport godoc
// @Summary Attendance report
// @Description Per-session present/absent counts and totals
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param course_id query string false "Course filter"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /reports/attendance [get]
func (h *AnalyticsHandler) AttendanceReport(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter, err := reportFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, hit, err := h.analytics.AttendanceReport(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, report, hit)
}

// AtRisk godoc
// @Summary At-risk students
// @Description Students below the threshold overall, or whose last five sessions dropped sharply
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param threshold query number false "Percentage threshold (default 75)"
// @Success 200 {object} response.Envelope
// @Router /lecturer/at-risk-students [get]
func (h *AnalyticsHandler) AtRisk(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var threshold float64
	if raw := strings.TrimSpace(c.Query("threshold")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "threshold must be a number"))
			return
		}
		threshold = value
	}
	students, hit, err := h.analytics.AtRiskStudents(c.Request.Context(), threshold, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, students, hit)
}

// TopStudents godoc
// @Summary Top attending students
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of students (default 5)"
// @Success 200 {object} response.Envelope
// @Router /lecturer/top-students [get]
func (h *AnalyticsHandler) TopStudents(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	students, hit, err := h.analytics.TopStudents(c.Request.Context(), limit, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, students, hit)
}

// Weekday godoc
// @Summary Attendance by weekday
// @Description Labels Mon..Sun with the attendance rate of each
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param course_id query string false "Course filter"
// @Success 200 {object} response.Envelope
// @Router /lecturer/weekday-analysis [get]
func (h *AnalyticsHandler) Weekday(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter, err := reportFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	series, hit, err := h.analytics.WeekdayAnalysis(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, series, hit)
}

// Trends godoc
// @Summary Weekly attendance trend
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Param course_id query string false "Course filter"
// @Param weeks query int false "Number of weeks (default 8, max 52)"
// @Success 200 {object} response.Envelope
// @Router /attendance/trends [get]
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	weeks, ok := intQuery(c, "weeks")
	if !ok {
		return
	}
	series, hit, err := h.analytics.Trends(c.Request.Context(), strings.TrimSpace(c.Query("course_id")), weeks, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, series, hit)
}

// Engagement godoc
// @Summary Student engagement report
// @Description Average attendance per course with engagement tiers
// @Tags Analytics
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /lecturer/student-engagement-report [get]
func (h *AnalyticsHandler) Engagement(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	report, hit, err := h.analytics.Engagement(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, report, hit)
}

// intQuery parses an optional integer parameter, writing 400 when malformed.
func intQuery(c *gin.Context, key string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, key+" must be an integer"))
		return 0, false
	}
	return value, true
}
