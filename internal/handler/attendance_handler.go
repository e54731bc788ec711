package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/service"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, sessionID string, req dto.MarkAttendanceRequest, meta service.ScanMeta) (*dto.MarkAttendanceResponse, error)
	Record(ctx context.Context, sessionID, studentID string, req dto.RecordAttendanceRequest, actor *models.JWTClaims) (*models.Attendance, error)
	Roster(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.AttendanceRosterEntry, error)
	MyAttendance(ctx context.Context, actor *models.JWTClaims, courseID string) (*dto.MyAttendanceResponse, error)
	StudentOverview(ctx context.Context, studentID string, filter models.ReportFilter, actor *models.JWTClaims) (*models.StudentAttendanceOverview, error)
}

// AttendanceHandler exposes attendance marking and per-student views.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Mark godoc
// @Summary Mark attendance from a QR scan
// @Description Public endpoint; the server alone decides whether the code is valid
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.MarkAttendanceRequest true "Index number and QR uuid"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req dto.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	meta := service.ScanMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent"), Actor: claimsFromContext(c)}
	result, err := h.service.Mark(c.Request.Context(), c.Param("id"), req, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Roster godoc
// @Summary Session roster
// @Description Every enrolled student with their status; Absent when nothing was recorded
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) Roster(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	roster, err := h.service.Roster(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Record godoc
// @Summary Set a student's status manually
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param student_id path string true "Student ID"
// @Param payload body dto.RecordAttendanceRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance/{student_id} [put]
func (h *AttendanceHandler) Record(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.RecordAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.service.Record(c.Request.Context(), c.Param("id"), c.Param("student_id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MyAttendance godoc
// @Summary Own attendance
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param course_id query string false "Course filter"
// @Success 200 {object} response.Envelope
// @Router /my-attendance [get]
func (h *AttendanceHandler) MyAttendance(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.service.MyAttendance(c.Request.Context(), claims, strings.TrimSpace(c.Query("course_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StudentOverview godoc
// @Summary Student attendance percentage
// @Description Present sessions over total sessions in range
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param course_id query string false "Course filter"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) StudentOverview(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter, err := reportFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	overview, err := h.service.StudentOverview(c.Request.Context(), c.Param("id"), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}
