package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

type courseService interface {
	List(ctx context.Context, filter models.CourseFilter, actor *models.JWTClaims) ([]models.Course, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Course, error)
	Create(ctx context.Context, req dto.CreateCourseRequest, actor *models.JWTClaims) (*models.Course, error)
	Update(ctx context.Context, id string, req dto.UpdateCourseRequest, actor *models.JWTClaims) (*models.Course, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

type enrollmentService interface {
	Students(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Student, error)
	Enroll(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) (*dto.EnrollResult, error)
	Unenroll(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) (*dto.UnenrollResult, error)
}

type courseSummaryService interface {
	CourseSummary(ctx context.Context, courseID string, filter models.ReportFilter, actor *models.JWTClaims) (*models.CourseAttendanceSummary, error)
}

// CourseHandler exposes course management, enrollment and per-course attendance summaries.
type CourseHandler struct {
	courses     courseService
	enrollments enrollmentService
	summaries   courseSummaryService
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(courses courseService, enrollments enrollmentService, summaries courseSummaryService) *CourseHandler {
	return &CourseHandler{courses: courses, enrollments: enrollments, summaries: summaries}
}

// List godoc
// @Summary List courses
// @Description Admins see all courses, lecturers their own and students those they are enrolled in
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Param search query string false "Name filter"
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter := models.CourseFilter{Search: strings.TrimSpace(c.Query("search"))}
	filter.Page, filter.PerPage = pageParams(c)

	courses, pagination, err := h.courses.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create course
// @Description A lecturer's course is assigned to them; admins may choose the lecturer
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update course
// @Tags Courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.UpdateCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateCourseRequest
	if !bindJSON(c, &req) {
		return
	}
	course, err := h.courses.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete course
// @Tags Courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.courses.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Students godoc
// @Summary List enrolled students
// @Tags Enrollment
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [get]
func (h *CourseHandler) Students(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	students, err := h.enrollments.Students(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Enroll godoc
// @Summary Enroll students
// @Description Unknown student ids fail the whole request with 404
// @Tags Enrollment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.EnrollmentRequest true "Student ids"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/students [post]
func (h *CourseHandler) Enroll(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.EnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Unenroll godoc
// @Summary Unenroll students
// @Tags Enrollment
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.EnrollmentRequest true "Student ids"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students [delete]
func (h *CourseHandler) Unenroll(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.EnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.enrollments.Unenroll(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AttendanceSummary godoc
// @Summary Course attendance summary
// @Description Average and per-student attendance percentage in the date range
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/attendance_summary [get]
func (h *CourseHandler) AttendanceSummary(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter, err := reportFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.summaries.CourseSummary(c.Request.Context(), c.Param("id"), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
