package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/service"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter, actor *models.JWTClaims) ([]models.Student, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Student, error)
	Create(ctx context.Context, req dto.CreateStudentRequest, actor *models.JWTClaims) (*models.Student, error)
	Update(ctx context.Context, id string, req dto.UpdateStudentRequest, actor *models.JWTClaims) (*models.Student, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Import(ctx context.Context, rows []dto.ImportStudentRow, actor *models.JWTClaims) (*dto.ImportResult, error)
}

type studentExporter interface {
	ExportStudents(ctx context.Context, query dto.StudentExportQuery, actor *models.JWTClaims) (*service.ExportFile, error)
}

// StudentHandler exposes student profile endpoints, bulk import and export.
type StudentHandler struct {
	students studentService
	exporter studentExporter
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(students studentService, exporter studentExporter) *StudentHandler {
	return &StudentHandler{students: students, exporter: exporter}
}

// List godoc
// @Summary List students
// @Description Admins see every student; lecturers see students enrolled in their courses
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Param search query string false "Matches index number, name or email"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter := models.StudentFilter{Search: strings.TrimSpace(c.Query("search"))}
	filter.Page, filter.PerPage = pageParams(c)

	students, pagination, err := h.students.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	student, err := h.students.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Description Served at /students for admins and /lecturer/students for lecturers
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body dto.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateStudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 204 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.students.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Import godoc
// @Summary Import students
// @Description Upserts a JSON array of students keyed by student_id
// @Tags Students
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body []dto.ImportStudentRow true "Students"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /import-students [post]
func (h *StudentHandler) Import(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var rows []dto.ImportStudentRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "Import payload must be a JSON array of students"))
		return
	}
	result, err := h.students.Import(c.Request.Context(), rows, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export students
// @Description Downloads students as csv, json or pdf. With course_name each row carries attendance_mark.
// @Tags Students
// @Produce octet-stream
// @Security BearerAuth
// @Param student_id query string false "Index number filter"
// @Param name query string false "Name filter"
// @Param course_name query string false "Course name"
// @Param format query string false "csv (default), json or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /export_students [get]
func (h *StudentHandler) Export(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var query dto.StudentExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	file, err := h.exporter.ExportStudents(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
