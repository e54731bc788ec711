package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

type sessionService interface {
	Create(ctx context.Context, req dto.CreateSessionRequest, actor *models.JWTClaims) (*models.Session, error)
	ListByCourse(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Session, error)
	List(ctx context.Context, filter models.SessionFilter, actor *models.JWTClaims) ([]models.Session, *models.Pagination, error)
	Update(ctx context.Context, id string, req dto.UpdateSessionRequest, actor *models.JWTClaims) (*models.Session, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Session, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	PublicDetails(ctx context.Context, id string) (*models.PublicSessionDetails, error)
}

type qrService interface {
	Generate(ctx context.Context, sessionID string, req dto.GenerateQRRequest, actor *models.JWTClaims) (*models.QRToken, error)
	Deactivate(ctx context.Context, sessionID string, actor *models.JWTClaims) error
	Status(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.QRStatus, error)
}

// SessionHandler exposes class sessions and their QR codes.
type SessionHandler struct {
	sessions sessionService
	qr       qrService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionService, qr qrService) *SessionHandler {
	return &SessionHandler{sessions: sessions, qr: qr}
}

// Create godoc
// @Summary Create session
// @Description One session per course and date; end_time must be after start_time
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ListByCourse godoc
// @Summary List sessions of a course
// @Description Newest first
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/sessions [get]
func (h *SessionHandler) ListByCourse(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	sessions, err := h.sessions.ListByCourse(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// List godoc
// @Summary List sessions
// @Description Admins see every session, lecturers the sessions of their courses
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param course_id query string false "Course ID"
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter := models.SessionFilter{CourseID: strings.TrimSpace(c.Query("course_id"))}
	filter.Page, filter.PerPage = pageParams(c)
	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Update godoc
// @Summary Update session
// @Description Partial update; the merged times must keep end_time after start_time
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateSessionRequest true "Session fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [put]
func (h *SessionHandler) Update(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.UpdateSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete session
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PublicDetails godoc
// @Summary Public session details
// @Description Shown on the scan page before the student submits; no authentication
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/details-public [get]
func (h *SessionHandler) PublicDetails(c *gin.Context) {
	details, err := h.sessions.PublicDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// GenerateQR godoc
// @Summary Issue a QR code
// @Description Activates attendance for duration minutes. An active unexpired code yields 409 with the existing code in error.details.
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body dto.GenerateQRRequest false "Duration in minutes"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/qr [post]
func (h *SessionHandler) GenerateQR(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.GenerateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "duration must be a positive integer"))
		return
	}
	token, err := h.qr.Generate(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, token)
}

// QRStatus godoc
// @Summary QR status
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/qr [get]
func (h *SessionHandler) QRStatus(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	status, err := h.qr.Status(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// DeactivateQR godoc
// @Summary Stop taking attendance
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/qr [delete]
func (h *SessionHandler) DeactivateQR(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	if err := h.qr.Deactivate(c.Request.Context(), c.Param("id"), claims); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "QR code deactivated", nil)
}
