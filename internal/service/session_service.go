package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/repository"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

const clockLayout = "15:04"

type sessionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type sessionRepository interface {
	sessionFinder
	ListByCourse(ctx context.Context, courseID string) ([]models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	PublicDetails(ctx context.Context, id string) (*models.PublicSessionDetails, error)
}

type courseViewer interface {
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Course, error)
}

// loadSession returns the session or a 404.
func loadSession(ctx context.Context, sessions sessionFinder, id string) (*models.Session, error) {
	session, err := sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// requireSessionOwner loads the session and checks the actor teaches its course.
func requireSessionOwner(ctx context.Context, sessions sessionFinder, id string, actor *models.JWTClaims) (*models.Session, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	session, err := loadSession(ctx, sessions, id)
	if err != nil {
		return nil, err
	}
	if actor.Administrator() || session.OwnedBy(actor.UserID) {
		return session, nil
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "You do not teach this session's course")
}

// SessionService manages course sessions.
type SessionService struct {
	repo      sessionRepository
	courses   courseFinder
	viewer    courseViewer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, courses courseFinder, viewer courseViewer, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, courses: courses, viewer: viewer, validator: validate, logger: logger}
}

// Create schedules a session for a course the actor teaches.
func (s *SessionService) Create(ctx context.Context, req dto.CreateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course_id, session_date, start_time and end_time are required")
	}
	date, err := models.ParseDate(req.SessionDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_date must be YYYY-MM-DD")
	}
	start, end, err := parseSessionTimes(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	course, err := requireCourseOwner(ctx, s.courses, req.CourseID, actor)
	if err != nil {
		return nil, err
	}

	creator := actor.UserID
	session := &models.Session{
		CourseID:    course.ID,
		CourseName:  course.Name,
		LecturerID:  course.LecturerID,
		SessionDate: date,
		StartTime:   start,
		EndTime:     end,
		Topic:       blankToNil(req.Topic),
		CreatedBy:   &creator,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "A session for this course already exists on this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return session, nil
}

// ListByCourse returns the sessions of a course the actor can see, newest first.
func (s *SessionService) ListByCourse(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Session, error) {
	if _, err := s.viewer.Get(ctx, courseID, actor); err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, nil
}

// List pages through sessions: every session for admins, sessions of taught
// courses for lecturers.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter, actor *models.JWTClaims) ([]models.Session, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page, perPage
	filter.LecturerID = ""

	switch {
	case actor.Administrator():
	case actor.Role == models.RoleLecturer:
		filter.LecturerID = actor.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return sessions, models.NewPagination(page, perPage, total), nil
}

// Get returns a session whose course the actor can see.
func (s *SessionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Session, error) {
	session, err := loadSession(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.viewer.Get(ctx, session.CourseID, actor); err != nil {
		return nil, err
	}
	return session, nil
}

// Update reschedules a session of a course the actor teaches. Times are
// checked as a pair after merging, so changing one side alone still has to
// keep end_time after start_time.
func (s *SessionService) Update(ctx context.Context, id string, req dto.UpdateSessionRequest, actor *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session, err := requireSessionOwner(ctx, s.repo, id, actor)
	if err != nil {
		return nil, err
	}

	if req.SessionDate != nil {
		date, err := models.ParseDate(strings.TrimSpace(*req.SessionDate))
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "session_date must be YYYY-MM-DD")
		}
		session.SessionDate = date
	}
	start, end := session.StartTime, session.EndTime
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}
	if session.StartTime, session.EndTime, err = parseSessionTimes(start, end); err != nil {
		return nil, err
	}
	if req.Topic != nil {
		session.Topic = blankToNil(req.Topic)
	}

	if err := s.repo.Update(ctx, session); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		case repository.IsUniqueViolation(err):
			return nil, appErrors.Clone(appErrors.ErrConflict, "A session for this course already exists on this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	s.logger.Info("session updated", zap.String("session_id", session.ID), zap.String("actor", actor.UserID))
	return session, nil
}

// Delete removes a session and its marks.
func (s *SessionService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if _, err := requireSessionOwner(ctx, s.repo, id, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

// PublicDetails returns what the scan page shows before a student submits.
func (s *SessionService) PublicDetails(ctx context.Context, id string) (*models.PublicSessionDetails, error) {
	details, err := s.repo.PublicDetails(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return details, nil
}

// parseSessionTimes normalises HH:MM strings and checks end follows start.
func parseSessionTimes(rawStart, rawEnd string) (string, string, error) {
	start, err := time.Parse(clockLayout, strings.TrimSpace(rawStart))
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := time.Parse(clockLayout, strings.TrimSpace(rawEnd))
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if !end.After(start) {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}
	return start.Format(clockLayout), end.Format(clockLayout), nil
}
