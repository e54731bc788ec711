package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/repository"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type courseRepository interface {
	courseFinder
	FindByName(ctx context.Context, name string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type studentProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}

// loadCourse returns the course or a 404.
func loadCourse(ctx context.Context, courses courseFinder, id string) (*models.Course, error) {
	course, err := courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// requireCourseOwner loads the course and checks the actor teaches it.
// Admins pass.
func requireCourseOwner(ctx context.Context, courses courseFinder, id string, actor *models.JWTClaims) (*models.Course, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	course, err := loadCourse(ctx, courses, id)
	if err != nil {
		return nil, err
	}
	if actor.Administrator() || course.TaughtBy(actor.UserID) {
		return course, nil
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "You do not teach this course")
}

// CourseService manages courses.
type CourseService struct {
	repo        courseRepository
	users       userFinder
	students    studentProfileFinder
	enrollments enrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, users userFinder, students studentProfileFinder, enrollments enrollmentChecker, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, students: students, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns the courses visible to the actor: all for admins, taught
// courses for lecturers and enrolled courses for students.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter, actor *models.JWTClaims) ([]models.Course, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page, perPage
	filter.LecturerID, filter.StudentProfileID = "", ""

	switch {
	case actor.Administrator():
	case actor.Role == models.RoleLecturer:
		filter.LecturerID = actor.UserID
	case actor.Role == models.RoleStudent:
		student, err := s.students.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []models.Course{}, models.NewPagination(page, perPage, 0), nil
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		filter.StudentProfileID = student.ID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, models.NewPagination(page, perPage, total), nil
}

// Get returns a course the actor may see.
func (s *CourseService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Course, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	course, err := loadCourse(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Administrator(), course.TaughtBy(actor.UserID):
		return course, nil
	case actor.Role == models.RoleStudent:
		student, err := s.students.FindByUserID(ctx, actor.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrNotEnrolled
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		enrolled, err := s.enrollments.IsEnrolled(ctx, course.ID, student.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return nil, appErrors.ErrNotEnrolled
		}
		return course, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "You do not teach this course")
	}
}

// Create adds a course. A lecturer always becomes the owner of the courses
// they create; admins may assign any lecturer.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{Name: req.Name, Description: req.Description, TotalAttendanceMarks: models.DefaultAttendanceMarks}
	if req.TotalAttendanceMarks != nil {
		course.TotalAttendanceMarks = *req.TotalAttendanceMarks
	}
	if actor.Administrator() {
		if req.LecturerID != nil && *req.LecturerID != "" {
			if err := s.ensureLecturer(ctx, *req.LecturerID); err != nil {
				return nil, err
			}
			course.LecturerID = req.LecturerID
		}
	} else {
		owner := actor.UserID
		course.LecturerID = &owner
	}

	if err := s.ensureNameFree(ctx, course.Name, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, mapCourseWriteError(err, "failed to create course")
	}
	return s.reload(ctx, course)
}

// Update applies a partial update. Only admins can reassign the lecturer.
func (s *CourseService) Update(ctx context.Context, id string, req dto.UpdateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := requireCourseOwner(ctx, s.repo, id, actor)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be empty")
		}
		if name != course.Name {
			if err := s.ensureNameFree(ctx, name, course.ID); err != nil {
				return nil, err
			}
			course.Name = name
		}
	}
	if req.Description != nil {
		course.Description = req.Description
	}
	if req.TotalAttendanceMarks != nil {
		course.TotalAttendanceMarks = *req.TotalAttendanceMarks
	}
	if req.LecturerID != nil {
		current := ""
		if course.LecturerID != nil {
			current = *course.LecturerID
		}
		if *req.LecturerID != current {
			if !actor.Administrator() {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "Only admins can change the course lecturer")
			}
			if *req.LecturerID == "" {
				course.LecturerID = nil
			} else {
				if err := s.ensureLecturer(ctx, *req.LecturerID); err != nil {
					return nil, err
				}
				lecturer := *req.LecturerID
				course.LecturerID = &lecturer
			}
		}
	}

	if err := s.repo.Update(ctx, course); err != nil {
		return nil, mapCourseWriteError(err, "failed to update course")
	}
	return s.reload(ctx, course)
}

// Delete removes a course with its sessions and enrollments.
func (s *CourseService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if _, err := requireCourseOwner(ctx, s.repo, id, actor); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.logger.Info("course deleted", zap.String("course_id", id), zap.String("actor", actor.UserID))
	return nil
}

func (s *CourseService) ensureLecturer(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "lecturer_id does not reference a user")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lecturer")
	}
	if user.Role != models.RoleLecturer {
		return appErrors.Clone(appErrors.ErrValidation, "lecturer_id must reference a lecturer")
	}
	return nil
}

func (s *CourseService) ensureNameFree(ctx context.Context, name, excludeID string) error {
	existing, err := s.repo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course name")
	}
	if existing.ID != excludeID {
		return appErrors.Clone(appErrors.ErrConflict, "Course name already exists")
	}
	return nil
}

// reload returns the stored row so derived counters are populated.
func (s *CourseService) reload(ctx context.Context, course *models.Course) (*models.Course, error) {
	stored, err := s.repo.FindByID(ctx, course.ID)
	if err != nil {
		s.logger.Warn("reload course failed", zap.String("course_id", course.ID), zap.Error(err))
		return course, nil
	}
	return stored, nil
}

func mapCourseWriteError(err error, message string) error {
	if repository.IsUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrConflict, "Course name already exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
