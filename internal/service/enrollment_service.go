package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type enrollmentRepository interface {
	Enroll(ctx context.Context, courseID string, studentIDs []string) (int, error)
	Unenroll(ctx context.Context, courseID string, studentIDs []string) (int, error)
}

type enrollmentStudentReader interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Student, error)
}

type attendanceCacheInvalidator interface {
	InvalidateAttendance(ctx context.Context)
}

// EnrollmentService links students to courses.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseFinder
	students  enrollmentStudentReader
	cache     attendanceCacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService. cache may be nil.
func NewEnrollmentService(repo enrollmentRepository, courses courseFinder, students enrollmentStudentReader, cache attendanceCacheInvalidator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, students: students, cache: cache, validator: validate, logger: logger}
}

// Students lists the students enrolled in a course.
func (s *EnrollmentService) Students(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Student, error) {
	if _, err := requireCourseOwner(ctx, s.courses, courseID, actor); err != nil {
		return nil, err
	}
	students, err := s.students.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Enroll adds students to a course. Every id must exist; students already
// enrolled are counted but left as they are.
func (s *EnrollmentService) Enroll(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) (*dto.EnrollResult, error) {
	ids, err := s.prepare(ctx, courseID, req, actor)
	if err != nil {
		return nil, err
	}

	found, err := s.students.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	known := make(map[string]struct{}, len(found))
	for _, student := range found {
		known[student.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		notFound := appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Students not found: %s", strings.Join(missing, ", ")))
		return nil, appErrors.WithDetails(notFound, map[string]interface{}{"missing_student_ids": missing})
	}

	added, err := s.repo.Enroll(ctx, courseID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll students")
	}
	s.invalidate(ctx)
	return &dto.EnrollResult{
		Message:         fmt.Sprintf("%d student(s) enrolled", added),
		NewlyEnrolled:   added,
		AlreadyEnrolled: len(ids) - added,
	}, nil
}

// Unenroll removes students from a course. Ids that were not enrolled are
// reported, not rejected.
func (s *EnrollmentService) Unenroll(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) (*dto.UnenrollResult, error) {
	ids, err := s.prepare(ctx, courseID, req, actor)
	if err != nil {
		return nil, err
	}
	removed, err := s.repo.Unenroll(ctx, courseID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll students")
	}
	s.invalidate(ctx)
	return &dto.UnenrollResult{
		Message:     fmt.Sprintf("%d student(s) unenrolled", removed),
		Unenrolled:  removed,
		NotEnrolled: len(ids) - removed,
	}, nil
}

func (s *EnrollmentService) prepare(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) ([]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_ids must be a non-empty list")
	}
	if _, err := requireCourseOwner(ctx, s.courses, courseID, actor); err != nil {
		return nil, err
	}
	ids := uniqueIDs(req.StudentIDs)
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_ids must be a non-empty list")
	}
	return ids, nil
}

func (s *EnrollmentService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateAttendance(ctx)
	}
}

// uniqueIDs trims, drops blanks and removes duplicates keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
