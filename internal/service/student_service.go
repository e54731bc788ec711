package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/repository"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	TaughtBy(ctx context.Context, studentID, lecturerID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Upsert(ctx context.Context, student *models.Student) (bool, error)
	Delete(ctx context.Context, id string) error
}

// StudentService handles student profiles.
type StudentService struct {
	repo      studentRepository
	users     userFinder
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, users userFinder, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = nopRecorder{}
	}
	return &StudentService{repo: repo, users: users, activity: activity, validator: validate, logger: logger}
}

// List returns students visible to the actor. Lecturers only see students
// enrolled in one of their courses.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter, actor *models.JWTClaims) ([]models.Student, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if !actor.Administrator() {
		if actor.Role != models.RoleLecturer {
			return nil, nil, appErrors.ErrForbidden
		}
		filter.LecturerID = actor.UserID
	}
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page, perPage

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, models.NewPagination(page, perPage, total), nil
}

// Get returns a student the actor may see.
func (s *StudentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Student, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Authorize(ctx, student, actor); err != nil {
		return nil, err
	}
	return student, nil
}

// Authorize checks that the actor may read the student's data: admins, a
// lecturer teaching one of the student's courses, or the student themself.
func (s *StudentService) Authorize(ctx context.Context, student *models.Student, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch {
	case actor.Administrator():
		return nil
	case actor.Role == models.RoleStudent:
		if student.UserID != nil && *student.UserID == actor.UserID {
			return nil
		}
	case actor.Role == models.RoleLecturer:
		ok, err := s.repo.TaughtBy(ctx, student.ID, actor.UserID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student access")
		}
		if ok {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "You do not have access to this student")
}

// ForUser returns the student profile linked to a user account.
func (s *StudentService) ForUser(ctx context.Context, userID string) (*models.Student, error) {
	student, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return student, nil
}

// Create adds a student profile.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest, actor *models.JWTClaims) (*models.Student, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.ensureIndexFree(ctx, req.StudentID, ""); err != nil {
		return nil, err
	}
	userID, err := s.linkableUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		StudentID: req.StudentID,
		Name:      req.Name,
		Email:     blankToNil(req.Email),
		ClassName: blankToNil(req.ClassName),
		Major:     blankToNil(req.Major),
		UserID:    userID,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, mapStudentWriteError(err, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.StudentID), zap.String("actor", actorName(actor)))
	return student, nil
}

// Update applies a partial update.
func (s *StudentService) Update(ctx context.Context, id string, req dto.UpdateStudentRequest, actor *models.JWTClaims) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.StudentID != nil {
		index := strings.TrimSpace(*req.StudentID)
		if index != student.StudentID {
			if err := s.ensureIndexFree(ctx, index, student.ID); err != nil {
				return nil, err
			}
			student.StudentID = index
		}
	}
	if req.Name != nil {
		student.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		student.Email = blankToNil(req.Email)
	}
	if req.ClassName != nil {
		student.ClassName = blankToNil(req.ClassName)
	}
	if req.Major != nil {
		student.Major = blankToNil(req.Major)
	}
	if req.UserID != nil {
		userID, err := s.linkableUser(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		student.UserID = userID
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, mapStudentWriteError(err, "failed to update student")
	}
	s.logger.Info("student updated", zap.String("id", student.ID), zap.String("actor", actorName(actor)))
	return student, nil
}

// Delete removes a student profile and its marks.
func (s *StudentService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("id", id), zap.String("actor", actorName(actor)))
	return nil
}

// Import upserts rows keyed by index number. Invalid rows are reported and
// skipped; the rest are applied.
func (s *StudentService) Import(ctx context.Context, rows []dto.ImportStudentRow, actor *models.JWTClaims) (*dto.ImportResult, error) {
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Import payload must be a non-empty list of students")
	}
	result := &dto.ImportResult{Errors: []dto.ImportFailure{}}
	fail := func(i int, row dto.ImportStudentRow, reason string) {
		result.Failed++
		result.Errors = append(result.Errors, dto.ImportFailure{Row: i + 1, StudentID: row.StudentID, Reason: reason})
	}

	for i, row := range rows {
		row.StudentID = strings.TrimSpace(row.StudentID)
		row.Name = strings.TrimSpace(row.Name)
		if row.StudentID == "" || row.Name == "" {
			fail(i, row, "student_id and name are required")
			continue
		}
		email := blankToNil(row.Email)
		if email != nil {
			if err := s.validator.Var(*email, "email"); err != nil {
				fail(i, row, "invalid email")
				continue
			}
		}
		student := &models.Student{
			StudentID: row.StudentID,
			Name:      row.Name,
			Email:     email,
			ClassName: blankToNil(row.ClassName),
			Major:     blankToNil(row.Major),
		}
		inserted, err := s.repo.Upsert(ctx, student)
		if err != nil {
			if repository.IsUniqueViolation(err) {
				fail(i, row, "email already belongs to another student")
				continue
			}
			s.logger.Warn("student import row failed", zap.Int("row", i+1), zap.Error(err))
			fail(i, row, "could not be saved")
			continue
		}
		if inserted {
			result.Imported++
		} else {
			result.Updated++
		}
	}

	entry := logEntry(models.LogLevelInfo, models.LogActionImport, "students", "Students imported", actor, map[string]interface{}{
		"imported": result.Imported,
		"updated":  result.Updated,
		"failed":   result.Failed,
	})
	if result.Failed > 0 {
		entry.Level = models.LogLevelWarning
	}
	s.activity.Record(ctx, entry)
	return result, nil
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) ensureIndexFree(ctx context.Context, index, excludeID string) error {
	existing, err := s.repo.FindByStudentID(ctx, index)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student id")
	}
	if existing.ID != excludeID {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("Student ID %s already exists", index))
	}
	return nil
}

// linkableUser validates an optional user link. Blank clears the link.
func (s *StudentService) linkableUser(ctx context.Context, userID *string) (*string, error) {
	id := blankToNil(userID)
	if id == nil {
		return nil, nil
	}
	user, err := s.users.FindByID(ctx, *id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "user_id does not reference a user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Administrator() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "An admin account cannot be linked to a student profile")
	}
	return id, nil
}

func mapStudentWriteError(err error, message string) error {
	if repository.IsUniqueViolation(err) {
		constraint := repository.ConstraintName(err)
		switch {
		case strings.Contains(constraint, "email"):
			return appErrors.Clone(appErrors.ErrConflict, "Email already belongs to another student")
		case strings.Contains(constraint, "user_id"):
			return appErrors.Clone(appErrors.ErrConflict, "User is already linked to another student")
		default:
			return appErrors.Clone(appErrors.ErrConflict, "Student ID already exists")
		}
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func blankToNil(value *string) *string {
	if value == nil {
		return nil
	}
	return strPtr(strings.TrimSpace(*value))
}

func actorName(actor *models.JWTClaims) string {
	if actor == nil {
		return "system"
	}
	return actor.Username
}
