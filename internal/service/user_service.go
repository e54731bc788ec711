package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/internal/repository"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Username string          `json:"username" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin lecturer student"`
	IsAdmin  bool            `json:"is_admin"`
}

// UpdateUserRequest is a partial update; nil fields are left unchanged.
type UpdateUserRequest struct {
	Username *string          `json:"username"`
	Email    *string          `json:"email" validate:"omitempty,email"`
	Password *string          `json:"password" validate:"omitempty,min=8"`
	Role     *models.UserRole `json:"role" validate:"omitempty,oneof=admin lecturer student"`
	IsAdmin  *bool            `json:"is_admin"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, activity activityRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if activity == nil {
		activity = nopRecorder{}
	}
	return &UserService{repo: repo, activity: activity, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page, perPage

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, models.NewPagination(page, perPage, total), nil
}

// Lecturers returns every lecturer account.
func (s *UserService) Lecturers(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.ListByRole(ctx, models.RoleLecturer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturers")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if !usernamePattern.MatchString(req.Username) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Username must be 3-50 letters, digits or underscores")
	}
	if err := s.ensureUnique(ctx, req.Username, req.Email, ""); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		IsAdmin:      req.IsAdmin || req.Role == models.RoleAdmin,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapUserWriteError(err, "failed to create user")
	}

	s.recordChange(ctx, models.LogActionUserCreate, "User created", user, actor)
	return user, nil
}

// Update applies a partial update, including password resets.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update user payload")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	username, email := "", ""
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		if !usernamePattern.MatchString(trimmed) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "Username must be 3-50 letters, digits or underscores")
		}
		if trimmed != user.Username {
			username = trimmed
		}
	}
	if req.Email != nil {
		trimmed := strings.TrimSpace(*req.Email)
		if !strings.EqualFold(trimmed, user.Email) {
			email = trimmed
		}
	}
	if username != "" || email != "" {
		if err := s.ensureUnique(ctx, username, email, user.ID); err != nil {
			return nil, err
		}
	}
	if username != "" {
		user.Username = username
	}
	if email != "" {
		user.Email = email
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsAdmin != nil {
		user.IsAdmin = *req.IsAdmin
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, mapUserWriteError(err, "failed to update user")
	}

	s.recordChange(ctx, models.LogActionUserUpdate, "User updated", user, actor)
	return user, nil
}

// Delete removes a user. Admins may delete anyone but themselves; other
// users may only delete their own account.
func (s *UserService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Administrator() {
		if actor.UserID == id {
			return appErrors.Clone(appErrors.ErrForbidden, "Admins cannot delete their own account")
		}
	} else if actor.UserID != id {
		return appErrors.ErrForbidden
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.recordChange(ctx, models.LogActionUserDelete, "User deleted", user, actor)
	return nil
}

// EnsureAdmin creates the bootstrap administrator when no account uses the
// configured username. It returns true when a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	admin := &models.User{Username: username, Email: email, PasswordHash: string(hash), Role: models.RoleAdmin, IsAdmin: true}
	if err := s.repo.Create(ctx, admin); err != nil {
		return false, mapUserWriteError(err, "failed to create admin")
	}
	s.logger.Info("bootstrap admin created", zap.String("username", username))
	return true, nil
}

func (s *UserService) ensureUnique(ctx context.Context, username, email, excludeID string) error {
	usernameTaken, emailTaken, err := s.repo.ExistsByUsernameOrEmail(ctx, username, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing users")
	}
	if usernameTaken {
		return appErrors.Clone(appErrors.ErrConflict, "Username already exists")
	}
	if emailTaken {
		return appErrors.Clone(appErrors.ErrConflict, "Email already exists")
	}
	return nil
}

func (s *UserService) recordChange(ctx context.Context, action, message string, user *models.User, actor *models.JWTClaims) {
	entry := logEntry(models.LogLevelInfo, action, "users", message, actor, map[string]interface{}{
		"username": user.Username,
		"role":     user.Role,
	})
	entry.ResourceID = strPtr(user.ID)
	s.activity.Record(ctx, entry)
}

// mapUserWriteError converts unique constraint races into 409s.
func mapUserWriteError(err error, message string) error {
	if repository.IsUniqueViolation(err) {
		if strings.Contains(repository.ConstraintName(err), "email") {
			return appErrors.Clone(appErrors.ErrConflict, "Email already exists")
		}
		return appErrors.Clone(appErrors.ErrConflict, "Username already exists")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
