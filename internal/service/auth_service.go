package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,50}$`)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type tokenDenylist interface {
	Revoke(ctx context.Context, token *models.RevokedToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type profileStudentReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type profileCourseReader interface {
	ListAll(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
}

type settingsLookup interface {
	BoolSetting(ctx context.Context, key string, fallback bool) bool
	IntSetting(ctx context.Context, key string, fallback int) int
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService provides authentication use cases.
type AuthService struct {
	repo      authUserRepository
	denylist  tokenDenylist
	students  profileStudentReader
	courses   profileCourseReader
	settings  settingsLookup
	activity  activityRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// AuthDeps groups the collaborators of AuthService that are not required for token handling.
type AuthDeps struct {
	Students profileStudentReader
	Courses  profileCourseReader
	Settings settingsLookup
	Activity activityRecorder
	Metrics  *MetricsService
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, denylist tokenDenylist, deps AuthDeps, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	if deps.Activity == nil {
		deps.Activity = nopRecorder{}
	}
	return &AuthService{
		repo:      repo,
		denylist:  denylist,
		students:  deps.Students,
		courses:   deps.Courses,
		settings:  deps.Settings,
		activity:  deps.Activity,
		metrics:   deps.Metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates by username or email and issues an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	principal := req.Principal()
	if principal == "" || req.Password == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Username and password are required")
	}

	var (
		user *models.User
		err  error
	)
	if strings.Contains(principal, "@") {
		user, err = s.repo.FindByEmail(ctx, principal)
	} else {
		if !usernamePattern.MatchString(principal) {
			s.recordFailedLogin(ctx, principal, req, "malformed username")
			return nil, appErrors.ErrInvalidCredentials
		}
		user, err = s.repo.FindByUsername(ctx, principal)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordFailedLogin(ctx, principal, req, "unknown user")
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordFailedLogin(ctx, principal, req, "bad password")
		return nil, appErrors.ErrInvalidCredentials
	}

	token, expiresAt, err := s.generateAccessToken(user)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.metrics.RecordLogin(true)
	entry := logEntry(models.LogLevelInfo, models.LogActionLogin, "auth", "User logged in", &models.JWTClaims{UserID: user.ID, Username: user.Username}, nil)
	entry.IPAddress, entry.UserAgent = strPtr(req.IP), strPtr(req.UserAgent)
	s.activity.Record(ctx, entry)

	return &models.LoginResponse{
		AccessToken: token,
		Role:        user.Role,
		IsAdmin:     user.IsAdmin,
		ExpiresAt:   expiresAt,
		RedirectTo:  models.DashboardPath(user.Role, user.IsAdmin),
		User:        user.Info(),
	}, nil
}

func (s *AuthService) recordFailedLogin(ctx context.Context, principal string, req models.LoginRequest, reason string) {
	s.metrics.RecordLogin(false)
	entry := logEntry(models.LogLevelWarning, models.LogActionLoginFailed, "auth", "Login failed", nil, map[string]interface{}{"reason": reason})
	entry.Username = strPtr(principal)
	entry.IPAddress, entry.UserAgent = strPtr(req.IP), strPtr(req.UserAgent)
	s.activity.Record(ctx, entry)
}

// Logout denylists the token identified by claims until it would have expired.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims) error {
	if claims == nil || claims.ID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "token has no identifier")
	}
	expiresAt := s.now().Add(s.config.AccessTokenExpiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(ctx, &models.RevokedToken{JTI: claims.ID, UserID: strPtr(claims.UserID), ExpiresAt: expiresAt}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke token")
	}
	s.activity.Record(ctx, logEntry(models.LogLevelInfo, models.LogActionLogout, "auth", "User logged out", claims, nil))
	return nil
}

// Register creates a student or lecturer account.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	if s.settings != nil && !s.settings.BoolSetting(ctx, models.SettingAllowSelfRegistration, true) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Self registration is disabled")
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if !usernamePattern.MatchString(req.Username) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Username must be 3-50 letters, digits or underscores")
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	if req.Role != models.RoleStudent && req.Role != models.RoleLecturer {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be student or lecturer")
	}

	if err := s.ensureUnique(ctx, req.Username, req.Email, ""); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{Username: req.Username, Email: req.Email, PasswordHash: string(hash), Role: req.Role}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, mapUserWriteError(err, "failed to create user")
	}

	entry := logEntry(models.LogLevelInfo, models.LogActionRegister, "users", "User registered", &models.JWTClaims{UserID: user.ID, Username: user.Username}, map[string]interface{}{"role": user.Role})
	entry.ResourceID = strPtr(user.ID)
	s.activity.Record(ctx, entry)

	info := user.Info()
	return &info, nil
}

// Profile returns the caller's account plus role specific context.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	profile := &models.Profile{UserInfo: user.Info()}
	switch user.Role {
	case models.RoleStudent:
		if s.students == nil {
			break
		}
		student, err := s.students.FindByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		profile.StudentProfile = student
		if s.courses != nil {
			courses, err := s.courses.ListAll(ctx, models.CourseFilter{StudentProfileID: student.ID})
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolled courses")
			}
			profile.EnrolledCourses = courses
		}
	case models.RoleLecturer:
		if s.courses == nil {
			break
		}
		courses, err := s.courses.ListAll(ctx, models.CourseFilter{LecturerID: user.ID})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load taught courses")
		}
		profile.TaughtCourses = courses
	}
	return profile, nil
}

// UpdateProfile changes the caller's email or password. Either change
// requires the current password.
func (s *AuthService) UpdateProfile(ctx context.Context, claims *models.JWTClaims, req models.UpdateProfileRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if req.Email == nil && req.Password == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}
	if req.CurrentPassword == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "current_password is required")
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Current password is incorrect")
	}

	changed := make([]string, 0, 2)
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if !strings.EqualFold(email, user.Email) {
			if err := s.ensureUnique(ctx, "", email, user.ID); err != nil {
				return nil, err
			}
			user.Email = email
			changed = append(changed, "email")
		}
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
		changed = append(changed, "password")
	}

	if len(changed) > 0 {
		if err := s.repo.Update(ctx, user); err != nil {
			return nil, mapUserWriteError(err, "failed to update profile")
		}
		s.activity.Record(ctx, logEntry(models.LogLevelInfo, models.LogActionProfileUpdate, "users", "Profile updated", claims, map[string]interface{}{"fields": changed}))
	}

	info := user.Info()
	return &info, nil
}

// ValidateToken parses an access token and rejects denylisted ones.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	if claims.ID != "" && s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check token")
		}
		if revoked {
			return nil, appErrors.ErrTokenRevoked
		}
	}
	return claims, nil
}

// StartDenylistSweep purges expired denylist entries on every tick.
func (s *AuthService) StartDenylistSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.denylist == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := s.denylist.PurgeExpired(ctx, s.now())
				if err != nil {
					s.logger.Warn("token denylist purge failed", zap.Error(err))
					continue
				}
				if purged > 0 {
					s.logger.Debug("token denylist purged", zap.Int64("removed", purged))
				}
			}
		}
	}()
}

func (s *AuthService) ensureUnique(ctx context.Context, username, email, excludeID string) error {
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

func (s *AuthService) generateAccessToken(user *models.User) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		IsAdmin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
