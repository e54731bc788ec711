package portal

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/pkg/client"
)

// ErrNotSignedIn is returned by Restore when no token is persisted.
var ErrNotSignedIn = errors.New("not signed in")

// Session is the signed-in state: the token lives in the client's store and
// the profile is cached here.
type Session struct {
	client *client.Client
	logger *zap.Logger

	mu      sync.RWMutex
	profile *models.Profile
}

// NewSession wraps an API client configured with a token store.
func NewSession(c *client.Client, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{client: c, logger: logger}
}

// Login authenticates, loads the profile and returns the dashboard to open.
// On failure no token is kept.
func (s *Session) Login(ctx context.Context, identifier, password string) (string, error) {
	if _, err := s.client.Login(ctx, identifier, password); err != nil {
		s.discard()
		return "", err
	}
	profile, err := s.client.Profile(ctx)
	if err != nil {
		s.discard()
		return "", err
	}
	s.setProfile(profile)
	s.logger.Info("signed in", zap.String("username", profile.Username), zap.String("role", string(profile.Role)))
	return landingPath(&profile.UserInfo), nil
}

// Restore resumes a persisted session. An invalid or expired token is
// discarded.
func (s *Session) Restore(ctx context.Context) (string, error) {
	if !s.client.Authenticated() {
		return LoginPath, ErrNotSignedIn
	}
	profile, err := s.client.Profile(ctx)
	if err != nil {
		s.logger.Warn("stored session rejected", zap.Error(err))
		s.discard()
		return LoginPath, err
	}
	s.setProfile(profile)
	return landingPath(&profile.UserInfo), nil
}

// Logout revokes the token where possible and always clears local state.
func (s *Session) Logout(ctx context.Context) string {
	if err := s.client.Logout(ctx); err != nil {
		s.logger.Warn("logout request failed", zap.Error(err))
	}
	s.discard()
	return LoginPath
}

// User returns the signed-in account, or nil.
func (s *Session) User() *models.UserInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	user := s.profile.UserInfo
	return &user
}

// Profile returns the cached profile, or nil.
func (s *Session) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// Guard checks path against the signed-in user.
func (s *Session) Guard(path string) Decision {
	return Guard(path, s.User())
}

func (s *Session) setProfile(profile *models.Profile) {
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
}

func (s *Session) discard() {
	s.setProfile(nil)
	if store := s.client.Tokens(); store != nil {
		if err := store.Clear(); err != nil {
			s.logger.Warn("failed to clear token", zap.Error(err))
		}
	}
}
