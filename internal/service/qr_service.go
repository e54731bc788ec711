package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type qrSessionRepository interface {
	sessionFinder
	ActivateQR(ctx context.Context, id string, update models.SessionQRUpdate, now time.Time) (bool, error)
	DeactivateQR(ctx context.Context, id string, now time.Time) (bool, error)
}

type qrEncoder interface {
	ScanURL(sessionID, code string) string
	DataURL(content string) (string, error)
}

// QRServiceConfig bounds the lifetime of issued codes.
type QRServiceConfig struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
}

// QRService issues and revokes attendance QR codes.
type QRService struct {
	sessions qrSessionRepository
	encoder  qrEncoder
	settings settingsLookup
	activity activityRecorder
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      QRServiceConfig
	now      func() time.Time
}

// NewQRService constructs a QRService. settings, activity and metrics may be nil.
func NewQRService(sessions qrSessionRepository, encoder qrEncoder, settings settingsLookup, activity activityRecorder, metrics *MetricsService, logger *zap.Logger, cfg QRServiceConfig) *QRService {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 5 * time.Minute
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 240 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = nopRecorder{}
	}
	return &QRService{
		sessions: sessions,
		encoder:  encoder,
		settings: settings,
		activity: activity,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Generate opens the attendance window for a session. A session with a live
// code is rejected with that code in the error details; an expired code is
// simply replaced.
func (s *QRService) Generate(ctx context.Context, sessionID string, req dto.GenerateQRRequest, actor *models.JWTClaims) (*models.QRToken, error) {
	session, err := requireSessionOwner(ctx, s.sessions, sessionID, actor)
	if err != nil {
		return nil, err
	}
	minutes, err := s.duration(ctx, req.Duration)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if session.QRActive(now) {
		return nil, activeQRError(session)
	}

	code := uuid.NewString()
	scanURL := s.encoder.ScanURL(session.ID, code)
	dataURL, err := s.encoder.DataURL(scanURL)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR code")
	}
	expiresAt := now.Add(time.Duration(minutes) * time.Minute)

	ok, err := s.sessions.ActivateQR(ctx, session.ID, models.SessionQRUpdate{
		IsActive:   true,
		QRCodeUUID: &code,
		QRCodeData: &dataURL,
		IssuedAt:   &now,
		ExpiresAt:  &expiresAt,
	}, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate QR code")
	}
	if !ok {
		// Another request won the race; report its code.
		current, err := loadSession(ctx, s.sessions, session.ID)
		if err != nil {
			return nil, err
		}
		return nil, activeQRError(current)
	}

	s.metrics.RecordQRIssued()
	entry := logEntry(models.LogLevelInfo, models.LogActionQRIssue, "sessions", "QR code generated", actor, map[string]interface{}{
		"duration_minutes": minutes,
		"expires_at":       expiresAt,
	})
	entry.ResourceID = strPtr(session.ID)
	s.activity.Record(ctx, entry)

	return &models.QRToken{
		SessionID:  session.ID,
		UUID:       code,
		QRCodeData: dataURL,
		ScanURL:    scanURL,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}, nil
}

// Deactivate closes the attendance window.
func (s *QRService) Deactivate(ctx context.Context, sessionID string, actor *models.JWTClaims) error {
	session, err := requireSessionOwner(ctx, s.sessions, sessionID, actor)
	if err != nil {
		return err
	}
	ok, err := s.sessions.DeactivateQR(ctx, session.ID, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate QR code")
	}
	if !ok {
		return appErrors.ErrQRInactive
	}
	entry := logEntry(models.LogLevelInfo, models.LogActionQRRevoke, "sessions", "QR code deactivated", actor, nil)
	entry.ResourceID = strPtr(session.ID)
	s.activity.Record(ctx, entry)
	return nil
}

// Status reports whether the session is accepting scans right now.
func (s *QRService) Status(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.QRStatus, error) {
	session, err := requireSessionOwner(ctx, s.sessions, sessionID, actor)
	if err != nil {
		return nil, err
	}
	if !session.QRActive(s.now()) {
		return &models.QRStatus{IsActive: false, Message: "QR code is not active for this session"}, nil
	}
	return &models.QRStatus{
		IsActive:   true,
		QRCodeData: session.QRCodeData,
		ExpiresAt:  session.ExpiresAt,
		Message:    "QR code is active",
	}, nil
}

// duration resolves the requested lifetime in minutes. The stored
// qr_code_expiration setting replaces the configured default when present.
func (s *QRService) duration(ctx context.Context, requested *int) (int, error) {
	maxMinutes := int(s.cfg.MaxDuration / time.Minute)
	if requested == nil {
		minutes := int(s.cfg.DefaultDuration / time.Minute)
		if s.settings != nil {
			minutes = s.settings.IntSetting(ctx, models.SettingQRCodeExpiration, minutes)
		}
		if minutes <= 0 || minutes > maxMinutes {
			minutes = int(s.cfg.DefaultDuration / time.Minute)
		}
		return minutes, nil
	}
	if *requested <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "duration must be a positive number of minutes")
	}
	if *requested > maxMinutes {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration cannot exceed %d minutes", maxMinutes))
	}
	return *requested, nil
}

func activeQRError(session *models.Session) error {
	return appErrors.WithDetails(appErrors.ErrQRActive, map[string]interface{}{
		"qr_code_data": session.QRCodeData,
		"expires_at":   session.ExpiresAt,
	})
}
