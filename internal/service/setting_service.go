package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type settingRepository interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error)
	Get(ctx context.Context, key string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
	BulkUpsert(ctx context.Context, settings []models.Setting) error
}

type allowedSetting struct {
	Key         string
	Type        models.SettingType
	Description string
	Default     string
	Min         int
	Max         int
}

var allowedSettingKeys = []string{
	models.SettingSessionTimeout,
	models.SettingQRCodeExpiration,
	models.SettingLateGracePeriod,
	models.SettingApplicationTimezone,
	models.SettingAllowSelfRegistration,
}

var allowedSettings = map[string]allowedSetting{
	models.SettingSessionTimeout: {
		Key:         models.SettingSessionTimeout,
		Type:        models.SettingTypeInteger,
		Description: "Minutes of inactivity before a portal session ends",
		Default:     "30",
		Min:         1,
		Max:         1440,
	},
	models.SettingQRCodeExpiration: {
		Key:         models.SettingQRCodeExpiration,
		Type:        models.SettingTypeInteger,
		Description: "Default lifetime of attendance QR codes in minutes",
		Default:     "5",
		Min:         1,
		Max:         240,
	},
	models.SettingLateGracePeriod: {
		Key:         models.SettingLateGracePeriod,
		Type:        models.SettingTypeInteger,
		Description: "Minutes after session start before a mark counts as late",
		Default:     "10",
		Min:         0,
		Max:         240,
	},
	models.SettingApplicationTimezone: {
		Key:         models.SettingApplicationTimezone,
		Type:        models.SettingTypeTimezone,
		Description: "IANA timezone used for dates shown in the portal",
		Default:     "UTC",
	},
	models.SettingAllowSelfRegistration: {
		Key:         models.SettingAllowSelfRegistration,
		Type:        models.SettingTypeBoolean,
		Description: "Whether visitors may create their own accounts",
		Default:     "true",
	},
}

// SettingServiceConfig tunes runtime behaviour.
type SettingServiceConfig struct {
	// Defaults overrides the built-in default per key.
	Defaults map[string]string
	// CacheTTL keeps looked-up values in memory between reads. Zero disables it.
	CacheTTL time.Duration
}

type cachedSetting struct {
	value   string
	fetched time.Time
}

// SettingService manages the admin tunables.
type SettingService struct {
	repo      settingRepository
	activity  activityRecorder
	validator *validator.Validate
	logger    *zap.Logger
	defaults  map[string]string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedSetting
}

// NewSettingService constructs a SettingService.
func NewSettingService(repo settingRepository, activity activityRecorder, validate *validator.Validate, logger *zap.Logger, cfg SettingServiceConfig) *SettingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if activity == nil {
		activity = nopRecorder{}
	}
	defaults := make(map[string]string, len(allowedSettings))
	for key, meta := range allowedSettings {
		defaults[key] = meta.Default
	}
	for key, value := range cfg.Defaults {
		if _, ok := allowedSettings[key]; !ok || value == "" {
			continue
		}
		defaults[key] = value
	}
	return &SettingService{
		repo:      repo,
		activity:  activity,
		validator: validate,
		logger:    logger,
		defaults:  defaults,
		ttl:       cfg.CacheTTL,
		now:       time.Now,
		cache:     make(map[string]cachedSetting),
	}
}

// List returns every allowed setting, falling back to defaults for unset keys.
func (s *SettingService) List(ctx context.Context) ([]dto.SettingItem, error) {
	rows, err := s.repo.ListByKeys(ctx, allowedSettingKeys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	existing := make(map[string]models.Setting, len(rows))
	for _, row := range rows {
		existing[row.Key] = row
	}

	items := make([]dto.SettingItem, 0, len(allowedSettingKeys))
	for _, key := range allowedSettingKeys {
		meta := allowedSettings[key]
		item := dto.SettingItem{Key: key, Value: s.defaults[key], Type: string(meta.Type), Description: meta.Description}
		if row, ok := existing[key]; ok {
			item.Value = row.Value
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns a single setting.
func (s *SettingService) Get(ctx context.Context, key string) (*dto.SettingItem, error) {
	meta, err := requireAllowedSetting(key)
	if err != nil {
		return nil, err
	}
	value, err := s.valueOrDefault(ctx, key)
	if err != nil {
		return nil, err
	}
	return &dto.SettingItem{Key: key, Value: value, Type: string(meta.Type), Description: meta.Description}, nil
}

// Update validates and stores a single setting.
func (s *SettingService) Update(ctx context.Context, key, value string, actor *models.JWTClaims) (*dto.SettingItem, error) {
	items, err := s.BulkUpdate(ctx, dto.BulkUpdateSettingsRequest{Items: []dto.UpdateSettingRequest{{Key: key, Value: value}}}, actor)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// BulkUpdate applies every item or none of them.
func (s *SettingService) BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingsRequest, actor *models.JWTClaims) ([]dto.SettingItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}

	toUpsert := make([]models.Setting, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		meta, err := requireAllowedSetting(item.Key)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[item.Key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is listed more than once", item.Key))
		}
		seen[item.Key] = struct{}{}

		normalized, err := normalizeSettingValue(meta, item.Value)
		if err != nil {
			return nil, err
		}
		toUpsert = append(toUpsert, models.Setting{
			Key:         item.Key,
			Value:       normalized,
			Type:        meta.Type,
			Description: strPtr(meta.Description),
			UpdatedBy:   actorID(actor),
		})
	}

	if err := s.repo.BulkUpsert(ctx, toUpsert); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
	}

	result := make([]dto.SettingItem, 0, len(toUpsert))
	changes := make(map[string]interface{}, len(toUpsert))
	s.mu.Lock()
	for _, setting := range toUpsert {
		delete(s.cache, setting.Key)
		changes[setting.Key] = setting.Value
		result = append(result, dto.SettingItem{
			Key:         setting.Key,
			Value:       setting.Value,
			Type:        string(setting.Type),
			Description: allowedSettings[setting.Key].Description,
		})
	}
	s.mu.Unlock()

	s.activity.Record(ctx, logEntry(models.LogLevelInfo, models.LogActionSettingsUpdate, "settings", "Settings updated", actor, changes))
	return result, nil
}

// IntSetting returns the integer value of key, or fallback when it is unset
// or unreadable.
func (s *SettingService) IntSetting(ctx context.Context, key string, fallback int) int {
	raw, ok := s.lookup(ctx, key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// BoolSetting returns the boolean value of key, or fallback.
func (s *SettingService) BoolSetting(ctx context.Context, key string, fallback bool) bool {
	raw, ok := s.lookup(ctx, key)
	if !ok {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

// Location resolves the configured application timezone.
func (s *SettingService) Location(ctx context.Context) *time.Location {
	raw, ok := s.lookup(ctx, models.SettingApplicationTimezone)
	if !ok {
		return time.UTC
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		return time.UTC
	}
	return loc
}

// lookup reads a stored value only. Built-in defaults are left to callers so
// that config supplied fallbacks win over them.
func (s *SettingService) lookup(ctx context.Context, key string) (string, bool) {
	if s.ttl > 0 {
		s.mu.RLock()
		entry, ok := s.cache[key]
		s.mu.RUnlock()
		if ok && s.now().Sub(entry.fetched) < s.ttl {
			return entry.value, entry.value != ""
		}
	}

	setting, err := s.repo.Get(ctx, key)
	value := ""
	switch {
	case err == nil:
		value = setting.Value
	case errors.Is(err, sql.ErrNoRows):
	default:
		s.logger.Warn("failed to read setting", zap.String("key", key), zap.Error(err))
		return "", false
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[key] = cachedSetting{value: value, fetched: s.now()}
		s.mu.Unlock()
	}
	return value, value != ""
}

func (s *SettingService) valueOrDefault(ctx context.Context, key string) (string, error) {
	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaults[key], nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get setting")
	}
	return setting.Value, nil
}

func requireAllowedSetting(key string) (allowedSetting, error) {
	meta, ok := allowedSettings[key]
	if !ok {
		return allowedSetting{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("Unknown setting: %s", key))
	}
	return meta, nil
}

func normalizeSettingValue(meta allowedSetting, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch meta.Type {
	case models.SettingTypeBoolean:
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return "true", nil
		case "false", "0", "no":
			return "false", nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects a boolean value", meta.Key))
	case models.SettingTypeInteger:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects a whole number of minutes", meta.Key))
		}
		if n < meta.Min || n > meta.Max {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be between %d and %d", meta.Key, meta.Min, meta.Max))
		}
		return strconv.Itoa(n), nil
	case models.SettingTypeTimezone:
		if value == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s requires a timezone name", meta.Key))
		}
		if _, err := time.LoadLocation(value); err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is not a known timezone", value))
		}
		return value, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported setting type")
	}
}

func actorID(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}
