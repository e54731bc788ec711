package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type settingRepoStub struct {
	data      map[string]models.Setting
	gets      int
	bulkCalls int
	getErr    error
}

func newSettingRepoStub() *settingRepoStub {
	return &settingRepoStub{data: make(map[string]models.Setting)}
}

func (s *settingRepoStub) ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error) {
	var result []models.Setting
	for _, key := range keys {
		if setting, ok := s.data[key]; ok {
			result = append(result, setting)
		}
	}
	return result, nil
}

func (s *settingRepoStub) Get(ctx context.Context, key string) (*models.Setting, error) {
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	setting, ok := s.data[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &setting, nil
}

func (s *settingRepoStub) Upsert(ctx context.Context, setting *models.Setting) error {
	s.data[setting.Key] = *setting
	return nil
}

func (s *settingRepoStub) BulkUpsert(ctx context.Context, settings []models.Setting) error {
	s.bulkCalls++
	for _, setting := range settings {
		s.data[setting.Key] = setting
	}
	return nil
}

func TestSettingServiceListReturnsDefaults(t *testing.T) {
	repo := newSettingRepoStub()
	repo.data[models.SettingQRCodeExpiration] = models.Setting{Key: models.SettingQRCodeExpiration, Value: "15", Type: models.SettingTypeInteger}
	svc := NewSettingService(repo, nil, nil, zap.NewNop(), SettingServiceConfig{Defaults: map[string]string{models.SettingSessionTimeout: "45", "unknown": "x"}})

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, len(allowedSettingKeys))

	values := map[string]string{}
	for _, item := range items {
		values[item.Key] = item.Value
	}
	assert.Equal(t, "15", values[models.SettingQRCodeExpiration])
	assert.Equal(t, "45", values[models.SettingSessionTimeout])
	assert.Equal(t, "UTC", values[models.SettingApplicationTimezone])
	assert.Equal(t, "true", values[models.SettingAllowSelfRegistration])
}

func TestSettingServiceBulkUpdateValidates(t *testing.T) {
	repo := newSettingRepoStub()
	svc := NewSettingService(repo, nil, nil, zap.NewNop(), SettingServiceConfig{})
	ctx := context.Background()
	actor := adminClaims()

	cases := []dto.UpdateSettingRequest{
		{Key: "theme", Value: "dark"},
		{Key: models.SettingQRCodeExpiration, Value: "soon"},
		{Key: models.SettingQRCodeExpiration, Value: "0"},
		{Key: models.SettingAllowSelfRegistration, Value: "maybe"},
		{Key: models.SettingApplicationTimezone, Value: "Mars/Olympus"},
	}
	for _, tc := range cases {
		_, err := svc.BulkUpdate(ctx, dto.BulkUpdateSettingsRequest{Items: []dto.UpdateSettingRequest{tc}}, actor)
		assert.ErrorIs(t, err, appErrors.ErrValidation, tc.Key+"="+tc.Value)
	}
	assert.Zero(t, repo.bulkCalls)

	_, err := svc.BulkUpdate(ctx, dto.BulkUpdateSettingsRequest{Items: []dto.UpdateSettingRequest{
		{Key: models.SettingLateGracePeriod, Value: "5"},
		{Key: models.SettingLateGracePeriod, Value: "6"},
	}}, actor)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSettingServiceBulkUpdateNormalizes(t *testing.T) {
	repo := newSettingRepoStub()
	activity := &recordingActivity{}
	svc := NewSettingService(repo, activity, nil, zap.NewNop(), SettingServiceConfig{})

	items, err := svc.BulkUpdate(context.Background(), dto.BulkUpdateSettingsRequest{Items: []dto.UpdateSettingRequest{
		{Key: models.SettingAllowSelfRegistration, Value: " No "},
		{Key: models.SettingQRCodeExpiration, Value: "010"},
		{Key: models.SettingApplicationTimezone, Value: "Asia/Colombo"},
	}}, adminClaims())
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "false", repo.data[models.SettingAllowSelfRegistration].Value)
	assert.Equal(t, "10", repo.data[models.SettingQRCodeExpiration].Value)
	require.NotNil(t, repo.data[models.SettingQRCodeExpiration].UpdatedBy)
	assert.Equal(t, "admin-1", *repo.data[models.SettingQRCodeExpiration].UpdatedBy)
	assert.Equal(t, []string{models.LogActionSettingsUpdate}, activity.actions())
}

func TestSettingServiceTypedLookups(t *testing.T) {
	repo := newSettingRepoStub()
	repo.data[models.SettingQRCodeExpiration] = models.Setting{Key: models.SettingQRCodeExpiration, Value: "12"}
	repo.data[models.SettingAllowSelfRegistration] = models.Setting{Key: models.SettingAllowSelfRegistration, Value: "false"}
	repo.data[models.SettingApplicationTimezone] = models.Setting{Key: models.SettingApplicationTimezone, Value: "Europe/Berlin"}
	svc := NewSettingService(repo, nil, nil, zap.NewNop(), SettingServiceConfig{})
	ctx := context.Background()

	assert.Equal(t, 12, svc.IntSetting(ctx, models.SettingQRCodeExpiration, 5))
	assert.Equal(t, 30, svc.IntSetting(ctx, models.SettingSessionTimeout, 30))
	assert.False(t, svc.BoolSetting(ctx, models.SettingAllowSelfRegistration, true))
	assert.Equal(t, "Europe/Berlin", svc.Location(ctx).String())

	repo.getErr = errors.New("db down")
	assert.Equal(t, 7, svc.IntSetting(ctx, models.SettingQRCodeExpiration, 7))
}

func TestSettingServiceCachesLookupsUntilUpdate(t *testing.T) {
	repo := newSettingRepoStub()
	repo.data[models.SettingQRCodeExpiration] = models.Setting{Key: models.SettingQRCodeExpiration, Value: "12"}
	svc := NewSettingService(repo, nil, nil, zap.NewNop(), SettingServiceConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	assert.Equal(t, 12, svc.IntSetting(ctx, models.SettingQRCodeExpiration, 5))
	assert.Equal(t, 12, svc.IntSetting(ctx, models.SettingQRCodeExpiration, 5))
	assert.Equal(t, 1, repo.gets)

	_, err := svc.Update(ctx, models.SettingQRCodeExpiration, "20", adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 20, svc.IntSetting(ctx, models.SettingQRCodeExpiration, 5))
	assert.Equal(t, 2, repo.gets)
}

func TestSettingServiceGetUnknownKey(t *testing.T) {
	svc := NewSettingService(newSettingRepoStub(), nil, nil, zap.NewNop(), SettingServiceConfig{})
	_, err := svc.Get(context.Background(), "theme")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	item, err := svc.Get(context.Background(), models.SettingLateGracePeriod)
	require.NoError(t, err)
	assert.Equal(t, "10", item.Value)
}
