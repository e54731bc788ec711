package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type stubUserCounter struct {
	total  int
	byRole []models.LabelCount
	calls  int
}

func (s *stubUserCounter) Count(ctx context.Context) (int, error) {
	s.calls++
	return s.total, nil
}

func (s *stubUserCounter) CountByRole(ctx context.Context) ([]models.LabelCount, error) {
	return s.byRole, nil
}

type stubCourseCounter struct {
	total int
	err   error
}

func (s stubCourseCounter) Count(ctx context.Context) (int, error) {
	return s.total, s.err
}

type stubActiveSessions struct {
	active int
	calls  int
}

func (s *stubActiveSessions) CountActive(ctx context.Context, now time.Time) (int, error) {
	s.calls++
	return s.active, nil
}

type stubRates []models.CourseRate

func (s stubRates) CourseRates(ctx context.Context, filter models.ReportFilter) ([]models.CourseRate, error) {
	out := make([]models.CourseRate, len(s))
	copy(out, s)
	return out, nil
}

func TestDashboardServiceAdminStats(t *testing.T) {
	users := &stubUserCounter{total: 12}
	active := &stubActiveSessions{active: 2}
	svc := NewDashboardService(DashboardServiceParams{
		Users:    users,
		Courses:  stubCourseCounter{total: 3},
		Sessions: active,
		Rates:    stubRates{{CourseID: "c-1", Present: 6, Expected: 8}, {CourseID: "c-2", Present: 0, Expected: 2}},
		Cache:    NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true),
		Logger:   zap.NewNop(),
	})
	ctx := context.Background()

	stats, hit, err := svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 12, stats.TotalUsers)
	assert.Equal(t, 3, stats.TotalCourses)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 60.0, stats.OverallAttendance)

	active.active = 5
	stats, hit, err = svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, users.calls)
	assert.Equal(t, 5, stats.ActiveSessions)
	assert.Equal(t, 2, active.calls)
}

func TestDashboardServiceAdminStatsError(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{
		Users:    &stubUserCounter{},
		Courses:  stubCourseCounter{err: assert.AnError},
		Sessions: &stubActiveSessions{},
		Rates:    stubRates{},
	})

	_, _, err := svc.AdminStats(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestDashboardServiceAdminCharts(t *testing.T) {
	svc := NewDashboardService(DashboardServiceParams{
		Users:    &stubUserCounter{byRole: []models.LabelCount{{Label: "student", Count: 40}, {Label: "admin", Count: 1}}},
		Courses:  stubCourseCounter{},
		Sessions: &stubActiveSessions{},
		Rates:    stubRates{{CourseID: "c-1", CourseName: "Algorithms", Present: 3, Expected: 4}},
	})

	charts, hit, err := svc.AdminCharts(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []models.LabelCount{
		{Label: "admin", Count: 1},
		{Label: "lecturer", Count: 0},
		{Label: "student", Count: 40},
	}, charts.UsersByRole)
	require.Len(t, charts.CourseAttendance, 1)
	assert.Equal(t, 75.0, charts.CourseAttendance[0].Rate)
}

func TestDashboardServiceSystemMetrics(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordQRIssued()
	metrics.RecordAttendanceMark("marked")
	metrics.RecordAttendanceMark("QR_EXPIRED")
	svc := NewDashboardService(DashboardServiceParams{Metrics: metrics})

	snapshot := svc.SystemMetrics()
	assert.Equal(t, uint64(1), snapshot.QRCodesIssued)
	assert.Equal(t, uint64(1), snapshot.AttendanceMarked)
	assert.Equal(t, uint64(1), snapshot.AttendanceRejected)
	assert.False(t, snapshot.GeneratedAt.IsZero())

	empty := NewDashboardService(DashboardServiceParams{}).SystemMetrics()
	assert.False(t, empty.GeneratedAt.IsZero())
}
