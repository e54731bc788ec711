package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type userCounter interface {
	Count(ctx context.Context) (int, error)
	CountByRole(ctx context.Context) ([]models.LabelCount, error)
}

type courseCounter interface {
	Count(ctx context.Context) (int, error)
}

type activeSessionCounter interface {
	CountActive(ctx context.Context, now time.Time) (int, error)
}

type courseRateReader interface {
	CourseRates(ctx context.Context, filter models.ReportFilter) ([]models.CourseRate, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin dashboard payloads.
type DashboardService struct {
	users    userCounter
	courses  courseCounter
	sessions activeSessionCounter
	rates    courseRateReader
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Users    userCounter
	Courses  courseCounter
	Sessions activeSessionCounter
	Rates    courseRateReader
	Cache    *CacheService
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   DashboardServiceConfig
}

const (
	dashboardStatsKey  = cacheNamespaceDashboard + "admin:stats"
	dashboardChartsKey = cacheNamespaceDashboard + "admin:charts"
)

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		users:    params.Users,
		courses:  params.Courses,
		sessions: params.Sessions,
		rates:    params.Rates,
		cache:    params.Cache,
		metrics:  params.Metrics,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// AdminStats returns headline counters and whether they were served from cache.
// Active sessions are never cached since they flip as QR codes expire.
func (s *DashboardService) AdminStats(ctx context.Context) (*models.AdminDashboardStats, bool, error) {
	var stats models.AdminDashboardStats
	hit, err := s.cache.remember(ctx, dashboardStatsKey, s.cfg.CacheTTL, &stats, func() error {
		return s.composeStats(ctx, &stats)
	})
	if err != nil {
		return nil, false, err
	}
	active, err := s.sessions.CountActive(ctx, s.now().UTC())
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count active sessions")
	}
	stats.ActiveSessions = active
	return &stats, hit, nil
}

func (s *DashboardService) composeStats(ctx context.Context, stats *models.AdminDashboardStats) error {
	users, err := s.users.Count(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	courses, err := s.courses.Count(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	rates, err := s.rates.CourseRates(ctx, models.ReportFilter{})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rates")
	}
	present, expected := 0, 0
	for _, r := range rates {
		present += r.Present
		expected += r.Expected
	}
	*stats = models.AdminDashboardStats{
		TotalUsers:        users,
		TotalCourses:      courses,
		OverallAttendance: models.Percentage(present, expected),
		GeneratedAt:       s.now().UTC(),
	}
	return nil
}

// AdminCharts returns users by role and the attendance rate of every course.
func (s *DashboardService) AdminCharts(ctx context.Context) (*models.AdminDashboardCharts, bool, error) {
	var charts models.AdminDashboardCharts
	hit, err := s.cache.remember(ctx, dashboardChartsKey, s.cfg.CacheTTL, &charts, func() error {
		byRole, err := s.users.CountByRole(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users by role")
		}
		rates, err := s.rates.CourseRates(ctx, models.ReportFilter{})
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance rates")
		}
		for i := range rates {
			rates[i].Rate = models.Percentage(rates[i].Present, rates[i].Expected)
		}
		charts = models.AdminDashboardCharts{
			UsersByRole:      withAllRoles(byRole),
			CourseAttendance: rates,
			GeneratedAt:      s.now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if charts.CourseAttendance == nil {
		charts.CourseAttendance = []models.CourseRate{}
	}
	return &charts, hit, nil
}

// withAllRoles reports every role, including those without users.
func withAllRoles(counts []models.LabelCount) []models.LabelCount {
	byLabel := make(map[string]int, len(counts))
	for _, c := range counts {
		byLabel[c.Label] = c.Count
	}
	roles := []models.UserRole{models.RoleAdmin, models.RoleLecturer, models.RoleStudent}
	out := make([]models.LabelCount, 0, len(roles))
	for _, role := range roles {
		out = append(out, models.LabelCount{Label: string(role), Count: byLabel[string(role)]})
	}
	return out
}

// SystemMetrics returns the process counters snapshot.
func (s *DashboardService) SystemMetrics() models.SystemMetrics {
	snapshot := s.metrics.Snapshot()
	if snapshot.GeneratedAt.IsZero() {
		snapshot.GeneratedAt = s.now().UTC()
	}
	return snapshot
}
