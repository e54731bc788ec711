package service

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

// AnalyticsRepository describes the aggregate queries required by AnalyticsService.
type AnalyticsRepository interface {
	StudentCourseCounts(ctx context.Context, filter models.ReportFilter, studentID string) ([]models.CourseAttendanceCount, error)
	SessionTallies(ctx context.Context, filter models.ReportFilter) ([]models.SessionAttendanceTally, error)
	RecentAttendance(ctx context.Context, lecturerID string, window int) ([]models.RecentAttendance, error)
	WeekdayTallies(ctx context.Context, filter models.ReportFilter) ([]models.WeekdayTally, error)
	WeeklyTallies(ctx context.Context, filter models.ReportFilter) ([]models.WeeklyTally, error)
	CourseRates(ctx context.Context, filter models.ReportFilter) ([]models.CourseRate, error)
}

// AnalyticsConfig tunes analytics defaults.
type AnalyticsConfig struct {
	CacheTTL         time.Duration
	AtRiskThreshold  float64
	AtRiskDropPoints float64
	RecentWindow     int
	TopLimit         int
	TrendWeeks       int
}

// AnalyticsService serves lecturer and admin reports with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	courses courseFinder
	cache   *CacheService
	logger  *zap.Logger
	now     func() time.Time
	cfg     AnalyticsConfig
}

var weekdayLabels = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

const (
	highEngagement   = 80
	mediumEngagement = 50
)

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, courses courseFinder, cache *CacheService, logger *zap.Logger, cfg AnalyticsConfig) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AtRiskThreshold <= 0 {
		cfg.AtRiskThreshold = 75
	}
	if cfg.AtRiskDropPoints <= 0 {
		cfg.AtRiskDropPoints = 25
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 5
	}
	if cfg.TopLimit <= 0 {
		cfg.TopLimit = 5
	}
	if cfg.TrendWeeks <= 0 {
		cfg.TrendWeeks = 8
	}
	return &AnalyticsService{
		repo:    repo,
		courses: courses,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
		cfg:     cfg,
	}
}

// scope restricts lecturers to their own courses and rejects students.
func (s *AnalyticsService) scope(ctx context.Context, filter *models.ReportFilter, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Administrator() {
		return nil
	}
	if !actor.HasRole(models.RoleLecturer) {
		return appErrors.ErrForbidden
	}
	filter.LecturerID = actor.UserID
	if filter.CourseID != "" {
		if _, err := requireCourseOwner(ctx, s.courses, filter.CourseID, actor); err != nil {
			return err
		}
	}
	return nil
}

func filterParams(filter models.ReportFilter) map[string]string {
	params := map[string]string{"course_id": filter.CourseID}
	if filter.StartDate != nil {
		params["start_date"] = filter.StartDate.String()
	}
	if filter.EndDate != nil {
		params["end_date"] = filter.EndDate.String()
	}
	return params
}

// AttendanceReport lists per-session present/absent counts with totals. The
// boolean reports whether the payload came from cache.
func (s *AnalyticsService) AttendanceReport(ctx context.Context, filter models.ReportFilter, actor *models.JWTClaims) (*models.AttendanceReport, bool, error) {
	if err := validateRange(filter); err != nil {
		return nil, false, err
	}
	if err := s.scope(ctx, &filter, actor); err != nil {
		return nil, false, err
	}
	var report models.AttendanceReport
	hit, err := s.cache.remember(ctx, analyticsKey("attendance-report", actor, filterParams(filter)), s.cfg.CacheTTL, &report, func() error {
		tallies, err := s.repo.SessionTallies(ctx, filter)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build attendance report")
		}
		report = *BuildAttendanceReport(filter, tallies)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &report, hit, nil
}

// BuildAttendanceReport turns session tallies into report rows. Students
// without an attended mark count as absent.
func BuildAttendanceReport(filter models.ReportFilter, tallies []models.SessionAttendanceTally) *models.AttendanceReport {
	report := &models.AttendanceReport{
		CourseID:  filter.CourseID,
		StartDate: filter.StartDate,
		EndDate:   filter.EndDate,
		Sessions:  make([]models.AttendanceReportRow, 0, len(tallies)),
	}
	for _, t := range tallies {
		absent := t.Enrolled - t.Present
		if absent < 0 {
			absent = 0
		}
		report.Sessions = append(report.Sessions, models.AttendanceReportRow{
			SessionID:   t.SessionID,
			CourseName:  t.CourseName,
			SessionDate: t.SessionDate,
			StartTime:   t.StartTime,
			EndTime:     t.EndTime,
			Present:     t.Present,
			Absent:      absent,
			Rate:        models.Percentage(t.Present, t.Present+absent),
		})
		report.TotalPresent += t.Present
		report.TotalAbsent += absent
	}
	report.TotalSessions = len(report.Sessions)
	report.OverallRate = models.Percentage(report.TotalPresent, report.TotalPresent+report.TotalAbsent)
	return report
}

// AtRiskStudents flags enrollments whose overall rate is under threshold or
// whose rate over the latest sessions fell by the configured drop.
func (s *AnalyticsService) AtRiskStudents(ctx context.Context, threshold float64, actor *models.JWTClaims) ([]models.AtRiskStudent, bool, error) {
	if threshold <= 0 {
		threshold = s.cfg.AtRiskThreshold
	}
	if threshold > 100 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "threshold must be between 0 and 100")
	}
	var filter models.ReportFilter
	if err := s.scope(ctx, &filter, actor); err != nil {
		return nil, false, err
	}

	params := map[string]string{"threshold": strconv.FormatFloat(threshold, 'f', 2, 64)}
	var flagged []models.AtRiskStudent
	hit, err := s.cache.remember(ctx, analyticsKey("at-risk", actor, params), s.cfg.CacheTTL, &flagged, func() error {
		counts, err := s.repo.StudentCourseCounts(ctx, filter, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
		}
		recent, err := s.repo.RecentAttendance(ctx, filter.LecturerID, s.cfg.RecentWindow)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent attendance")
		}
		flagged = s.flagAtRisk(counts, recent, threshold)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return flagged, hit, nil
}

type recentTally struct {
	attended int
	total    int
}

func (s *AnalyticsService) flagAtRisk(counts []models.CourseAttendanceCount, recent []models.RecentAttendance, threshold float64) []models.AtRiskStudent {
	window := make(map[string]*recentTally, len(counts))
	for _, r := range recent {
		key := r.StudentID + "|" + r.CourseID
		t, ok := window[key]
		if !ok {
			t = &recentTally{}
			window[key] = t
		}
		t.total++
		if r.Attended {
			t.attended++
		}
	}

	flagged := make([]models.AtRiskStudent, 0)
	for _, c := range counts {
		if c.TotalSessions == 0 {
			continue
		}
		overall := c.Percentage()
		recentRate := overall
		if t, ok := window[c.StudentID+"|"+c.CourseID]; ok && t.total > 0 {
			recentRate = models.Percentage(t.attended, t.total)
		}
		drop := math.Round((overall-recentRate)*100) / 100
		if overall >= threshold && drop < s.cfg.AtRiskDropPoints {
			continue
		}
		flagged = append(flagged, models.AtRiskStudent{
			StudentID:             c.StudentID,
			StudentIndex:          c.StudentIndex,
			Name:                  c.StudentName,
			CourseID:              c.CourseID,
			CourseName:            c.CourseName,
			OverallAttendanceRate: overall,
			RecentAttendanceRate:  recentRate,
			Drop:                  drop,
		})
	}
	sort.SliceStable(flagged, func(i, j int) bool {
		if flagged[i].Drop != flagged[j].Drop {
			return flagged[i].Drop > flagged[j].Drop
		}
		return flagged[i].OverallAttendanceRate < flagged[j].OverallAttendanceRate
	})
	return flagged
}

// TopStudents ranks students by sessions attended across the caller's courses.
func (s *AnalyticsService) TopStudents(ctx context.Context, limit int, actor *models.JWTClaims) ([]models.TopStudent, bool, error) {
	if limit <= 0 {
		limit = s.cfg.TopLimit
	}
	if limit > 100 {
		limit = 100
	}
	var filter models.ReportFilter
	if err := s.scope(ctx, &filter, actor); err != nil {
		return nil, false, err
	}

	var top []models.TopStudent
	hit, err := s.cache.remember(ctx, analyticsKey("top-students", actor, map[string]string{"limit": strconv.Itoa(limit)}), s.cfg.CacheTTL, &top, func() error {
		counts, err := s.repo.StudentCourseCounts(ctx, filter, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
		}
		top = rankStudents(counts, limit)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return top, hit, nil
}

func rankStudents(counts []models.CourseAttendanceCount, limit int) []models.TopStudent {
	byStudent := make(map[string]*models.TopStudent)
	order := make([]string, 0)
	for _, c := range counts {
		entry, ok := byStudent[c.StudentID]
		if !ok {
			entry = &models.TopStudent{StudentID: c.StudentID, StudentIndex: c.StudentIndex, Name: c.StudentName}
			byStudent[c.StudentID] = entry
			order = append(order, c.StudentID)
		}
		entry.AttendedSessions += c.Attended
		entry.TotalSessions += c.TotalSessions
	}
	ranked := make([]models.TopStudent, 0, len(order))
	for _, id := range order {
		entry := byStudent[id]
		entry.AttendancePercentage = models.Percentage(entry.AttendedSessions, entry.TotalSessions)
		ranked = append(ranked, *entry)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AttendedSessions != ranked[j].AttendedSessions {
			return ranked[i].AttendedSessions > ranked[j].AttendedSessions
		}
		if ranked[i].AttendancePercentage != ranked[j].AttendancePercentage {
			return ranked[i].AttendancePercentage > ranked[j].AttendancePercentage
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// WeekdayAnalysis returns the attendance rate per weekday, Monday first.
func (s *AnalyticsService) WeekdayAnalysis(ctx context.Context, filter models.ReportFilter, actor *models.JWTClaims) (*models.ChartSeries, bool, error) {
	if err := validateRange(filter); err != nil {
		return nil, false, err
	}
	if err := s.scope(ctx, &filter, actor); err != nil {
		return nil, false, err
	}
	var series models.ChartSeries
	hit, err := s.cache.remember(ctx, analyticsKey("weekday", actor, filterParams(filter)), s.cfg.CacheTTL, &series, func() error {
		tallies, err := s.repo.WeekdayTallies(ctx, filter)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekday analysis")
		}
		series = weekdaySeries(tallies)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &series, hit, nil
}

func weekdaySeries(tallies []models.WeekdayTally) models.ChartSeries {
	values := make([]float64, len(weekdayLabels))
	for _, t := range tallies {
		if t.Weekday < 0 || t.Weekday > 6 {
			continue
		}
		// Postgres DOW counts from Sunday.
		idx := (t.Weekday + 6) % 7
		values[idx] = models.Percentage(t.Present, t.Expected)
	}
	labels := make([]string, len(weekdayLabels))
	copy(labels, weekdayLabels)
	return models.ChartSeries{Labels: labels, Values: values}
}

// Trends returns the weekly attendance rate over the last weeks, oldest
// first. Weeks without sessions are reported as 0.
func (s *AnalyticsService) Trends(ctx context.Context, courseID string, weeks int, actor *models.JWTClaims) (*models.ChartSeries, bool, error) {
	if weeks <= 0 {
		weeks = s.cfg.TrendWeeks
	}
	if weeks > 52 {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "weeks must be at most 52")
	}
	filter := models.ReportFilter{CourseID: courseID}
	if err := s.scope(ctx, &filter, actor); err != nil {
		return nil, false, err
	}

	first := weekStart(s.now().UTC()).AddDate(0, 0, -7*(weeks-1))
	start := models.NewDate(first)
	filter.StartDate = &start

	params := map[string]string{"course_id": courseID, "weeks": strconv.Itoa(weeks), "from": start.String()}
	var series models.ChartSeries
	hit, err := s.cache.remember(ctx, analyticsKey("trends", actor, params), s.cfg.CacheTTL, &series, func() error {
		tallies, err := s.repo.WeeklyTallies(ctx, filter)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance trends")
		}
		series = trendSeries(first, weeks, tallies)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &series, hit, nil
}

func weekStart(t time.Time) time.Time {
	day := models.NewDate(t).Time
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func trendSeries(first time.Time, weeks int, tallies []models.WeeklyTally) models.ChartSeries {
	rates := make(map[string]float64, len(tallies))
	for _, t := range tallies {
		rates[models.NewDate(t.WeekStart).String()] = models.Percentage(t.Present, t.Expected)
	}
	series := models.ChartSeries{Labels: make([]string, 0, weeks), Values: make([]float64, 0, weeks)}
	for i := 0; i < weeks; i++ {
		label := models.NewDate(first.AddDate(0, 0, 7*i)).String()
		series.Labels = append(series.Labels, label)
		series.Values = append(series.Values, rates[label])
	}
	return series
}

// Engagement averages attendance per course and sorts students into
// high, medium and low tiers by their mean course percentage.
func (s *AnalyticsService) Engagement(ctx context.Context, actor *models.JWTClaims) (*models.EngagementReport, bool, error) {
	var filter models.ReportFilter
	if err := s.scope(ctx, &filter, actor); err != nil {
		return nil, false, err
	}
	var report models.EngagementReport
	hit, err := s.cache.remember(ctx, analyticsKey("engagement", actor, nil), s.cfg.CacheTTL, &report, func() error {
		counts, err := s.repo.StudentCourseCounts(ctx, filter, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
		}
		report = buildEngagement(counts)
		report.GeneratedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &report, hit, nil
}

type percentSum struct {
	sum   float64
	count int
}

func buildEngagement(counts []models.CourseAttendanceCount) models.EngagementReport {
	report := models.EngagementReport{
		Courses:          make([]models.EngagementRow, 0),
		HighEngagement:   make([]models.EngagedStudent, 0),
		MediumEngagement: make([]models.EngagedStudent, 0),
		LowEngagement:    make([]models.EngagedStudent, 0),
	}

	courseIdx := make(map[string]int)
	courseSums := make(map[string]*percentSum)
	students := make(map[string]*models.EngagedStudent)
	studentSums := make(map[string]*percentSum)
	studentOrder := make([]string, 0)

	for _, c := range counts {
		pct := c.Percentage()
		if _, ok := courseIdx[c.CourseID]; !ok {
			courseIdx[c.CourseID] = len(report.Courses)
			report.Courses = append(report.Courses, models.EngagementRow{
				CourseID:      c.CourseID,
				CourseName:    c.CourseName,
				TotalSessions: c.TotalSessions,
			})
			courseSums[c.CourseID] = &percentSum{}
		}
		report.Courses[courseIdx[c.CourseID]].EnrolledStudents++
		courseSums[c.CourseID].sum += pct
		courseSums[c.CourseID].count++

		if _, ok := students[c.StudentID]; !ok {
			students[c.StudentID] = &models.EngagedStudent{StudentID: c.StudentID, StudentIndex: c.StudentIndex, Name: c.StudentName}
			studentSums[c.StudentID] = &percentSum{}
			studentOrder = append(studentOrder, c.StudentID)
		}
		students[c.StudentID].Courses++
		studentSums[c.StudentID].sum += pct
		studentSums[c.StudentID].count++
	}

	for i := range report.Courses {
		sum := courseSums[report.Courses[i].CourseID]
		report.Courses[i].AverageAttendance = average(sum)
	}
	for _, id := range studentOrder {
		student := students[id]
		student.AverageAttendance = average(studentSums[id])
		switch {
		case student.AverageAttendance >= highEngagement:
			report.HighEngagement = append(report.HighEngagement, *student)
		case student.AverageAttendance >= mediumEngagement:
			report.MediumEngagement = append(report.MediumEngagement, *student)
		default:
			report.LowEngagement = append(report.LowEngagement, *student)
		}
	}
	return report
}

func average(sum *percentSum) float64 {
	if sum == nil || sum.count == 0 {
		return 0
	}
	return math.Round(sum.sum/float64(sum.count)*100) / 100
}
