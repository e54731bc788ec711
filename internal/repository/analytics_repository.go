package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presencepro-api/internal/models"
)

const attendedStatuses = `('Present', 'Late')`

// AnalyticsRepository runs the aggregate queries behind reports and dashboards.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository constructs the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// StudentCourseCounts tallies attended and total sessions for every
// enrollment in scope. Sessions outside the date range are ignored on both
// sides of the ratio.
func (r *AnalyticsRepository) StudentCourseCounts(ctx context.Context, filter models.ReportFilter, studentID string) ([]models.CourseAttendanceCount, error) {
	var args []interface{}
	sessionRange := dateRangeClause(&args, "se", filter)

	var conditions []string
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("c.id = $%d", len(args)))
	}
	if filter.LecturerID != "" {
		args = append(args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("c.lecturer_id = $%d", len(args)))
	}
	if studentID != "" {
		args = append(args, studentID)
		conditions = append(conditions, fmt.Sprintf("s.id = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT s.id AS student_id, s.student_id AS student_index, s.name AS student_name, c.id AS course_id, c.name AS course_name,
	(SELECT COUNT(*) FROM attendance a JOIN sessions se ON se.id = a.session_id
		WHERE a.student_id = s.id AND se.course_id = c.id AND a.status IN %s%s) AS attended,
	(SELECT COUNT(*) FROM sessions se WHERE se.course_id = c.id%s) AS total_sessions
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN courses c ON c.id = e.course_id
%s
ORDER BY c.name ASC, s.name ASC`, attendedStatuses, sessionRange, sessionRange, where)

	var rows []models.CourseAttendanceCount
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("student course counts: %w", err)
	}
	return rows, nil
}

// SessionTallies returns present and enrolled counts per session in scope, oldest first.
func (r *AnalyticsRepository) SessionTallies(ctx context.Context, filter models.ReportFilter) ([]models.SessionAttendanceTally, error) {
	var args []interface{}
	where := sessionScope(&args, filter)
	query := fmt.Sprintf(`SELECT se.id AS session_id, c.id AS course_id, c.name AS course_name, se.session_date, se.start_time, se.end_time,
	(SELECT COUNT(*) FROM attendance a WHERE a.session_id = se.id AND a.status IN %s) AS present,
	(SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS enrolled
FROM sessions se
JOIN courses c ON c.id = se.course_id
%s
ORDER BY se.session_date ASC, se.start_time ASC`, attendedStatuses, where)

	var rows []models.SessionAttendanceTally
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("session tallies: %w", err)
	}
	return rows, nil
}

// RecentAttendance returns, per enrollment, the mark on each of the latest
// `window` sessions of the course (rank 1 is the newest).
func (r *AnalyticsRepository) RecentAttendance(ctx context.Context, lecturerID string, window int) ([]models.RecentAttendance, error) {
	if window <= 0 {
		window = 5
	}
	args := []interface{}{window}
	scope := ""
	if lecturerID != "" {
		args = append(args, lecturerID)
		scope = "WHERE c.lecturer_id = $2"
	}
	query := fmt.Sprintf(`WITH ranked AS (
	SELECT se.id, se.course_id,
		ROW_NUMBER() OVER (PARTITION BY se.course_id ORDER BY se.session_date DESC, se.start_time DESC) AS session_rank
	FROM sessions se
	JOIN courses c ON c.id = se.course_id
	%s
)
SELECT e.student_id, r.course_id, r.session_rank, (a.id IS NOT NULL AND a.status IN %s) AS attended
FROM ranked r
JOIN enrollments e ON e.course_id = r.course_id
LEFT JOIN attendance a ON a.session_id = r.id AND a.student_id = e.student_id
WHERE r.session_rank <= $1`, scope, attendedStatuses)

	var rows []models.RecentAttendance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("recent attendance: %w", err)
	}
	return rows, nil
}

// WeekdayTallies groups expected and present marks by session weekday.
func (r *AnalyticsRepository) WeekdayTallies(ctx context.Context, filter models.ReportFilter) ([]models.WeekdayTally, error) {
	var args []interface{}
	where := sessionScope(&args, filter)
	query := fmt.Sprintf(`SELECT EXTRACT(DOW FROM se.session_date)::int AS weekday,
	COUNT(a.id) FILTER (WHERE a.status IN %s) AS present,
	COUNT(e.student_id) AS expected
FROM sessions se
JOIN courses c ON c.id = se.course_id
JOIN enrollments e ON e.course_id = c.id
LEFT JOIN attendance a ON a.session_id = se.id AND a.student_id = e.student_id
%s
GROUP BY 1
ORDER BY 1`, attendedStatuses, where)

	var rows []models.WeekdayTally
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("weekday tallies: %w", err)
	}
	return rows, nil
}

// WeeklyTallies groups expected and present marks by ISO week.
func (r *AnalyticsRepository) WeeklyTallies(ctx context.Context, filter models.ReportFilter) ([]models.WeeklyTally, error) {
	var args []interface{}
	where := sessionScope(&args, filter)
	query := fmt.Sprintf(`SELECT DATE_TRUNC('week', se.session_date)::date AS week_start,
	COUNT(a.id) FILTER (WHERE a.status IN %s) AS present,
	COUNT(e.student_id) AS expected
FROM sessions se
JOIN courses c ON c.id = se.course_id
JOIN enrollments e ON e.course_id = c.id
LEFT JOIN attendance a ON a.session_id = se.id AND a.student_id = e.student_id
%s
GROUP BY 1
ORDER BY 1`, attendedStatuses, where)

	var rows []models.WeeklyTally
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("weekly tallies: %w", err)
	}
	return rows, nil
}

// CourseRates returns present and expected marks per course.
func (r *AnalyticsRepository) CourseRates(ctx context.Context, filter models.ReportFilter) ([]models.CourseRate, error) {
	var args []interface{}
	where := sessionScope(&args, filter)
	query := fmt.Sprintf(`SELECT c.id AS course_id, c.name AS course_name,
	COUNT(a.id) FILTER (WHERE a.status IN %s) AS present,
	COUNT(e.student_id) AS expected
FROM sessions se
JOIN courses c ON c.id = se.course_id
JOIN enrollments e ON e.course_id = c.id
LEFT JOIN attendance a ON a.session_id = se.id AND a.student_id = e.student_id
%s
GROUP BY c.id, c.name
ORDER BY c.name`, attendedStatuses, where)

	var rows []models.CourseRate
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("course rates: %w", err)
	}
	return rows, nil
}

func sessionScope(args *[]interface{}, filter models.ReportFilter) string {
	var conditions []string
	if filter.CourseID != "" {
		*args = append(*args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("c.id = $%d", len(*args)))
	}
	if filter.LecturerID != "" {
		*args = append(*args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("c.lecturer_id = $%d", len(*args)))
	}
	if rng := dateRangeClause(args, "se", filter); rng != "" {
		conditions = append(conditions, strings.TrimPrefix(rng, " AND "))
	}
	if len(conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conditions, " AND ")
}

// dateRangeClause appends the range bounds to args and returns a fragment
// starting with " AND " (or empty) that can be reused in several subqueries.
func dateRangeClause(args *[]interface{}, alias string, filter models.ReportFilter) string {
	var b strings.Builder
	if filter.StartDate != nil {
		*args = append(*args, filter.StartDate.String())
		fmt.Fprintf(&b, " AND %s.session_date >= $%d", alias, len(*args))
	}
	if filter.EndDate != nil {
		*args = append(*args, filter.EndDate.String())
		fmt.Fprintf(&b, " AND %s.session_date <= $%d", alias, len(*args))
	}
	return b.String()
}
