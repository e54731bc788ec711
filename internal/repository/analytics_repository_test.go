package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/models"
)

func TestAnalyticsStudentCourseCountsReusesRangeArgs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	start, err := models.ParseDate("2024-01-01")
	require.NoError(t, err)
	end, err := models.ParseDate("2024-01-31")
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("se.session_date >= $1 AND se.session_date <= $2) AS total_sessions")).
		WithArgs("2024-01-01", "2024-01-31", "course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "student_index", "student_name", "course_id", "course_name", "attended", "total_sessions"}).
			AddRow("stu-1", "S001", "Ann", "course-1", "Databases", 3, 4))

	rows, err := repo.StudentCourseCounts(context.Background(), models.ReportFilter{CourseID: "course-1", StartDate: &start, EndDate: &end}, "stu-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 75.0, rows[0].Percentage())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsSessionTalliesScopesLecturer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.lecturer_id = $1 ORDER BY se.session_date ASC")).
		WithArgs("lect-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "course_id", "course_name", "session_date", "start_time", "end_time", "present", "enrolled"}))

	rows, err := repo.SessionTallies(context.Background(), models.ReportFilter{LecturerID: "lect-1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnalyticsRecentAttendanceDefaultsWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE r.session_rank <= $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "course_id", "session_rank", "attended"}).
			AddRow("stu-1", "course-1", 1, true))

	rows, err := repo.RecentAttendance(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Attended)
}

func TestAnalyticsWeekdayTallies(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAnalyticsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("EXTRACT(DOW FROM se.session_date)::int AS weekday")).
		WillReturnRows(sqlmock.NewRows([]string{"weekday", "present", "expected"}).AddRow(1, 8, 10))

	rows, err := repo.WeekdayTallies(context.Background(), models.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Weekday)
	assert.Equal(t, 8, rows[0].Present)
}
