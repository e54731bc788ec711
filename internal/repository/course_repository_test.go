package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/models"
)

var courseRowColumns = []string{"id", "name", "description", "lecturer_id", "lecturer_name", "total_attendance_marks",
	"total_sessions", "enrolled_student_count", "created_at", "updated_at"}

func TestCourseRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.id = $1 LIMIT 1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows(courseRowColumns).
			AddRow("course-1", "Databases", nil, "lect-1", "lee", 100, 4, 30, now, now))

	course, err := repo.FindByID(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "Databases", course.Name)
	assert.Equal(t, 4, course.TotalSessions)
	assert.Equal(t, 30, course.EnrolledStudentCount)
	assert.True(t, course.TaughtBy("lect-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListForStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	where := "WHERE EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.student_id = $1) AND LOWER(c.name) LIKE $2"
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(where + " ORDER BY c.name ASC LIMIT 20 OFFSET 0")).
		WithArgs("stu-1", "%data%").
		WillReturnRows(sqlmock.NewRows(courseRowColumns).
			AddRow("course-1", "Databases", nil, nil, nil, 100, 0, 1, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses c " + where)).
		WithArgs("stu-1", "%data%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{StudentProfileID: "stu-1", Search: "Data"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, courses, 1)
	assert.Nil(t, courses[0].LecturerID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCreateDefaultsMarks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO courses")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	course := &models.Course{Name: "Networks"}
	require.NoError(t, repo.Create(context.Background(), course))
	assert.NotEmpty(t, course.ID)
	assert.Equal(t, models.DefaultAttendanceMarks, course.TotalAttendanceMarks)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM courses WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
