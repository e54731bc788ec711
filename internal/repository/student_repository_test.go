package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/models"
)

var studentRowColumns = []string{"id", "student_id", "name", "email", "class_name", "major", "user_id", "created_at", "updated_at"}

func TestStudentRepositoryFindByStudentID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students s WHERE s.student_id = $1 LIMIT 1")).
		WithArgs("S001").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow("stu-1", "S001", "Ann", nil, "CS-1", nil, nil, now, now))

	student, err := repo.FindByStudentID(context.Background(), "S001")
	require.NoError(t, err)
	assert.Equal(t, "stu-1", student.ID)
	require.NotNil(t, student.ClassName)
	assert.Equal(t, "CS-1", *student.ClassName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListScopesToLecturer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students s WHERE (LOWER(s.name) LIKE $1 OR LOWER(s.student_id) LIKE $1 OR LOWER(COALESCE(s.email, '')) LIKE $1) AND EXISTS (SELECT 1 FROM enrollments e JOIN courses c ON c.id = e.course_id WHERE e.student_id = s.id AND c.lecturer_id = $2) ORDER BY s.name ASC, s.student_id ASC LIMIT 20 OFFSET 0")).
		WithArgs("%ann%", "lect-1").
		WillReturnRows(sqlmock.NewRows(studentRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students s WHERE")).
		WithArgs("%ann%", "lect-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Search: "ANN", LecturerID: "lect-1"})
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpsertReportsInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "S002", "Ben", nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))

	inserted, err := repo.Upsert(context.Background(), &models.Student{StudentID: "S002", Name: "Ben"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByIDsRebinds(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students s WHERE s.id IN (?, ?)")).
		WithArgs("stu-1", "stu-2").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow("stu-1", "S001", "Ann", nil, nil, nil, nil, now, now))

	students, err := repo.FindByIDs(context.Background(), []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollCountsNewRowsViaStudentFile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs("course-1", "stu-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WithArgs("course-1", "stu-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	added, err := repo.Enroll(context.Background(), "course-1", []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollViaStudentFile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollments WHERE course_id = $1 AND student_id = ANY($2)")).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.Unenroll(context.Background(), "course-1", []string{"stu-1", "stu-2", "stu-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestEnrollmentRepositoryIsEnrolledViaStudentFile(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)")).
		WithArgs("course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewEnrollmentRepository(db).IsEnrolled(context.Background(), "course-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
