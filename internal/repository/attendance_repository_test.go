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

func TestAttendanceRepositoryCreateIfAbsent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (session_id, student_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (session_id, student_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	record := &models.Attendance{SessionID: "sess-1", StudentID: "stu-1", Status: models.AttendanceStatusPresent}
	created, err := repo.CreateIfAbsent(context.Background(), record)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, record.ID)
	assert.False(t, record.Timestamp.IsZero())

	created, err = repo.CreateIfAbsent(context.Background(), &models.Attendance{SessionID: "sess-1", StudentID: "stu-1", Status: models.AttendanceStatusPresent})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DO UPDATE SET status = EXCLUDED.status")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Attendance{SessionID: "sess-1", StudentID: "stu-1", Status: models.AttendanceStatusAbsent})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	marked := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(a.status, 'Absent') AS status")).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_db_id", "student_index", "name", "status", "timestamp"}).
			AddRow("stu-1", "IDX1", "Ann", "Present", marked).
			AddRow("stu-2", "IDX2", "Ben", "Absent", nil))

	roster, err := repo.Roster(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, models.AttendanceStatusPresent, roster[0].Status)
	require.NotNil(t, roster[0].Timestamp)
	assert.Nil(t, roster[1].Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListByStudentFiltersCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	columns := []string{"attendance_id", "session_id", "course_id", "course_name", "session_date", "start_time", "end_time", "status", "timestamp"}
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.student_id = $1 AND c.id = $2")).
		WithArgs("stu-1", "course-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("att-1", "sess-1", "course-1", "Databases", date, "09:00", "11:00", "Late", date))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.student_id = $1 ORDER BY")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows(columns))

	records, err := repo.ListByStudent(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2024-03-04", records[0].SessionDate.String())
	assert.Equal(t, models.AttendanceStatusLate, records[0].Status)

	records, err = repo.ListByStudent(context.Background(), "stu-1", "")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
