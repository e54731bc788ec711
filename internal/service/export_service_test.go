package service

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/storage"
)

type exportFixture struct {
	svc       *ExportService
	analytics *mockAnalyticsRepo
	students  *mockStudentRepo
	courses   *mockCourseRepo
}

func newExportFixture(t *testing.T) *exportFixture {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	course := ownedCourse("c-1", "lect-1")
	course.Name = "Algorithms"
	course.TotalAttendanceMarks = 20

	f := &exportFixture{
		analytics: &mockAnalyticsRepo{
			counts: []models.CourseAttendanceCount{
				{StudentID: "s-1", StudentIndex: "IDX1", StudentName: "Ann", CourseID: "c-1", CourseName: "Algorithms", Attended: 3, TotalSessions: 4},
			},
			tallies: []models.SessionAttendanceTally{
				{SessionID: "se-1", CourseName: "Algorithms", SessionDate: models.NewDate(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)), StartTime: "09:00", EndTime: "10:00", Present: 3, Enrolled: 4},
			},
		},
		students: newMockStudentRepo(linkedStudent("s-1", "IDX1", ""), linkedStudent("s-2", "IDX2", "")),
		courses:  newMockCourseRepo(course),
	}
	f.svc = NewExportService(ExportServiceDeps{
		Analytics: f.analytics,
		Students:  f.students,
		Courses:   f.courses,
		Storage:   store,
		Signer:    storage.NewDownloadSigner("secret", time.Hour),
	}, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop())
	return f
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return records
}

func readStored(t *testing.T, svc *ExportService, relPath string) []byte {
	t.Helper()
	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	return data
}

func TestExportServiceExportStudents(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	file, err := f.svc.ExportStudents(ctx, dto.StudentExportQuery{}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "students.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	records := readCSV(t, file.Data)
	assert.Equal(t, []string{"student_id", "name", "email", "class_name", "major"}, records[0])
	assert.Len(t, records, 3)

	file, err = f.svc.ExportStudents(ctx, dto.StudentExportQuery{StudentID: "IDX1", CourseName: "Algorithms"}, lecturerClaims("lect-1"))
	require.NoError(t, err)
	assert.Equal(t, "lect-1", f.students.lastFilter.LecturerID)
	records = readCSV(t, file.Data)
	require.Len(t, records, 2)
	assert.Equal(t, "attendance_mark", records[0][5])
	assert.Equal(t, "15.00", records[1][5])

	file, err = f.svc.ExportStudents(ctx, dto.StudentExportQuery{Format: "json"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "application/json", file.ContentType)
}

func TestExportServiceExportStudentsRejections(t *testing.T) {
	f := newExportFixture(t)
	ctx := context.Background()

	_, err := f.svc.ExportStudents(ctx, dto.StudentExportQuery{Format: "xlsx"}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.ExportStudents(ctx, dto.StudentExportQuery{}, studentClaims("stu-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.ExportStudents(ctx, dto.StudentExportQuery{CourseName: "Algorithms"}, lecturerClaims("lect-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.ExportStudents(ctx, dto.StudentExportQuery{CourseName: "Unknown"}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.ExportStudents(ctx, dto.StudentExportQuery{}, nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAttendanceMarkScalesPercentage(t *testing.T) {
	assert.Equal(t, 15.0, attendanceMark(3, 4, 20))
	assert.Equal(t, 0.0, attendanceMark(0, 0, 100))
	assert.Equal(t, 100.0, attendanceMark(5, 5, 100))
}

func TestExportServiceGenerateAttendanceCSV(t *testing.T) {
	f := newExportFixture(t)
	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeAttendance,
		Params: models.ReportJobParams{CourseID: "c-1", Format: models.ReportFormatCSV},
	}

	result, err := f.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RelativePath, "attendance_c-1_"))
	assert.Equal(t, "/api/v1/export/"+result.Token, result.URL)

	data := readStored(t, f.svc, result.RelativePath)
	records := readCSV(t, data)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"2024-03-04", "Algorithms", "09:00", "10:00", "3", "1", "75.00"}, records[1])
	assert.Equal(t, "Total", records[2][0])

	grant, err := f.svc.VerifyDownload(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "job-1", grant.ReportID)
	assert.Equal(t, result.RelativePath, grant.File)
}

func TestExportServiceGenerateCourseSummaryPDF(t *testing.T) {
	f := newExportFixture(t)
	job := &models.ReportJob{
		ID:     "job-2",
		Type:   models.ReportTypeCourseSummary,
		Params: models.ReportJobParams{CourseID: "c-1", Format: models.ReportFormatPDF},
	}

	result, err := f.svc.Generate(context.Background(), job)
	require.NoError(t, err)
	data := readStored(t, f.svc, result.RelativePath)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	require.NoError(t, f.svc.Delete(result.RelativePath))
	_, err = f.svc.Open(result.RelativePath)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "all", sanitizeFilename(""))
	assert.Equal(t, "a_b-c-d", sanitizeFilename("a b/c:d"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 150)), 100)
}
