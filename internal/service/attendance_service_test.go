package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type mockAttendanceRepo struct {
	marks   map[string]models.Attendance
	roster  []models.AttendanceRosterEntry
	records []models.StudentAttendanceRecord
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{marks: map[string]models.Attendance{}}
}

func (m *mockAttendanceRepo) CreateIfAbsent(ctx context.Context, record *models.Attendance) (bool, error) {
	key := record.SessionID + "|" + record.StudentID
	if _, ok := m.marks[key]; ok {
		return false, nil
	}
	m.marks[key] = *record
	return true, nil
}

func (m *mockAttendanceRepo) Upsert(ctx context.Context, record *models.Attendance) error {
	m.marks[record.SessionID+"|"+record.StudentID] = *record
	return nil
}

func (m *mockAttendanceRepo) Roster(ctx context.Context, sessionID string) ([]models.AttendanceRosterEntry, error) {
	return m.roster, nil
}

func (m *mockAttendanceRepo) ListByStudent(ctx context.Context, studentID, courseID string) ([]models.StudentAttendanceRecord, error) {
	return m.records, nil
}

type stubCounts struct {
	rows       []models.CourseAttendanceCount
	lastFilter models.ReportFilter
	lastID     string
}

func (s *stubCounts) StudentCourseCounts(ctx context.Context, filter models.ReportFilter, studentID string) ([]models.CourseAttendanceCount, error) {
	s.lastFilter = filter
	s.lastID = studentID
	return s.rows, nil
}

type attendanceFixture struct {
	svc      *AttendanceService
	repo     *mockAttendanceRepo
	sessions *mockSessionRepo
	students *mockStudentRepo
	counts   *stubCounts
	cache    *countingInvalidator
	activity *recordingActivity
	metrics  *MetricsService
}

var attendanceNow = time.Date(2024, 3, 4, 9, 2, 0, 0, time.UTC)

func newAttendanceFixture() *attendanceFixture {
	session := courseSession("se-1", "c-1", "lect-1")
	code := "code-1"
	expires := attendanceNow.Add(3 * time.Minute)
	session.IsActive = true
	session.QRCodeUUID = &code
	session.ExpiresAt = &expires

	f := &attendanceFixture{
		repo:     newMockAttendanceRepo(),
		sessions: newMockSessionRepo(session, courseSession("se-closed", "c-1", "lect-1")),
		students: newMockStudentRepo(linkedStudent("s-1", "IDX1", "stu-user"), linkedStudent("s-2", "IDX2", "")),
		counts:   &stubCounts{},
		cache:    &countingInvalidator{},
		activity: &recordingActivity{},
		metrics:  NewMetricsService(),
	}
	f.students.taughtBy["s-1|lect-1"] = true
	f.svc = NewAttendanceService(AttendanceDeps{
		Attendance:  f.repo,
		Sessions:    f.sessions,
		Courses:     newMockCourseRepo(ownedCourse("c-1", "lect-1")),
		Students:    f.students,
		Enrollments: stubEnrollments{"c-1|s-1": true},
		Counts:      f.counts,
		Access:      newTestStudentService(f.students, newMockUserRepo(), &recordingActivity{}),
		Cache:       f.cache,
		Activity:    f.activity,
		Metrics:     f.metrics,
	}, validator.New(), zap.NewNop())
	f.svc.now = func() time.Time { return attendanceNow }
	return f
}

func TestAttendanceServiceMark(t *testing.T) {
	f := newAttendanceFixture()
	ctx := context.Background()

	resp, err := f.svc.Mark(ctx, "se-1", dto.MarkAttendanceRequest{StudentIndexNumber: " IDX1 ", QRCodeUUID: "code-1"}, ScanMeta{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, resp.Status)
	assert.Equal(t, "IDX1", resp.StudentID)
	assert.Equal(t, attendanceNow, resp.Timestamp)
	assert.Contains(t, f.repo.marks, "se-1|s-1")
	assert.Equal(t, 1, f.cache.calls)

	require.Len(t, f.activity.entries, 1)
	assert.Equal(t, "10.0.0.1", *f.activity.entries[0].IPAddress)
	assert.Nil(t, f.activity.entries[0].UserID)

	_, err = f.svc.Mark(ctx, "se-1", dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "code-1"}, ScanMeta{})
	assert.ErrorIs(t, err, appErrors.ErrAlreadyMarked)

	snapshot := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.AttendanceMarked)
	assert.Equal(t, uint64(1), snapshot.AttendanceRejected)
}

func TestAttendanceServiceMarkLogsSignedInScanner(t *testing.T) {
	f := newAttendanceFixture()

	scanner := studentClaims("stu-user")
	_, err := f.svc.Mark(context.Background(), "se-1", dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "code-1"}, ScanMeta{IP: "10.0.0.2", Actor: scanner})
	require.NoError(t, err)

	require.Len(t, f.activity.entries, 1)
	require.NotNil(t, f.activity.entries[0].UserID)
	assert.Equal(t, "stu-user", *f.activity.entries[0].UserID)
	assert.Equal(t, "stu-user", *f.activity.entries[0].Username)
}

func TestAttendanceServiceMarkCheckOrder(t *testing.T) {
	cases := []struct {
		name    string
		session string
		req     dto.MarkAttendanceRequest
		prepare func(f *attendanceFixture)
		want    *appErrors.Error
	}{
		{name: "missing fields", session: "se-1", req: dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1"}, want: appErrors.ErrValidation},
		{name: "unknown session", session: "nope", req: dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "code-1"}, want: appErrors.ErrNotFound},
		{name: "unknown student", session: "se-1", req: dto.MarkAttendanceRequest{StudentIndexNumber: "IDX9", QRCodeUUID: "code-1"}, want: appErrors.ErrNotFound},
		{name: "not enrolled beats closed", session: "se-closed", req: dto.MarkAttendanceRequest{StudentIndexNumber: "IDX2", QRCodeUUID: "code-1"}, want: appErrors.ErrNotEnrolled},
		{name: "closed", session: "se-closed", req: dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "code-1"}, want: appErrors.ErrAttendanceClosed},
		{
			name:    "expired beats invalid",
			session: "se-1",
			req:     dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "wrong"},
			prepare: func(f *attendanceFixture) {
				f.svc.now = func() time.Time { return attendanceNow.Add(10 * time.Minute) }
			},
			want: appErrors.ErrQRExpired,
		},
		{
			name:    "expired at the expiry instant",
			session: "se-1",
			req:     dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "code-1"},
			prepare: func(f *attendanceFixture) {
				f.svc.now = func() time.Time { return attendanceNow.Add(3 * time.Minute) }
			},
			want: appErrors.ErrQRExpired,
		},
		{name: "invalid code", session: "se-1", req: dto.MarkAttendanceRequest{StudentIndexNumber: "IDX1", QRCodeUUID: "wrong"}, want: appErrors.ErrQRInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAttendanceFixture()
			if tc.prepare != nil {
				tc.prepare(f)
			}
			_, err := f.svc.Mark(context.Background(), tc.session, tc.req, ScanMeta{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.repo.marks)
			assert.Zero(t, f.cache.calls)
		})
	}
}

func TestAttendanceServiceRecord(t *testing.T) {
	f := newAttendanceFixture()
	ctx := context.Background()

	record, err := f.svc.Record(ctx, "se-closed", "s-1", dto.RecordAttendanceRequest{Status: models.AttendanceStatusLate}, lecturerClaims("lect-1"))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
	require.NotNil(t, record.MarkedBy)
	assert.Equal(t, "lect-1", *record.MarkedBy)

	record, err = f.svc.Record(ctx, "se-closed", "s-1", dto.RecordAttendanceRequest{Status: models.AttendanceStatusAbsent}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusAbsent, f.repo.marks["se-closed|s-1"].Status)

	_, err = f.svc.Record(ctx, "se-closed", "s-1", dto.RecordAttendanceRequest{Status: "Excused"}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Record(ctx, "se-closed", "s-2", dto.RecordAttendanceRequest{Status: models.AttendanceStatusPresent}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)

	_, err = f.svc.Record(ctx, "se-closed", "s-1", dto.RecordAttendanceRequest{Status: models.AttendanceStatusPresent}, lecturerClaims("lect-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestAttendanceServiceRosterAndMyAttendance(t *testing.T) {
	f := newAttendanceFixture()
	ctx := context.Background()

	roster, err := f.svc.Roster(ctx, "se-1", lecturerClaims("lect-1"))
	require.NoError(t, err)
	assert.Equal(t, []models.AttendanceRosterEntry{}, roster)

	f.counts.rows = []models.CourseAttendanceCount{{StudentID: "s-1", CourseID: "c-1", Attended: 2, TotalSessions: 3}}
	mine, err := f.svc.MyAttendance(ctx, studentClaims("stu-user"), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "s-1", f.counts.lastID)
	assert.Equal(t, "c-1", f.counts.lastFilter.CourseID)
	require.Len(t, mine.Courses, 1)
	assert.Equal(t, 66.67, mine.Courses[0].AttendancePercentage)
	assert.NotNil(t, mine.Records)

	_, err = f.svc.MyAttendance(ctx, studentClaims("ghost"), "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAttendanceServiceStudentOverview(t *testing.T) {
	f := newAttendanceFixture()
	ctx := context.Background()
	f.counts.rows = []models.CourseAttendanceCount{
		{StudentID: "s-1", CourseID: "c-1", Attended: 3, TotalSessions: 4},
		{StudentID: "s-1", CourseID: "c-2", Attended: 1, TotalSessions: 4},
	}

	overview, err := f.svc.StudentOverview(ctx, "s-1", models.ReportFilter{}, lecturerClaims("lect-1"))
	require.NoError(t, err)
	assert.Equal(t, 4, overview.AttendedSessions)
	assert.Equal(t, 8, overview.TotalSessions)
	assert.Equal(t, 50.0, overview.AttendancePercentage)
	assert.Len(t, overview.Courses, 2)

	_, err = f.svc.StudentOverview(ctx, "s-1", models.ReportFilter{}, lecturerClaims("lect-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	start := models.NewDate(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	end := models.NewDate(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	_, err = f.svc.StudentOverview(ctx, "s-1", models.ReportFilter{StartDate: &start, EndDate: &end}, adminClaims())
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAttendanceServiceCourseSummary(t *testing.T) {
	f := newAttendanceFixture()
	ctx := context.Background()
	f.counts.rows = []models.CourseAttendanceCount{
		{StudentID: "s-1", CourseID: "c-1", Attended: 1, TotalSessions: 4},
		{StudentID: "s-2", CourseID: "c-1", Attended: 2, TotalSessions: 4},
	}

	summary, err := f.svc.CourseSummary(ctx, "c-1", models.ReportFilter{}, lecturerClaims("lect-1"))
	require.NoError(t, err)
	assert.Equal(t, "Course c-1", summary.CourseName)
	assert.Empty(t, f.counts.lastID)
	assert.Equal(t, "c-1", f.counts.lastFilter.CourseID)
	assert.Equal(t, 37.5, summary.AverageAttendancePercentage)

	_, err = f.svc.CourseSummary(ctx, "c-1", models.ReportFilter{}, lecturerClaims("lect-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
