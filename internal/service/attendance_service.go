package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type attendanceRepository interface {
	CreateIfAbsent(ctx context.Context, record *models.Attendance) (bool, error)
	Upsert(ctx context.Context, record *models.Attendance) error
	Roster(ctx context.Context, sessionID string) ([]models.AttendanceRosterEntry, error)
	ListByStudent(ctx context.Context, studentID, courseID string) ([]models.StudentAttendanceRecord, error)
}

type attendanceStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type attendanceCounter interface {
	StudentCourseCounts(ctx context.Context, filter models.ReportFilter, studentID string) ([]models.CourseAttendanceCount, error)
}

type studentAuthorizer interface {
	Authorize(ctx context.Context, student *models.Student, actor *models.JWTClaims) error
}

// ScanMeta describes the client that submitted a scan. Actor is set when the
// scanner happened to be signed in.
type ScanMeta struct {
	IP        string
	UserAgent string
	Actor     *models.JWTClaims
}

// AttendanceDeps groups the AttendanceService collaborators.
type AttendanceDeps struct {
	Attendance  attendanceRepository
	Sessions    sessionFinder
	Courses     courseFinder
	Students    attendanceStudentReader
	Enrollments enrollmentChecker
	Counts      attendanceCounter
	Access      studentAuthorizer
	Cache       attendanceCacheInvalidator
	Activity    activityRecorder
	Metrics     *MetricsService
}

// AttendanceService records and reads attendance marks.
type AttendanceService struct {
	attendance  attendanceRepository
	sessions    sessionFinder
	courses     courseFinder
	students    attendanceStudentReader
	enrollments enrollmentChecker
	counts      attendanceCounter
	access      studentAuthorizer
	cache       attendanceCacheInvalidator
	activity    activityRecorder
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(deps AttendanceDeps, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Activity == nil {
		deps.Activity = nopRecorder{}
	}
	return &AttendanceService{
		attendance:  deps.Attendance,
		sessions:    deps.Sessions,
		courses:     deps.Courses,
		students:    deps.Students,
		enrollments: deps.Enrollments,
		counts:      deps.Counts,
		access:      deps.Access,
		cache:       deps.Cache,
		activity:    deps.Activity,
		metrics:     deps.Metrics,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Mark records a scan from the public attendance form. Checks run in a fixed
// order so the first failing one decides the response.
func (s *AttendanceService) Mark(ctx context.Context, sessionID string, req dto.MarkAttendanceRequest, meta ScanMeta) (*dto.MarkAttendanceResponse, error) {
	resp, err := s.mark(ctx, sessionID, req)
	if err != nil {
		s.metrics.RecordAttendanceMark(appErrors.FromError(err).Code)
		return nil, err
	}
	s.metrics.RecordAttendanceMark("marked")
	if s.cache != nil {
		s.cache.InvalidateAttendance(ctx)
	}

	entry := logEntry(models.LogLevelInfo, models.LogActionAttendanceMark, "attendance", "Attendance marked via QR", meta.Actor, map[string]interface{}{
		"student_id": resp.StudentID,
	})
	entry.ResourceID = strPtr(sessionID)
	entry.IPAddress, entry.UserAgent = strPtr(meta.IP), strPtr(meta.UserAgent)
	s.activity.Record(ctx, entry)
	return resp, nil
}

func (s *AttendanceService) mark(ctx context.Context, sessionID string, req dto.MarkAttendanceRequest) (*dto.MarkAttendanceResponse, error) {
	index := strings.TrimSpace(req.StudentIndexNumber)
	code := strings.TrimSpace(req.QRCodeUUID)
	if index == "" || code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Student index number and QR code are required")
	}

	session, err := loadSession(ctx, s.sessions, sessionID)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByStudentID(ctx, index)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, session.CourseID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	now := s.now()
	if !session.IsActive || session.ExpiresAt == nil {
		return nil, appErrors.ErrAttendanceClosed
	}
	if !now.Before(*session.ExpiresAt) {
		return nil, appErrors.ErrQRExpired
	}
	if session.QRCodeUUID == nil || *session.QRCodeUUID != code {
		return nil, appErrors.ErrQRInvalid
	}

	record := &models.Attendance{
		SessionID: session.ID,
		StudentID: student.ID,
		Status:    models.AttendanceStatusPresent,
		Timestamp: now,
	}
	created, err := s.attendance.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if !created {
		return nil, appErrors.ErrAlreadyMarked
	}

	return &dto.MarkAttendanceResponse{
		Message:     "Attendance marked successfully",
		SessionID:   session.ID,
		StudentID:   student.StudentID,
		StudentName: student.Name,
		Status:      record.Status,
		Timestamp:   record.Timestamp,
	}, nil
}

// Record sets a student's status for a session by hand. studentID is the
// student profile id.
func (s *AttendanceService) Record(ctx context.Context, sessionID, studentID string, req dto.RecordAttendanceRequest, actor *models.JWTClaims) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be one of Present, Absent, Late")
	}
	session, err := requireSessionOwner(ctx, s.sessions, sessionID, actor)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, session.CourseID, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.ErrNotEnrolled
	}

	markedBy := actor.UserID
	record := &models.Attendance{
		SessionID: session.ID,
		StudentID: student.ID,
		Status:    req.Status,
		MarkedBy:  &markedBy,
		Timestamp: s.now(),
	}
	if err := s.attendance.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	if s.cache != nil {
		s.cache.InvalidateAttendance(ctx)
	}

	entry := logEntry(models.LogLevelInfo, models.LogActionAttendanceMark, "attendance", "Attendance recorded manually", actor, map[string]interface{}{
		"student_id": student.StudentID,
		"status":     req.Status,
	})
	entry.ResourceID = strPtr(session.ID)
	s.activity.Record(ctx, entry)
	return record, nil
}

// Roster lists every enrolled student with their status for the session.
func (s *AttendanceService) Roster(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.AttendanceRosterEntry, error) {
	if _, err := requireSessionOwner(ctx, s.sessions, sessionID, actor); err != nil {
		return nil, err
	}
	roster, err := s.attendance.Roster(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if roster == nil {
		roster = []models.AttendanceRosterEntry{}
	}
	return roster, nil
}

// MyAttendance returns the calling student's marks and per-course percentages.
func (s *AttendanceService) MyAttendance(ctx context.Context, actor *models.JWTClaims, courseID string) (*dto.MyAttendanceResponse, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found for this account")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}

	records, err := s.attendance.ListByStudent(ctx, student.ID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	if records == nil {
		records = []models.StudentAttendanceRecord{}
	}
	counts, err := s.counts.StudentCourseCounts(ctx, models.ReportFilter{CourseID: courseID}, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute attendance")
	}
	return &dto.MyAttendanceResponse{Records: records, Courses: toPercentages(counts)}, nil
}

// StudentOverview returns a student's attendance percentage over the range,
// optionally narrowed to one course.
func (s *AttendanceService) StudentOverview(ctx context.Context, studentID string, filter models.ReportFilter, actor *models.JWTClaims) (*models.StudentAttendanceOverview, error) {
	if err := validateRange(filter); err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.access.Authorize(ctx, student, actor); err != nil {
		return nil, err
	}

	counts, err := s.counts.StudentCourseCounts(ctx, models.ReportFilter{CourseID: filter.CourseID, StartDate: filter.StartDate, EndDate: filter.EndDate}, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute attendance")
	}

	overview := &models.StudentAttendanceOverview{
		StudentID:    student.ID,
		StudentIndex: student.StudentID,
		Name:         student.Name,
		StartDate:    filter.StartDate,
		EndDate:      filter.EndDate,
		Courses:      toPercentages(counts),
	}
	for _, c := range counts {
		overview.AttendedSessions += c.Attended
		overview.TotalSessions += c.TotalSessions
	}
	overview.AttendancePercentage = models.Percentage(overview.AttendedSessions, overview.TotalSessions)
	return overview, nil
}

// CourseSummary returns per-student percentages for a course and their average.
func (s *AttendanceService) CourseSummary(ctx context.Context, courseID string, filter models.ReportFilter, actor *models.JWTClaims) (*models.CourseAttendanceSummary, error) {
	if err := validateRange(filter); err != nil {
		return nil, err
	}
	course, err := requireCourseOwner(ctx, s.courses, courseID, actor)
	if err != nil {
		return nil, err
	}
	counts, err := s.counts.StudentCourseCounts(ctx, models.ReportFilter{CourseID: course.ID, StartDate: filter.StartDate, EndDate: filter.EndDate}, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute attendance")
	}

	summary := &models.CourseAttendanceSummary{
		CourseID:          course.ID,
		CourseName:        course.Name,
		StudentAttendance: toPercentages(counts),
	}
	if n := len(summary.StudentAttendance); n > 0 {
		var total float64
		for _, row := range summary.StudentAttendance {
			total += row.AttendancePercentage
		}
		summary.AverageAttendancePercentage = float64(int64(total/float64(n)*100+0.5)) / 100
	}
	return summary, nil
}

func toPercentages(counts []models.CourseAttendanceCount) []models.StudentAttendancePercentage {
	out := make([]models.StudentAttendancePercentage, 0, len(counts))
	for _, c := range counts {
		out = append(out, models.StudentAttendancePercentage{
			StudentID:            c.StudentID,
			StudentIndex:         c.StudentIndex,
			Name:                 c.StudentName,
			CourseID:             c.CourseID,
			CourseName:           c.CourseName,
			AttendedSessions:     c.Attended,
			TotalSessions:        c.TotalSessions,
			AttendancePercentage: c.Percentage(),
		})
	}
	return out
}

func validateRange(filter models.ReportFilter) error {
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(filter.StartDate.Time) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	return nil
}
