package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/export"
	"github.com/noah-isme/presencepro-api/pkg/storage"
)

type exportAnalytics interface {
	StudentCourseCounts(ctx context.Context, filter models.ReportFilter, studentID string) ([]models.CourseAttendanceCount, error)
	SessionTallies(ctx context.Context, filter models.ReportFilter) ([]models.SessionAttendanceTally, error)
}

type exportStudentReader interface {
	ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

type exportCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByName(ctx context.Context, name string) (*models.Course, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(format export.Format, data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportFile is a rendered blob returned directly to the caller.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportServiceDeps groups collaborators of ExportService.
type ExportServiceDeps struct {
	Analytics exportAnalytics
	Students  exportStudentReader
	Courses   exportCourseReader
	Storage   fileStorage
	Signer    *storage.DownloadSigner
	Renderer  datasetRenderer
}

// ExportService renders datasets for direct downloads and persisted report files.
type ExportService struct {
	analytics exportAnalytics
	students  exportStudentReader
	courses   exportCourseReader
	storage   fileStorage
	signer    *storage.DownloadSigner
	renderer  datasetRenderer
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(deps ExportServiceDeps, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if deps.Renderer == nil {
		deps.Renderer = export.NewRenderer()
	}
	return &ExportService{
		analytics: deps.Analytics,
		students:  deps.Students,
		courses:   deps.Courses,
		storage:   deps.Storage,
		signer:    deps.Signer,
		renderer:  deps.Renderer,
		logger:    logger,
		cfg:       cfg,
	}
}

// ExportStudents renders the student list. When a course name is given the
// list is narrowed to that course and every row carries the attendance mark
// earned in it.
func (s *ExportService) ExportStudents(ctx context.Context, query dto.StudentExportQuery, actor *models.JWTClaims) (*ExportFile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.Administrator() && !actor.HasRole(models.RoleLecturer) {
		return nil, appErrors.ErrForbidden
	}
	format, err := export.ParseFormat(query.Format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be one of csv, json, pdf")
	}

	filter := models.StudentFilter{
		StudentID:  strings.TrimSpace(query.StudentID),
		Name:       strings.TrimSpace(query.Name),
		CourseName: strings.TrimSpace(query.CourseName),
	}
	if !actor.Administrator() {
		filter.LecturerID = actor.UserID
	}
	students, err := s.students.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	dataset := export.Dataset{
		Title:   "Students",
		Headers: []string{"student_id", "name", "email", "class_name", "major"},
	}

	var (
		marks      map[string]float64
		totalMarks int
	)
	if filter.CourseName != "" {
		marks, totalMarks, err = s.courseMarks(ctx, filter.CourseName, actor)
		if err != nil {
			return nil, err
		}
		dataset.Title = "Students - " + filter.CourseName
		dataset.Headers = append(dataset.Headers, "attendance_mark")
	}

	for _, student := range students {
		values := []string{student.StudentID, student.Name, deref(student.Email), deref(student.ClassName), deref(student.Major)}
		if marks != nil {
			values = append(values, strconv.FormatFloat(marks[student.ID], 'f', 2, 64))
		}
		dataset.Append(values...)
	}

	payload, err := s.renderer.Render(format, dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("students exported", zap.Int("rows", len(students)), zap.String("format", string(format)), zap.Int("total_marks", totalMarks))
	return &ExportFile{
		Filename:    format.Filename("students"),
		ContentType: format.ContentType(),
		Data:        payload,
	}, nil
}

// courseMarks maps student ids to attended/total scaled by the course's
// total attendance marks.
func (s *ExportService) courseMarks(ctx context.Context, courseName string, actor *models.JWTClaims) (map[string]float64, int, error) {
	course, err := s.courses.FindByName(ctx, courseName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, appErrors.Clone(appErrors.ErrNotFound, "Course not found")
		}
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !actor.Administrator() && !course.TaughtBy(actor.UserID) {
		return nil, 0, appErrors.ErrForbidden
	}
	total := course.TotalAttendanceMarks
	if total <= 0 {
		total = models.DefaultAttendanceMarks
	}
	counts, err := s.analytics.StudentCourseCounts(ctx, models.ReportFilter{CourseID: course.ID}, "")
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance counts")
	}
	marks := make(map[string]float64, len(counts))
	for _, count := range counts {
		marks[count.StudentID] = attendanceMark(count.Attended, count.TotalSessions, total)
	}
	return marks, total, nil
}

func attendanceMark(attended, sessions, totalMarks int) float64 {
	return models.Percentage(attended, sessions) * float64(totalMarks) / 100
}

// Generate builds the dataset for a report job and stores the rendered file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	format, err := export.ParseFormat(string(job.Params.Format))
	if err != nil {
		return nil, err
	}
	dataset, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := s.renderer.Render(format, dataset)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, format), payload)
	if err != nil {
		return nil, err
	}
	token, grant, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    grant.ExpiresAt,
	}, nil
}

// VerifyDownload decodes a download token. Expired tokens return their grant
// with storage.ErrDownloadExpired.
func (s *ExportService) VerifyDownload(token string) (storage.DownloadGrant, error) {
	return s.signer.Verify(token)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, format export.Format) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	base := fmt.Sprintf("%s_%s_%s", strings.ToLower(string(job.Type)), sanitizeFilename(job.Params.CourseID), timestamp)
	return format.Filename(base)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, error) {
	filter := models.ReportFilter{
		CourseID:  job.Params.CourseID,
		StartDate: job.Params.StartDate,
		EndDate:   job.Params.EndDate,
	}
	switch job.Type {
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, filter)
	case models.ReportTypeCourseSummary:
		return s.buildCourseSummaryDataset(ctx, filter)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildAttendanceDataset(ctx context.Context, filter models.ReportFilter) (export.Dataset, error) {
	tallies, err := s.analytics.SessionTallies(ctx, filter)
	if err != nil {
		return export.Dataset{}, err
	}
	report := BuildAttendanceReport(filter, tallies)

	dataset := export.Dataset{
		Title:   "Attendance Report" + s.courseSuffix(ctx, filter.CourseID),
		Headers: []string{"Date", "Course", "Start", "End", "Present", "Absent", "Rate (%)"},
	}
	for _, row := range report.Sessions {
		dataset.Append(
			row.SessionDate.String(),
			row.CourseName,
			row.StartTime,
			row.EndTime,
			strconv.Itoa(row.Present),
			strconv.Itoa(row.Absent),
			strconv.FormatFloat(row.Rate, 'f', 2, 64),
		)
	}
	dataset.Append("Total", "", "", "",
		strconv.Itoa(report.TotalPresent),
		strconv.Itoa(report.TotalAbsent),
		strconv.FormatFloat(report.OverallRate, 'f', 2, 64),
	)
	return dataset, nil
}

func (s *ExportService) buildCourseSummaryDataset(ctx context.Context, filter models.ReportFilter) (export.Dataset, error) {
	counts, err := s.analytics.StudentCourseCounts(ctx, filter, "")
	if err != nil {
		return export.Dataset{}, err
	}
	dataset := export.Dataset{
		Title:   "Course Summary" + s.courseSuffix(ctx, filter.CourseID),
		Headers: []string{"Student ID", "Name", "Course", "Attended", "Sessions", "Attendance (%)"},
	}
	for _, count := range counts {
		dataset.Append(
			count.StudentIndex,
			count.StudentName,
			count.CourseName,
			strconv.Itoa(count.Attended),
			strconv.Itoa(count.TotalSessions),
			strconv.FormatFloat(count.Percentage(), 'f', 2, 64),
		)
	}
	return dataset, nil
}

func (s *ExportService) courseSuffix(ctx context.Context, courseID string) string {
	if courseID == "" || s.courses == nil {
		return ""
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		s.logger.Debug("course title lookup failed", zap.String("course_id", courseID), zap.Error(err))
		return ""
	}
	return " - " + course.Name
}
