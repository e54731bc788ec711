package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
)

// ListQuery is the common search and pagination filter.
type ListQuery struct {
	Search  string
	Page    int
	PerPage int
}

func (q ListQuery) values() url.Values {
	query := pageQuery(q.Page, q.PerPage)
	if s := strings.TrimSpace(q.Search); s != "" {
		query.Set("search", s)
	}
	return query
}

// UserQuery filters the admin user list.
type UserQuery struct {
	ListQuery
	Role models.UserRole
}

// UserRequest creates or updates an account. Empty fields are omitted so an
// update only touches what is set.
type UserRequest struct {
	Username string          `json:"username,omitempty"`
	Email    string          `json:"email,omitempty"`
	Password string          `json:"password,omitempty"`
	Role     models.UserRole `json:"role,omitempty"`
	IsAdmin  *bool           `json:"is_admin,omitempty"`
}

// ReportQuery narrows attendance reports by course and date range (YYYY-MM-DD).
type ReportQuery struct {
	CourseID  string
	StartDate string
	EndDate   string
}

func (q ReportQuery) values() url.Values {
	query := url.Values{}
	if q.CourseID != "" {
		query.Set("course_id", q.CourseID)
	}
	if q.StartDate != "" {
		query.Set("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		query.Set("end_date", q.EndDate)
	}
	return query
}

func escape(segment string) string {
	return url.PathEscape(segment)
}

// ListUsers pages through user accounts (admin).
func (c *Client) ListUsers(ctx context.Context, q UserQuery) ([]models.User, *models.Pagination, error) {
	query := q.values()
	if q.Role != "" {
		query.Set("role", string(q.Role))
	}
	var users []models.User
	env, err := c.do(ctx, http.MethodGet, "/users", query, nil, &users)
	if err != nil {
		return nil, nil, err
	}
	return users, env.Pagination, nil
}

// Lecturers lists lecturer accounts for course assignment.
func (c *Client) Lecturers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if _, err := c.do(ctx, http.MethodGet, "/lecturers", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches one account.
func (c *Client) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if _, err := c.do(ctx, http.MethodGet, "/users/"+escape(id), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser adds an account (admin).
func (c *Client) CreateUser(ctx context.Context, req UserRequest) (*models.User, error) {
	var user models.User
	if _, err := c.do(ctx, http.MethodPost, "/users", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser changes an account (admin).
func (c *Client) UpdateUser(ctx context.Context, id string, req UserRequest) (*models.User, error) {
	var user models.User
	if _, err := c.do(ctx, http.MethodPut, "/users/"+escape(id), nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/users/"+escape(id), nil, nil, nil)
	return err
}

// ListStudents pages through student profiles.
func (c *Client) ListStudents(ctx context.Context, q ListQuery) ([]models.Student, *models.Pagination, error) {
	var students []models.Student
	env, err := c.do(ctx, http.MethodGet, "/students", q.values(), nil, &students)
	if err != nil {
		return nil, nil, err
	}
	return students, env.Pagination, nil
}

// GetStudent fetches one student profile.
func (c *Client) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if _, err := c.do(ctx, http.MethodGet, "/students/"+escape(id), nil, nil, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreateStudent adds a student profile. Lecturers use the lecturer route.
func (c *Client) CreateStudent(ctx context.Context, req dto.CreateStudentRequest, asLecturer bool) (*models.Student, error) {
	path := "/students"
	if asLecturer {
		path = "/lecturer/students"
	}
	var student models.Student
	if _, err := c.do(ctx, http.MethodPost, path, nil, req, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateStudent changes a student profile (admin).
func (c *Client) UpdateStudent(ctx context.Context, id string, req dto.UpdateStudentRequest) (*models.Student, error) {
	var student models.Student
	if _, err := c.do(ctx, http.MethodPut, "/students/"+escape(id), nil, req, &student); err != nil {
		return nil, err
	}
	return &student, nil
}

// DeleteStudent removes a student profile (admin).
func (c *Client) DeleteStudent(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/students/"+escape(id), nil, nil, nil)
	return err
}

// ImportStudents upserts a batch of students by index number.
func (c *Client) ImportStudents(ctx context.Context, rows []dto.ImportStudentRow) (*dto.ImportResult, error) {
	var result dto.ImportResult
	if _, err := c.do(ctx, http.MethodPost, "/import-students", nil, rows, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportStudents downloads the student list as a file.
func (c *Client) ExportStudents(ctx context.Context, q dto.StudentExportQuery) (*File, error) {
	query := url.Values{}
	for key, value := range map[string]string{
		"student_id":  q.StudentID,
		"name":        q.Name,
		"course_name": q.CourseName,
		"format":      q.Format,
	} {
		if value != "" {
			query.Set(key, value)
		}
	}
	return c.download(ctx, c.endpoint("/export_students", query))
}

// ListCourses returns the courses visible to the caller.
func (c *Client) ListCourses(ctx context.Context, q ListQuery) ([]models.Course, *models.Pagination, error) {
	var courses []models.Course
	env, err := c.do(ctx, http.MethodGet, "/courses", q.values(), nil, &courses)
	if err != nil {
		return nil, nil, err
	}
	return courses, env.Pagination, nil
}

// GetCourse fetches one course.
func (c *Client) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if _, err := c.do(ctx, http.MethodGet, "/courses/"+escape(id), nil, nil, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// CreateCourse adds a course.
func (c *Client) CreateCourse(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	var course models.Course
	if _, err := c.do(ctx, http.MethodPost, "/courses", nil, req, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// UpdateCourse changes a course.
func (c *Client) UpdateCourse(ctx context.Context, id string, req dto.UpdateCourseRequest) (*models.Course, error) {
	var course models.Course
	if _, err := c.do(ctx, http.MethodPut, "/courses/"+escape(id), nil, req, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// DeleteCourse removes a course and its sessions.
func (c *Client) DeleteCourse(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/courses/"+escape(id), nil, nil, nil)
	return err
}

// CourseStudents lists the students enrolled in a course.
func (c *Client) CourseStudents(ctx context.Context, courseID string) ([]models.Student, error) {
	var students []models.Student
	if _, err := c.do(ctx, http.MethodGet, "/courses/"+escape(courseID)+"/students", nil, nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// Enroll adds students to a course.
func (c *Client) Enroll(ctx context.Context, courseID string, studentIDs []string) (*dto.EnrollResult, error) {
	var result dto.EnrollResult
	req := dto.EnrollmentRequest{StudentIDs: studentIDs}
	if _, err := c.do(ctx, http.MethodPost, "/courses/"+escape(courseID)+"/students", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Unenroll removes students from a course.
func (c *Client) Unenroll(ctx context.Context, courseID string, studentIDs []string) (*dto.UnenrollResult, error) {
	var result dto.UnenrollResult
	req := dto.EnrollmentRequest{StudentIDs: studentIDs}
	if _, err := c.do(ctx, http.MethodDelete, "/courses/"+escape(courseID)+"/students", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CourseAttendanceSummary returns per-student attendance for a course.
func (c *Client) CourseAttendanceSummary(ctx context.Context, courseID string, q ReportQuery) (*models.CourseAttendanceSummary, error) {
	var summary models.CourseAttendanceSummary
	if _, err := c.do(ctx, http.MethodGet, "/courses/"+escape(courseID)+"/attendance_summary", q.values(), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// CourseSessions lists the sessions of a course.
func (c *Client) CourseSessions(ctx context.Context, courseID string) ([]models.Session, error) {
	var sessions []models.Session
	if _, err := c.do(ctx, http.MethodGet, "/courses/"+escape(courseID)+"/sessions", nil, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession schedules a session.
func (c *Client) CreateSession(ctx context.Context, req dto.CreateSessionRequest) (*models.Session, error) {
	var session models.Session
	if _, err := c.do(ctx, http.MethodPost, "/sessions", nil, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SessionQuery pages through sessions, optionally within one course.
type SessionQuery struct {
	CourseID string
	Page     int
	PerPage  int
}

func (q SessionQuery) values() url.Values {
	query := pageQuery(q.Page, q.PerPage)
	if q.CourseID != "" {
		query.Set("course_id", q.CourseID)
	}
	return query
}

// ListSessions returns sessions the caller manages.
func (c *Client) ListSessions(ctx context.Context, q SessionQuery) ([]models.Session, *models.Pagination, error) {
	var sessions []models.Session
	env, err := c.do(ctx, http.MethodGet, "/sessions", q.values(), nil, &sessions)
	if err != nil {
		return nil, nil, err
	}
	return sessions, env.Pagination, nil
}

// UpdateSession reschedules a session.
func (c *Client) UpdateSession(ctx context.Context, id string, req dto.UpdateSessionRequest) (*models.Session, error) {
	var session models.Session
	if _, err := c.do(ctx, http.MethodPut, "/sessions/"+escape(id), nil, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if _, err := c.do(ctx, http.MethodGet, "/sessions/"+escape(id), nil, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/sessions/"+escape(id), nil, nil, nil)
	return err
}

// PublicSessionDetails is the unauthenticated summary shown on the scan page.
func (c *Client) PublicSessionDetails(ctx context.Context, sessionID string) (*models.PublicSessionDetails, error) {
	var details models.PublicSessionDetails
	if _, err := c.do(ctx, http.MethodGet, "/sessions/"+escape(sessionID)+"/details-public", nil, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// GenerateQR issues an attendance code valid for minutes. Zero asks the
// server for its default lifetime.
func (c *Client) GenerateQR(ctx context.Context, sessionID string, minutes int) (*models.QRToken, error) {
	req := dto.GenerateQRRequest{}
	if minutes > 0 {
		req.Duration = &minutes
	}
	var token models.QRToken
	if _, err := c.do(ctx, http.MethodPost, "/sessions/"+escape(sessionID)+"/qr", nil, req, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// QRStatus reports whether the session currently accepts scans.
func (c *Client) QRStatus(ctx context.Context, sessionID string) (*models.QRStatus, error) {
	var status models.QRStatus
	if _, err := c.do(ctx, http.MethodGet, "/sessions/"+escape(sessionID)+"/qr", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DeactivateQR closes the session for scanning.
func (c *Client) DeactivateQR(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/sessions/"+escape(sessionID)+"/qr", nil, nil, nil)
	return err
}

// MarkAttendance submits a scan. The endpoint is public; the server alone
// decides whether the code is still valid.
func (c *Client) MarkAttendance(ctx context.Context, sessionID, indexNumber, qrUUID string) (*dto.MarkAttendanceResponse, error) {
	req := dto.MarkAttendanceRequest{StudentIndexNumber: indexNumber, QRCodeUUID: qrUUID}
	var res dto.MarkAttendanceResponse
	if _, err := c.do(ctx, http.MethodPost, "/sessions/"+escape(sessionID)+"/attendance", nil, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SessionAttendance returns the roster of a session.
func (c *Client) SessionAttendance(ctx context.Context, sessionID string) ([]models.AttendanceRosterEntry, error) {
	var roster []models.AttendanceRosterEntry
	if _, err := c.do(ctx, http.MethodGet, "/sessions/"+escape(sessionID)+"/attendance", nil, nil, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// RecordAttendance sets a student's status manually.
func (c *Client) RecordAttendance(ctx context.Context, sessionID, studentID string, status models.AttendanceStatus) (*models.Attendance, error) {
	var record models.Attendance
	req := dto.RecordAttendanceRequest{Status: status}
	path := "/sessions/" + escape(sessionID) + "/attendance/" + escape(studentID)
	if _, err := c.do(ctx, http.MethodPut, path, nil, req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// MyAttendance returns the signed-in student's history, optionally for one course.
func (c *Client) MyAttendance(ctx context.Context, courseID string) (*dto.MyAttendanceResponse, error) {
	query := url.Values{}
	if courseID != "" {
		query.Set("course_id", courseID)
	}
	var res dto.MyAttendanceResponse
	if _, err := c.do(ctx, http.MethodGet, "/my-attendance", query, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// StudentAttendance returns the per-course overview for a student.
func (c *Client) StudentAttendance(ctx context.Context, studentID string, q ReportQuery) (*models.StudentAttendanceOverview, error) {
	var overview models.StudentAttendanceOverview
	if _, err := c.do(ctx, http.MethodGet, "/students/"+escape(studentID)+"/attendance", q.values(), nil, &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}
