package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type courseServiceMock struct {
	filter    models.CourseFilter
	created   *dto.CreateCourseRequest
	createErr error
}

func (m *courseServiceMock) List(ctx context.Context, filter models.CourseFilter, actor *models.JWTClaims) ([]models.Course, *models.Pagination, error) {
	m.filter = filter
	return []models.Course{{ID: "c-1", Name: "Algorithms"}}, models.NewPagination(filter.Page, filter.PerPage, 1), nil
}

func (m *courseServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Course, error) {
	return &models.Course{ID: id, Name: "Algorithms"}, nil
}

func (m *courseServiceMock) Create(ctx context.Context, req dto.CreateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	m.created = &req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Course{ID: "c-2", Name: req.Name}, nil
}

func (m *courseServiceMock) Update(ctx context.Context, id string, req dto.UpdateCourseRequest, actor *models.JWTClaims) (*models.Course, error) {
	return &models.Course{ID: id}, nil
}

func (m *courseServiceMock) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	return nil
}

type enrollmentServiceMock struct {
	courseID string
	enrolled []string
	removed  []string
	err      error
}

func (m *enrollmentServiceMock) Students(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.Student, error) {
	return []models.Student{{ID: "stu-1", Name: "Ann"}}, nil
}

func (m *enrollmentServiceMock) Enroll(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) (*dto.EnrollResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.courseID, m.enrolled = courseID, req.StudentIDs
	return &dto.EnrollResult{Message: "Students enrolled", NewlyEnrolled: len(req.StudentIDs)}, nil
}

func (m *enrollmentServiceMock) Unenroll(ctx context.Context, courseID string, req dto.EnrollmentRequest, actor *models.JWTClaims) (*dto.UnenrollResult, error) {
	m.courseID, m.removed = courseID, req.StudentIDs
	return &dto.UnenrollResult{Message: "Students unenrolled", Unenrolled: len(req.StudentIDs)}, nil
}

type courseSummaryMock struct {
	filter models.ReportFilter
}

func (m *courseSummaryMock) CourseSummary(ctx context.Context, courseID string, filter models.ReportFilter, actor *models.JWTClaims) (*models.CourseAttendanceSummary, error) {
	m.filter = filter
	return &models.CourseAttendanceSummary{CourseID: courseID, AverageAttendancePercentage: 87.5}, nil
}

func TestCourseHandlerListParsesPaging(t *testing.T) {
	cases := []struct {
		url  string
		want models.CourseFilter
	}{
		{"/api/courses", models.CourseFilter{}},
		{"/api/courses?page=2&per_page=50&search=%20algo%20", models.CourseFilter{Page: 2, PerPage: 50, Search: "algo"}},
		{"/api/courses?page=two&per_page=1.5", models.CourseFilter{}},
	}
	for _, tc := range cases {
		svc := &courseServiceMock{}
		h := NewCourseHandler(svc, &enrollmentServiceMock{}, &courseSummaryMock{})
		c, w := newGinContext(http.MethodGet, tc.url, nil)
		withClaims(c, "lect-1", models.RoleLecturer)
		h.List(c)

		require.Equal(t, http.StatusOK, w.Code, tc.url)
		assert.Equal(t, tc.want, svc.filter, tc.url)
	}

	c, w := newGinContext(http.MethodGet, "/api/courses", nil)
	NewCourseHandler(&courseServiceMock{}, nil, nil).List(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCourseHandlerCreate(t *testing.T) {
	svc := &courseServiceMock{}
	h := NewCourseHandler(svc, nil, nil)

	c, w := newGinContext(http.MethodPost, "/api/courses", []byte(`{"name":"Networks","total_attendance_marks":10}`))
	withClaims(c, "lect-1", models.RoleLecturer)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.created.TotalAttendanceMarks)
	assert.Equal(t, 10, *svc.created.TotalAttendanceMarks)

	svc.createErr = appErrors.Clone(appErrors.ErrConflict, "Course name already exists")
	c, w = newGinContext(http.MethodPost, "/api/courses", []byte(`{"name":"Networks"}`))
	withClaims(c, "lect-1", models.RoleLecturer)
	h.Create(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCourseHandlerEnrollmentBody(t *testing.T) {
	cases := []struct {
		name   string
		method string
		body   string
		status int
		want   []string
	}{
		{"enroll", http.MethodPost, `{"student_ids":["stu-1","stu-2"]}`, http.StatusOK, []string{"stu-1", "stu-2"}},
		{"enroll empty list reaches service", http.MethodPost, `{"student_ids":[]}`, http.StatusOK, []string{}},
		{"enroll malformed", http.MethodPost, `{"student_ids":"stu-1"}`, http.StatusBadRequest, nil},
		{"unenroll", http.MethodDelete, `{"student_ids":["stu-2"]}`, http.StatusOK, []string{"stu-2"}},
		{"unenroll without body", http.MethodDelete, ``, http.StatusBadRequest, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enrollments := &enrollmentServiceMock{}
			h := NewCourseHandler(&courseServiceMock{}, enrollments, nil)
			c, w := newGinContext(tc.method, "/api/courses/c-1/students", []byte(tc.body))
			c.Params = gin.Params{{Key: "id", Value: "c-1"}}
			withClaims(c, "lect-1", models.RoleLecturer)
			if tc.method == http.MethodPost {
				h.Enroll(c)
			} else {
				h.Unenroll(c)
			}

			require.Equal(t, tc.status, w.Code)
			if tc.want == nil {
				assert.Empty(t, enrollments.courseID)
				return
			}
			assert.Equal(t, "c-1", enrollments.courseID)
			if tc.method == http.MethodPost {
				assert.Equal(t, tc.want, enrollments.enrolled)
			} else {
				assert.Equal(t, tc.want, enrollments.removed)
			}
		})
	}
}

func TestCourseHandlerEnrollUnknownStudent(t *testing.T) {
	h := NewCourseHandler(&courseServiceMock{}, &enrollmentServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "Student stu-9 not found")}, nil)

	c, w := newGinContext(http.MethodPost, "/api/courses/c-1/students", []byte(`{"student_ids":["stu-9"]}`))
	withClaims(c, "lect-1", models.RoleLecturer)
	h.Enroll(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Student stu-9 not found", decode(t, w).Message)
}

func TestCourseHandlerAttendanceSummaryDates(t *testing.T) {
	summaries := &courseSummaryMock{}
	h := NewCourseHandler(&courseServiceMock{}, nil, summaries)

	c, w := newGinContext(http.MethodGet, "/api/courses/c-1/attendance_summary?start_date=2024-03-01&end_date=2024-03-31", nil)
	c.Params = gin.Params{{Key: "id", Value: "c-1"}}
	withClaims(c, "lect-1", models.RoleLecturer)
	h.AttendanceSummary(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, summaries.filter.StartDate)
	assert.Equal(t, "2024-03-01", summaries.filter.StartDate.String())
	assert.Equal(t, "2024-03-31", summaries.filter.EndDate.String())
	assert.Contains(t, w.Body.String(), `"average_attendance_percentage":87.5`)

	c, w = newGinContext(http.MethodGet, "/api/courses/c-1/attendance_summary?end_date=31-03-2024", nil)
	withClaims(c, "lect-1", models.RoleLecturer)
	h.AttendanceSummary(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "end_date must be YYYY-MM-DD", decode(t, w).Message)
}
