package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
)

type routerTokens map[string]*models.JWTClaims

func (r routerTokens) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	if claims, ok := r[token]; ok {
		return claims, nil
	}
	return nil, appErrors.ErrTokenRevoked
}

type routerActivity struct {
	actions []string
}

func (r *routerActivity) Record(ctx context.Context, entry models.SystemLog) {
	r.actions = append(r.actions, entry.Message)
}

func buildRouter(activity *routerActivity) *gin.Engine {
	return buildRouterWith(activity, &attendanceServiceMock{})
}

func buildRouterWith(activity *routerActivity, attendance *attendanceServiceMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	tokens := routerTokens{
		"admin":    {UserID: "u-admin", Role: models.RoleAdmin},
		"lecturer": {UserID: "u-lect", Role: models.RoleLecturer},
		"student":  {UserID: "u-stu", Role: models.RoleStudent},
	}
	Register(router.Group("/api"), Handlers{
		Auth:       NewAuthHandler(&authServiceMock{loginResp: &models.LoginResponse{AccessToken: "t", RedirectTo: "/admin/dashboard"}}),
		Users:      NewUserHandler(nil),
		Students:   NewStudentHandler(&studentServiceMock{}, &studentExporterMock{}),
		Courses:    NewCourseHandler(nil, nil, nil),
		Sessions:   NewSessionHandler(&sessionServiceMock{}, &qrServiceMock{}),
		Attendance: NewAttendanceHandler(attendance),
		Analytics:  NewAnalyticsHandler(nil),
		Reports:    NewReportHandler(&reportServiceMock{}),
		Admin:      NewAdminHandler(&dashboardServiceMock{}, &settingServiceMock{}, &systemLogServiceMock{}),
	}, tokens, activity)
	return router
}

func TestRouterAccessRules(t *testing.T) {
	router := buildRouter(&routerActivity{})

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"login is public", http.MethodPost, "/api/login", "", `{"identifier":"root","password":"pw"}`, http.StatusOK},
		{"mark attendance is public", http.MethodPost, "/api/sessions/se-1/attendance", "", `{"student_index_number":"IDX1","qr_code_uuid":"u"}`, http.StatusCreated},
		{"mark attendance ignores a stale token", http.MethodPost, "/api/sessions/se-1/attendance", "gone", `{"student_index_number":"IDX1","qr_code_uuid":"u"}`, http.StatusCreated},
		{"student cannot list sessions", http.MethodGet, "/api/sessions", "student", "", http.StatusForbidden},
		{"lecturer lists sessions", http.MethodGet, "/api/sessions?page=1", "lecturer", "", http.StatusOK},
		{"student cannot update session", http.MethodPut, "/api/sessions/se-1", "student", `{"end_time":"11:00"}`, http.StatusForbidden},
		{"lecturer updates session", http.MethodPut, "/api/sessions/se-1", "lecturer", `{"end_time":"11:00"}`, http.StatusOK},
		{"profile needs a token", http.MethodGet, "/api/my-profile", "", "", http.StatusUnauthorized},
		{"revoked token", http.MethodGet, "/api/my-attendance", "gone", "", http.StatusUnauthorized},
		{"student reaches own attendance", http.MethodGet, "/api/my-attendance", "student", "", http.StatusOK},
		{"lecturer cannot use my-attendance", http.MethodGet, "/api/my-attendance", "lecturer", "", http.StatusForbidden},
		{"student cannot issue QR", http.MethodPost, "/api/sessions/se-1/qr", "student", "", http.StatusForbidden},
		{"lecturer issues QR", http.MethodPost, "/api/sessions/se-1/qr", "lecturer", "", http.StatusCreated},
		{"lecturer blocked from admin", http.MethodGet, "/api/admin/dashboard-stats", "lecturer", "", http.StatusForbidden},
		{"admin dashboard", http.MethodGet, "/api/admin/dashboard-stats", "admin", "", http.StatusOK},
		{"student cannot list users", http.MethodGet, "/api/users", "student", "", http.StatusForbidden},
		{"student cannot export", http.MethodGet, "/api/export_students", "student", "", http.StatusForbidden},
		{"lecturer exports", http.MethodGet, "/api/export_students", "lecturer", "", http.StatusOK},
		{"student cannot see analytics", http.MethodGet, "/api/lecturer/top-students", "student", "", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestRouterAuditsAuthenticatedWrites(t *testing.T) {
	activity := &routerActivity{}
	router := buildRouter(activity)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/se-1/qr", nil)
	req.Header.Set("Authorization", "Bearer lecturer")
	router.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/se-1/qr", nil)
	req.Header.Set("Authorization", "Bearer lecturer")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, []string{"POST /api/sessions/:id/qr"}, activity.actions)
}

func TestRouterMarkAttendanceCarriesSignedInScanner(t *testing.T) {
	attendance := &attendanceServiceMock{}
	router := buildRouterWith(&routerActivity{}, attendance)
	body := `{"student_index_number":"IDX1","qr_code_uuid":"u"}`

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/se-1/attendance", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer student")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, attendance.lastMeta.Actor)
	assert.Equal(t, "u-stu", attendance.lastMeta.Actor.UserID)

	req = httptest.NewRequest(http.MethodPost, "/api/sessions/se-1/attendance", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, attendance.lastMeta.Actor)
}
