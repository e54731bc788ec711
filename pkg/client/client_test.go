package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
)

type tokenBox struct {
	token   string
	cleared int
}

func (b *tokenBox) Token() string { return b.token }

func (b *tokenBox) SetToken(token string) error {
	b.token = token
	return nil
}

func (b *tokenBox) Clear() error {
	b.token = ""
	b.cleared++
	return nil
}

func writeEnvelope(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *tokenBox) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	box := &tokenBox{}
	c, err := New(server.URL+"/api/v1", WithTokenStore(box))
	require.NoError(t, err)
	return c, box
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("/api/v1")
	assert.Error(t, err)
}

func TestLoginStoresTokenAndSendsBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ann@example.com", req.Identifier)
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"access_token": "tok-1", "role": "student", "redirect_to": "/student/dashboard"},
		})
	})
	mux.HandleFunc("/api/v1/my-profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"id": "u-1", "username": "ann", "role": "student"},
		})
	})
	c, box := newTestClient(t, mux)

	res, err := c.Login(context.Background(), "ann@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", res.AccessToken)
	assert.Equal(t, "tok-1", box.token)

	profile, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, profile.Role)
}

func TestProfileWithoutToken(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	_, err := c.Profile(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestUnauthorizedClearsToken(t *testing.T) {
	c, box := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, map[string]interface{}{
			"message": "Token has been revoked",
			"error":   map[string]interface{}{"code": "TOKEN_REVOKED", "message": "Token has been revoked", "status": 401},
		})
	}))
	box.token = "stale"

	_, _, err := c.ListCourses(context.Background(), ListQuery{})
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, "Token has been revoked", err.Error())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "TOKEN_REVOKED", apiErr.Code)
	assert.Empty(t, box.token)
	assert.Equal(t, 1, box.cleared)
}

func TestErrorWithoutEnvelopeUsesStatusText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	_, err := c.PublicSessionDetails(context.Background(), "s-1")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, "Bad Gateway", err.Error())
}

func TestListUsersSendsPaginationAndDecodesIt(t *testing.T) {
	c, box := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))
		assert.Equal(t, "lecturer", r.URL.Query().Get("role"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"data":       []map[string]interface{}{{"id": "u-1", "username": "bob", "role": "lecturer"}},
			"pagination": map[string]interface{}{"page": 2, "per_page": 10, "total": 11, "pages": 2},
		})
	}))
	box.token = "tok"

	users, pagination, err := c.ListUsers(context.Background(), UserQuery{ListQuery: ListQuery{Page: 2, PerPage: 10}, Role: models.RoleLecturer})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
	require.NotNil(t, pagination)
	assert.Equal(t, 2, pagination.Pages)
}

func TestSessionListAndUpdate(t *testing.T) {
	var updated map[string]interface{}
	c, box := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "/api/v1/sessions", r.URL.Path)
			assert.Equal(t, "c-1", r.URL.Query().Get("course_id"))
			assert.Equal(t, "3", r.URL.Query().Get("page"))
			assert.Empty(t, r.URL.Query().Get("per_page"))
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"data":       []map[string]interface{}{{"id": "s-1", "course_id": "c-1", "start_time": "09:00"}},
				"pagination": map[string]interface{}{"page": 3, "per_page": 20, "total": 41, "pages": 3},
			})
		case http.MethodPut:
			assert.Equal(t, "/api/v1/sessions/s-1", r.URL.Path)
			_ = json.NewDecoder(r.Body).Decode(&updated)
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"data": map[string]interface{}{"id": "s-1", "start_time": "09:00", "end_time": "11:00"},
			})
		}
	}))
	box.token = "tok"

	sessions, pagination, err := c.ListSessions(context.Background(), SessionQuery{CourseID: "c-1", Page: 3})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].ID)
	require.NotNil(t, pagination)
	assert.Equal(t, 41, pagination.Total)

	end := "11:00"
	session, err := c.UpdateSession(context.Background(), "s-1", dto.UpdateSessionRequest{EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, "11:00", session.EndTime)
	assert.Equal(t, "11:00", updated["end_time"])
	assert.Nil(t, updated["start_time"])
}

func TestExportStudentsReadsFilename(t *testing.T) {
	c, box := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/export_students", r.URL.Path)
		assert.Equal(t, "Algorithms", r.URL.Query().Get("course_name"))
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="students_Algorithms.csv"`)
		_, _ = w.Write([]byte("student_id,name\nIDX1,Ann\n"))
	}))
	box.token = "tok"

	file, err := c.ExportStudents(context.Background(), dto.StudentExportQuery{CourseName: "Algorithms"})
	require.NoError(t, err)
	assert.Equal(t, "students_Algorithms.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, string(file.Data), "IDX1,Ann")
}

func TestDownloadReportResolvesServerPath(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/export/abc", r.URL.Path)
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		_, _ = w.Write([]byte("%PDF"))
	}))

	file, err := c.DownloadReport(context.Background(), "/api/v1/export/abc")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Filename)
}

func TestGenerateQROmitsZeroDuration(t *testing.T) {
	var bodies []map[string]interface{}
	c, box := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		writeEnvelope(w, http.StatusCreated, map[string]interface{}{
			"data": map[string]interface{}{"session_id": "s-1", "qr_code_uuid": "q-1"},
		})
	}))
	box.token = "tok"

	token, err := c.GenerateQR(context.Background(), "s-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "q-1", token.UUID)
	_, err = c.GenerateQR(context.Background(), "s-1", 15)
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	assert.Nil(t, bodies[0]["duration"])
	assert.Equal(t, float64(15), bodies[1]["duration"])
}

func TestLogoutClearsTokenEvenWhenServerFails(t *testing.T) {
	c, box := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusInternalServerError, map[string]interface{}{"message": "internal"})
	}))
	box.token = "tok"

	err := c.Logout(context.Background())
	assert.Error(t, err)
	assert.Empty(t, box.token)
}
