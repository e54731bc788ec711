package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/api/export_students", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(method, "/api/export_students", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	w := serve([]string{"http://localhost:3000/"}, http.MethodGet, "http://localhost:3000")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestCORSUnknownOrigin(t *testing.T) {
	w := serve([]string{"http://localhost:3000"}, http.MethodGet, "http://evil.test")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve([]string{"http://localhost:3000"}, http.MethodOptions, "http://evil.test")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSWildcardSubdomain(t *testing.T) {
	origins := []string{"https://*.campus.edu"}
	assert.Equal(t, "https://portal.campus.edu", serve(origins, http.MethodGet, "https://portal.campus.edu").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, serve(origins, http.MethodGet, "https://campus.edu").Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, serve(origins, http.MethodGet, "http://portal.campus.edu").Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightAnyOrigin(t *testing.T) {
	w := serve(nil, http.MethodOptions, "http://any.test")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://any.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSNoOriginPassesThrough(t *testing.T) {
	w := serve([]string{"http://localhost:3000"}, http.MethodGet, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
