package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/models"
	"github.com/noah-isme/presencepro-api/pkg/middleware/requestid"
)

var versionSegment = regexp.MustCompile(`^v[0-9]+$`)

// ActivityRecorder persists system log entries. SystemLogService satisfies it.
type ActivityRecorder interface {
	Record(ctx context.Context, entry models.SystemLog)
}

// Audit writes a system log entry for every mutating request once the handler
// has run. Reads are not logged. Failed requests are logged as WARNING (4xx)
// or ERROR (5xx).
func Audit(recorder ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if recorder == nil || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		entry := models.SystemLog{
			Level:    auditLevel(status),
			Action:   models.LogActionRequest,
			Resource: resourceFromPath(path),
			Message:  c.Request.Method + " " + path,
		}
		if id := c.Param("id"); id != "" {
			entry.ResourceID = &id
		}
		if claims := CurrentUser(c); claims != nil {
			entry.UserID = &claims.UserID
			entry.Username = &claims.Username
		}
		if ip := c.ClientIP(); ip != "" {
			entry.IPAddress = &ip
		}
		if ua := c.GetHeader("User-Agent"); ua != "" {
			entry.UserAgent = &ua
		}

		details := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
		}
		if reqID := requestid.Value(c); reqID != "" {
			details["request_id"] = reqID
		}
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}

		recorder.Record(c.Request.Context(), entry)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func auditLevel(status int) models.LogLevel {
	switch {
	case status >= 500:
		return models.LogLevelError
	case status >= 400:
		return models.LogLevelWarning
	default:
		return models.LogLevelInfo
	}
}

// resourceFromPath picks the first static segment after the api prefix, e.g.
// "/api/courses/:id/students" -> "courses".
func resourceFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == "" || strings.HasPrefix(segment, ":") || strings.HasPrefix(segment, "*") {
			continue
		}
		if i == 0 && segment == "api" {
			continue
		}
		if i <= 1 && versionSegment.MatchString(segment) {
			continue
		}
		return segment
	}
	return "root"
}
