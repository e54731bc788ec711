package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/middleware"
	"github.com/noah-isme/presencepro-api/internal/models"
)

// Handlers bundles every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Students   *StudentHandler
	Courses    *CourseHandler
	Sessions   *SessionHandler
	Attendance *AttendanceHandler
	Analytics  *AnalyticsHandler
	Reports    *ReportHandler
	Admin      *AdminHandler
}

// Register mounts the API routes on api. Authenticated routes pass through
// the JWT and audit middlewares; role checks are attached per route.
func Register(api *gin.RouterGroup, h Handlers, tokens middleware.TokenValidator, activity middleware.ActivityRecorder) {
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleLecturer)
	student := middleware.RequireRoles(models.RoleStudent)

	// public
	api.POST("/login", h.Auth.Login)
	api.POST("/register", h.Auth.Register)
	api.GET("/sessions/:id/details-public", h.Sessions.PublicDetails)
	api.POST("/sessions/:id/attendance", middleware.OptionalJWT(tokens), h.Attendance.Mark)
	api.GET("/export/:token", h.Reports.DownloadReport)

	auth := api.Group("")
	auth.Use(middleware.JWT(tokens), middleware.Audit(activity))

	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/my-profile", h.Auth.Profile)
	auth.PUT("/my-profile", h.Auth.UpdateProfile)

	auth.GET("/users", admin, h.Users.List)
	auth.POST("/users", admin, h.Users.Create)
	auth.GET("/users/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfAccess), h.Users.Get)
	auth.PUT("/users/:id", admin, h.Users.Update)
	auth.DELETE("/users/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfAccess), h.Users.Delete)
	auth.GET("/lecturers", staff, h.Users.Lecturers)

	auth.GET("/students", staff, h.Students.List)
	auth.POST("/students", admin, h.Students.Create)
	auth.POST("/lecturer/students", staff, h.Students.Create)
	auth.GET("/students/:id", h.Students.Get)
	auth.PUT("/students/:id", admin, h.Students.Update)
	auth.DELETE("/students/:id", admin, h.Students.Delete)
	auth.GET("/students/:id/attendance", h.Attendance.StudentOverview)
	auth.POST("/import-students", staff, h.Students.Import)
	auth.GET("/export_students", staff, h.Students.Export)

	auth.GET("/courses", h.Courses.List)
	auth.POST("/courses", staff, h.Courses.Create)
	auth.GET("/courses/:id", h.Courses.Get)
	auth.PUT("/courses/:id", staff, h.Courses.Update)
	auth.DELETE("/courses/:id", staff, h.Courses.Delete)
	auth.GET("/courses/:id/students", staff, h.Courses.Students)
	auth.POST("/courses/:id/students", staff, h.Courses.Enroll)
	auth.DELETE("/courses/:id/students", staff, h.Courses.Unenroll)
	auth.GET("/courses/:id/sessions", h.Sessions.ListByCourse)
	auth.GET("/courses/:id/attendance_summary", staff, h.Courses.AttendanceSummary)

	auth.GET("/sessions", staff, h.Sessions.List)
	auth.POST("/sessions", staff, h.Sessions.Create)
	auth.GET("/sessions/:id", h.Sessions.Get)
	auth.PUT("/sessions/:id", staff, h.Sessions.Update)
	auth.DELETE("/sessions/:id", staff, h.Sessions.Delete)
	auth.POST("/sessions/:id/qr", staff, h.Sessions.GenerateQR)
	auth.GET("/sessions/:id/qr", staff, h.Sessions.QRStatus)
	auth.DELETE("/sessions/:id/qr", staff, h.Sessions.DeactivateQR)
	auth.GET("/sessions/:id/attendance", staff, h.Attendance.Roster)
	auth.PUT("/sessions/:id/attendance/:student_id", staff, h.Attendance.Record)

	auth.GET("/my-attendance", student, h.Attendance.MyAttendance)

	auth.GET("/reports/attendance", staff, h.Analytics.AttendanceReport)
	auth.POST("/reports/export", staff, h.Reports.GenerateReport)
	auth.GET("/reports/export", staff, h.Reports.ListReports)
	auth.GET("/reports/export/:id", staff, h.Reports.ReportStatus)

	auth.GET("/lecturer/at-risk-students", staff, h.Analytics.AtRisk)
	auth.GET("/lecturer/top-students", staff, h.Analytics.TopStudents)
	auth.GET("/lecturer/weekday-analysis", staff, h.Analytics.Weekday)
	auth.GET("/lecturer/student-engagement-report", staff, h.Analytics.Engagement)
	auth.GET("/attendance/trends", staff, h.Analytics.Trends)

	adminGroup := auth.Group("/admin", admin)
	adminGroup.GET("/dashboard-stats", h.Admin.Stats)
	adminGroup.GET("/dashboard-charts", h.Admin.Charts)
	adminGroup.GET("/metrics", h.Admin.Metrics)
	adminGroup.GET("/settings", h.Admin.ListSettings)
	adminGroup.PUT("/settings", h.Admin.UpdateSettings)
	adminGroup.GET("/settings/:key", h.Admin.GetSetting)
	adminGroup.PUT("/settings/:key", h.Admin.UpdateSetting)
	adminGroup.GET("/system-logs", h.Admin.SystemLogs)
	adminGroup.GET("/system-logs/export", h.Admin.ExportSystemLogs)
}
