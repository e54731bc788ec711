package models

import "time"

// AdminDashboardStats are the headline numbers on the admin dashboard.
type AdminDashboardStats struct {
	TotalUsers        int       `json:"totalUsers"`
	TotalCourses      int       `json:"totalCourses"`
	ActiveSessions    int       `json:"activeSessions"`
	OverallAttendance float64   `json:"overallAttendance"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// LabelCount is a named count.
type LabelCount struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// CourseRate is the attendance rate for a course.
type CourseRate struct {
	CourseID   string  `db:"course_id" json:"course_id"`
	CourseName string  `db:"course_name" json:"course_name"`
	Present    int     `db:"present" json:"-"`
	Expected   int     `db:"expected" json:"-"`
	Rate       float64 `json:"rate"`
}

// AdminDashboardCharts feed the admin dashboard charts.
type AdminDashboardCharts struct {
	UsersByRole      []LabelCount `json:"usersByRole"`
	CourseAttendance []CourseRate `json:"courseAttendance"`
	GeneratedAt      time.Time    `json:"generatedAt"`
}

// SystemMetrics is a point-in-time view of process counters for admins.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	AttendanceMarked         uint64    `json:"attendanceMarked"`
	AttendanceRejected       uint64    `json:"attendanceRejected"`
	QRCodesIssued            uint64    `json:"qrCodesIssued"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
