package models

import "time"

// CourseAttendanceCount is a raw tally used to derive percentages.
type CourseAttendanceCount struct {
	StudentID     string `db:"student_id" json:"student_id"`
	StudentIndex  string `db:"student_index" json:"student_index"`
	StudentName   string `db:"student_name" json:"student_name"`
	CourseID      string `db:"course_id" json:"course_id"`
	CourseName    string `db:"course_name" json:"course_name"`
	Attended      int    `db:"attended" json:"attended_sessions"`
	TotalSessions int    `db:"total_sessions" json:"total_sessions"`
}

// Percentage converts the tally to a 0-100 value; a course without sessions is 0.
func (c CourseAttendanceCount) Percentage() float64 {
	return Percentage(c.Attended, c.TotalSessions)
}

// Percentage returns part/total*100 rounded to two decimals, 0 when total is 0.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return roundTwo(float64(part) / float64(total) * 100)
}

func roundTwo(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// StudentAttendancePercentage is the attendance of one student in one course.
type StudentAttendancePercentage struct {
	StudentID            string  `json:"student_id"`
	StudentIndex         string  `json:"student_index,omitempty"`
	Name                 string  `json:"name,omitempty"`
	CourseID             string  `json:"course_id"`
	CourseName           string  `json:"course_name,omitempty"`
	AttendedSessions     int     `json:"attended_sessions"`
	TotalSessions        int     `json:"total_sessions"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// CourseAttendanceSummary aggregates a course over its enrolled students.
type CourseAttendanceSummary struct {
	CourseID                    string                        `json:"course_id"`
	CourseName                  string                        `json:"course_name"`
	AverageAttendancePercentage float64                       `json:"average_attendance_percentage"`
	StudentAttendance           []StudentAttendancePercentage `json:"student_attendance"`
}

// SessionAttendanceTally counts marks per session.
type SessionAttendanceTally struct {
	SessionID   string `db:"session_id" json:"session_id"`
	CourseID    string `db:"course_id" json:"course_id"`
	CourseName  string `db:"course_name" json:"course_name"`
	SessionDate Date   `db:"session_date" json:"session_date"`
	StartTime   string `db:"start_time" json:"start_time"`
	EndTime     string `db:"end_time" json:"end_time"`
	Present     int    `db:"present" json:"present"`
	Enrolled    int    `db:"enrolled" json:"enrolled"`
}

// AttendanceReportRow is a session line in an attendance report.
type AttendanceReportRow struct {
	SessionID   string  `json:"session_id"`
	CourseName  string  `json:"course_name"`
	SessionDate Date    `json:"session_date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Present     int     `json:"present"`
	Absent      int     `json:"absent"`
	Rate        float64 `json:"attendance_rate"`
}

// AttendanceReport is the body of GET /reports/attendance.
type AttendanceReport struct {
	CourseID      string                `json:"course_id,omitempty"`
	StartDate     *Date                 `json:"start_date,omitempty"`
	EndDate       *Date                 `json:"end_date,omitempty"`
	Sessions      []AttendanceReportRow `json:"sessions"`
	TotalSessions int                   `json:"total_sessions"`
	TotalPresent  int                   `json:"total_present"`
	TotalAbsent   int                   `json:"total_absent"`
	OverallRate   float64               `json:"overall_rate"`
}

// ReportFilter scopes report and analytics queries.
type ReportFilter struct {
	CourseID   string
	LecturerID string
	StartDate  *Date
	EndDate    *Date
}

// AtRiskStudent flags a student whose attendance is low or falling.
type AtRiskStudent struct {
	StudentID             string  `json:"student_id"`
	StudentIndex          string  `json:"student_index"`
	Name                  string  `json:"name"`
	CourseID              string  `json:"course_id"`
	CourseName            string  `json:"course_name"`
	OverallAttendanceRate float64 `json:"overall_attendance_rate"`
	RecentAttendanceRate  float64 `json:"recent_attendance_rate"`
	Drop                  float64 `json:"drop"`
}

// RecentAttendance is an enrolled student's mark on one of the latest sessions.
type RecentAttendance struct {
	StudentID   string `db:"student_id"`
	CourseID    string `db:"course_id"`
	SessionRank int    `db:"session_rank"`
	Attended    bool   `db:"attended"`
}

// TopStudent ranks students by sessions attended.
type TopStudent struct {
	StudentID            string  `json:"student_id"`
	StudentIndex         string  `json:"student_index"`
	Name                 string  `json:"name"`
	AttendedSessions     int     `json:"attended_sessions"`
	TotalSessions        int     `json:"total_sessions"`
	AttendancePercentage float64 `json:"attendance_percentage"`
}

// WeekdayTally counts marks for sessions falling on a weekday (0 = Sunday).
type WeekdayTally struct {
	Weekday  int `db:"weekday"`
	Present  int `db:"present"`
	Expected int `db:"expected"`
}

// WeeklyTally counts marks for sessions in the week starting WeekStart.
type WeeklyTally struct {
	WeekStart time.Time `db:"week_start"`
	Present   int       `db:"present"`
	Expected  int       `db:"expected"`
}

// ChartSeries is the labels/values shape consumed by charts.
type ChartSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// EngagementRow summarises one course for the engagement report.
type EngagementRow struct {
	CourseID          string  `json:"course_id"`
	CourseName        string  `json:"course_name"`
	EnrolledStudents  int     `json:"enrolled_students"`
	TotalSessions     int     `json:"total_sessions"`
	AverageAttendance float64 `json:"average_attendance"`
}

// StudentAttendanceOverview totals a student's attendance over a range,
// with the per-course breakdown it was built from.
type StudentAttendanceOverview struct {
	StudentID            string                        `json:"student_id"`
	StudentIndex         string                        `json:"student_index"`
	Name                 string                        `json:"name"`
	StartDate            *Date                         `json:"start_date,omitempty"`
	EndDate              *Date                         `json:"end_date,omitempty"`
	AttendedSessions     int                           `json:"attended_sessions"`
	TotalSessions        int                           `json:"total_sessions"`
	AttendancePercentage float64                       `json:"attendance_percentage"`
	Courses              []StudentAttendancePercentage `json:"courses"`
}

// EngagedStudent is a student's mean attendance across their courses.
type EngagedStudent struct {
	StudentID         string  `json:"student_id"`
	StudentIndex      string  `json:"student_index"`
	Name              string  `json:"student_name"`
	Courses           int     `json:"courses"`
	AverageAttendance float64 `json:"average_attendance"`
}

// EngagementReport groups courses and students by attendance.
type EngagementReport struct {
	Courses          []EngagementRow  `json:"courses"`
	HighEngagement   []EngagedStudent `json:"high_engagement"`
	MediumEngagement []EngagedStudent `json:"medium_engagement"`
	LowEngagement    []EngagedStudent `json:"low_engagement"`
	GeneratedAt      time.Time        `json:"generated_at"`
}
