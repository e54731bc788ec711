package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presencepro-api/internal/models"
)

// AttendanceRepository persists attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// CreateIfAbsent records a mark unless the student already has one for the
// session. It returns false for duplicates.
func (r *AttendanceRepository) CreateIfAbsent(ctx context.Context, record *models.Attendance) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO attendance (id, session_id, student_id, status, marked_by, timestamp)
VALUES (:id, :session_id, :student_id, :status, :marked_by, :timestamp)
ON CONFLICT (session_id, student_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return false, fmt.Errorf("create attendance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create attendance rows: %w", err)
	}
	return affected == 1, nil
}

// Upsert sets the status for a student in a session, replacing any previous mark.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	const query = `INSERT INTO attendance (id, session_id, student_id, status, marked_by, timestamp)
VALUES (:id, :session_id, :student_id, :status, :marked_by, :timestamp)
ON CONFLICT (session_id, student_id) DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by, timestamp = EXCLUDED.timestamp`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// Find returns the mark of a student for a session.
func (r *AttendanceRepository) Find(ctx context.Context, sessionID, studentID string) (*models.Attendance, error) {
	const query = `SELECT id, session_id, student_id, status, marked_by, timestamp FROM attendance WHERE session_id = $1 AND student_id = $2`
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance: %w", err)
	}
	return &record, nil
}

// Roster lists every student enrolled in the session's course with their
// status; students without a mark are reported Absent.
func (r *AttendanceRepository) Roster(ctx context.Context, sessionID string) ([]models.AttendanceRosterEntry, error) {
	const query = `SELECT s.id AS student_db_id, s.student_id AS student_index, s.name,
	COALESCE(a.status, 'Absent') AS status, a.timestamp
FROM sessions se
JOIN enrollments e ON e.course_id = se.course_id
JOIN students s ON s.id = e.student_id
LEFT JOIN attendance a ON a.session_id = se.id AND a.student_id = s.id
WHERE se.id = $1
ORDER BY s.name ASC`
	var rows []models.AttendanceRosterEntry
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("session roster: %w", err)
	}
	return rows, nil
}

// ListByStudent returns a student's marks joined with session and course.
// An empty courseID returns marks across all courses.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID, courseID string) ([]models.StudentAttendanceRecord, error) {
	query := `SELECT a.id AS attendance_id, se.id AS session_id, c.id AS course_id, c.name AS course_name, se.session_date,
	se.start_time, se.end_time, a.status, a.timestamp
FROM attendance a
JOIN sessions se ON se.id = a.session_id
JOIN courses c ON c.id = se.course_id
WHERE a.student_id = $1`
	args := []interface{}{studentID}
	if courseID != "" {
		query += ` AND c.id = $2`
		args = append(args, courseID)
	}
	query += ` ORDER BY se.session_date DESC, se.start_time DESC`
	var rows []models.StudentAttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return rows, nil
}
