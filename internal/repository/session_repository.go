package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presencepro-api/internal/models"
)

const sessionSelect = `SELECT se.id, se.course_id, c.name AS course_name, c.lecturer_id, se.session_date, se.start_time, se.end_time, se.topic,
	se.is_active, se.qr_code_uuid, se.qr_code_data, se.issued_at, se.expires_at, se.created_by, se.created_at, se.updated_at
FROM sessions se
JOIN courses c ON c.id = se.course_id`

// SessionRepository provides access to course sessions and their QR state.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID returns a session joined with its course.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := r.db.GetContext(ctx, &session, sessionSelect+` WHERE se.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ListByCourse returns the sessions of a course, newest first.
func (r *SessionRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Session, error) {
	var sessions []models.Session
	query := sessionSelect + ` WHERE se.course_id = $1 ORDER BY se.session_date DESC, se.start_time DESC`
	if err := r.db.SelectContext(ctx, &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("list course sessions: %w", err)
	}
	return sessions, nil
}

// List returns sessions matching the filter, newest first, with the total
// count for pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	where, args := sessionConditions(filter)
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	listQuery := fmt.Sprintf("%s %s ORDER BY se.session_date DESC, se.start_time DESC LIMIT %d OFFSET %d", sessionSelect, where, perPage, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM sessions se JOIN courses c ON c.id = se.course_id " + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return sessions, total, nil
}

// Create inserts a session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	const query = `INSERT INTO sessions (id, course_id, session_date, start_time, end_time, topic, is_active, created_by, created_at, updated_at)
VALUES (:id, :course_id, :session_date, :start_time, :end_time, :topic, FALSE, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update persists the schedule fields of a session.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET session_date = :session_date, start_time = :start_time, end_time = :end_time,
topic = :topic, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a session and its attendance marks.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ActivateQR stores a freshly issued code unless the session already has an
// unexpired one. It returns false when another code is still live.
func (r *SessionRepository) ActivateQR(ctx context.Context, id string, update models.SessionQRUpdate, now time.Time) (bool, error) {
	const query = `UPDATE sessions SET is_active = TRUE, qr_code_uuid = $2, qr_code_data = $3, issued_at = $4, expires_at = $5, updated_at = $6
WHERE id = $1 AND NOT (is_active AND expires_at IS NOT NULL AND expires_at > $6)`
	res, err := r.db.ExecContext(ctx, query, id, update.QRCodeUUID, update.QRCodeData, update.IssuedAt, update.ExpiresAt, now)
	if err != nil {
		return false, fmt.Errorf("activate session qr: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("activate session qr rows: %w", err)
	}
	return affected == 1, nil
}

// DeactivateQR clears the code of an active session. It returns false when
// the session was not active.
func (r *SessionRepository) DeactivateQR(ctx context.Context, id string, now time.Time) (bool, error) {
	const query = `UPDATE sessions SET is_active = FALSE, qr_code_uuid = NULL, qr_code_data = NULL, expires_at = NULL, updated_at = $2
WHERE id = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("deactivate session qr: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate session qr rows: %w", err)
	}
	return affected == 1, nil
}

// PublicDetails returns the subset of session data shown to scanners.
func (r *SessionRepository) PublicDetails(ctx context.Context, id string) (*models.PublicSessionDetails, error) {
	const query = `SELECT se.id, c.name AS course_name, se.session_date, se.start_time, se.end_time, se.topic
FROM sessions se JOIN courses c ON c.id = se.course_id WHERE se.id = $1`
	var details models.PublicSessionDetails
	if err := r.db.GetContext(ctx, &details, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("public session details: %w", err)
	}
	return &details, nil
}

// CountActive returns the number of sessions currently accepting scans.
func (r *SessionRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var total int
	const query = `SELECT COUNT(*) FROM sessions WHERE is_active AND expires_at > $1`
	if err := r.db.GetContext(ctx, &total, query, now); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return total, nil
}

func sessionConditions(filter models.SessionFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("se.course_id = $%d", len(args)))
	}
	if filter.LecturerID != "" {
		args = append(args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("c.lecturer_id = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
