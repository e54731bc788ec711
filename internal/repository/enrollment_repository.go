package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EnrollmentRepository handles persistence of course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll adds the students to the course inside one transaction and returns
// how many were newly enrolled; existing enrollments are left untouched.
func (r *EnrollmentRepository) Enroll(ctx context.Context, courseID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enroll tx: %w", err)
	}
	const query = `INSERT INTO enrollments (course_id, student_id, enrolled_at) VALUES ($1, $2, $3) ON CONFLICT (course_id, student_id) DO NOTHING`
	now := time.Now().UTC()
	added := 0
	for _, studentID := range studentIDs {
		res, err := tx.ExecContext(ctx, query, courseID, studentID, now)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("enroll student %s: %w", studentID, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			added += int(affected)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enroll tx: %w", err)
	}
	return added, nil
}

// Unenroll removes the students from the course and returns how many rows were deleted.
func (r *EnrollmentRepository) Unenroll(ctx context.Context, courseID string, studentIDs []string) (int, error) {
	if len(studentIDs) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM enrollments WHERE course_id = $1 AND student_id = ANY($2)`
	res, err := r.db.ExecContext(ctx, query, courseID, pq.Array(studentIDs))
	if err != nil {
		return 0, fmt.Errorf("unenroll students: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unenroll rows affected: %w", err)
	}
	return int(affected), nil
}

// IsEnrolled reports whether the student is enrolled in the course.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, courseID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return ok, nil
}
