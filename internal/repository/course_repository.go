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

const courseSelect = `SELECT c.id, c.name, c.description, c.lecturer_id, u.username AS lecturer_name, c.total_attendance_marks,
	(SELECT COUNT(*) FROM sessions se WHERE se.course_id = c.id) AS total_sessions,
	(SELECT COUNT(*) FROM enrollments en WHERE en.course_id = c.id) AS enrolled_student_count,
	c.created_at, c.updated_at
FROM courses c
LEFT JOIN users u ON u.id = c.lecturer_id`

// CourseRepository provides access to courses.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course with derived counters.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return r.findOne(ctx, "c.id = $1", id)
}

// FindByName returns a course by its unique name.
func (r *CourseRepository) FindByName(ctx context.Context, name string) (*models.Course, error) {
	return r.findOne(ctx, "c.name = $1", name)
}

func (r *CourseRepository) findOne(ctx context.Context, cond string, arg interface{}) (*models.Course, error) {
	query := courseSelect + ` WHERE ` + cond + ` LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	return &course, nil
}

// List returns courses visible for the filter with pagination.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	where, args := courseConditions(filter)
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	listQuery := fmt.Sprintf("%s %s ORDER BY c.name ASC LIMIT %d OFFSET %d", courseSelect, where, perPage, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses c "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ListAll returns every course visible for the filter.
func (r *CourseRepository) ListAll(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	where, args := courseConditions(filter)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, courseSelect+" "+where+" ORDER BY c.name ASC", args...); err != nil {
		return nil, fmt.Errorf("list all courses: %w", err)
	}
	return courses, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.TotalAttendanceMarks == 0 {
		course.TotalAttendanceMarks = models.DefaultAttendanceMarks
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, description, lecturer_id, total_attendance_marks, created_at, updated_at)
VALUES (:id, :name, :description, :lecturer_id, :total_attendance_marks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists mutable course fields.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET name = :name, description = :description, lecturer_id = :lecturer_id,
total_attendance_marks = :total_attendance_marks, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course and, by cascade, its sessions and enrollments.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}

func courseConditions(filter models.CourseFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.LecturerID != "" {
		args = append(args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("c.lecturer_id = $%d", len(args)))
	}
	if filter.StudentProfileID != "" {
		args = append(args, filter.StudentProfileID)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e WHERE e.course_id = c.id AND e.student_id = $%d)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(c.name) LIKE $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
