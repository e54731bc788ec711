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

const studentColumns = `s.id, s.student_id, s.name, s.email, s.class_name, s.major, s.user_id, s.created_at, s.updated_at`

// StudentRepository provides access to student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by primary key.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "s.id = $1", id)
}

// FindByStudentID returns a student by index number.
func (r *StudentRepository) FindByStudentID(ctx context.Context, studentID string) (*models.Student, error) {
	return r.findOne(ctx, "s.student_id = $1", studentID)
}

// FindByUserID returns the student profile linked to a user account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	return r.findOne(ctx, "s.user_id = $1", userID)
}

func (r *StudentRepository) findOne(ctx context.Context, cond string, arg interface{}) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s WHERE ` + cond + ` LIMIT 1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByIDs loads the students whose ids are listed; missing ids are simply absent.
func (r *StudentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+studentColumns+` FROM students s WHERE s.id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build student lookup: %w", err)
	}
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find students by ids: %w", err)
	}
	return students, nil
}

// List returns students with pagination. When LecturerID is set only students
// enrolled in that lecturer's courses are returned.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where, args := studentConditions(filter)
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	listQuery := fmt.Sprintf("SELECT %s FROM students s %s ORDER BY s.name ASC, s.student_id ASC LIMIT %d OFFSET %d", studentColumns, where, perPage, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListAll returns every student matching the filter without pagination.
func (r *StudentRepository) ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	where, args := studentConditions(filter)
	query := fmt.Sprintf("SELECT %s FROM students s %s ORDER BY s.student_id ASC", studentColumns, where)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list all students: %w", err)
	}
	return students, nil
}

// ListByCourse returns students enrolled in a course.
func (r *StudentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students s
JOIN enrollments e ON e.student_id = s.id
WHERE e.course_id = $1 ORDER BY s.name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list course students: %w", err)
	}
	return students, nil
}

// TaughtBy reports whether the student is enrolled in any course of the lecturer.
func (r *StudentRepository) TaughtBy(ctx context.Context, studentID, lecturerID string) (bool, error) {
	const query = `SELECT EXISTS (
	SELECT 1 FROM enrollments e JOIN courses c ON c.id = e.course_id
	WHERE e.student_id = $1 AND c.lecturer_id = $2
)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, studentID, lecturerID); err != nil {
		return false, fmt.Errorf("check student lecturer: %w", err)
	}
	return ok, nil
}

// Create inserts a student profile.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, student_id, name, email, class_name, major, user_id, created_at, updated_at)
VALUES (:id, :student_id, :name, :email, :class_name, :major, :user_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update persists all mutable fields.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET student_id = :student_id, name = :name, email = :email, class_name = :class_name,
major = :major, user_id = :user_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Upsert inserts or updates a student keyed by index number and reports whether a new row was created.
func (r *StudentRepository) Upsert(ctx context.Context, student *models.Student) (bool, error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, student_id, name, email, class_name, major, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (student_id) DO UPDATE SET name = EXCLUDED.name,
	email = COALESCE(EXCLUDED.email, students.email),
	class_name = COALESCE(EXCLUDED.class_name, students.class_name),
	major = COALESCE(EXCLUDED.major, students.major),
	updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`
	var inserted bool
	if err := r.db.GetContext(ctx, &inserted, query,
		student.ID, student.StudentID, student.Name, student.Email, student.ClassName, student.Major, student.CreatedAt, student.UpdatedAt,
	); err != nil {
		return false, fmt.Errorf("upsert student: %w", err)
	}
	return inserted, nil
}

// Delete removes a student profile.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func studentConditions(filter models.StudentFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		pos := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.name) LIKE $%d OR LOWER(s.student_id) LIKE $%d OR LOWER(COALESCE(s.email, '')) LIKE $%d)", pos, pos, pos))
	}
	if filter.StudentID != "" {
		args = append(args, "%"+strings.ToLower(filter.StudentID)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(s.student_id) LIKE $%d", len(args)))
	}
	if filter.Name != "" {
		args = append(args, "%"+strings.ToLower(filter.Name)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(s.name) LIKE $%d", len(args)))
	}
	if filter.CourseName != "" {
		args = append(args, filter.CourseName)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e JOIN courses c ON c.id = e.course_id WHERE e.student_id = s.id AND c.name = $%d)", len(args)))
	}
	if filter.LecturerID != "" {
		args = append(args, filter.LecturerID)
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM enrollments e JOIN courses c ON c.id = e.course_id WHERE e.student_id = s.id AND c.lecturer_id = $%d)", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
