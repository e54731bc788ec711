package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presencepro-api/internal/models"
)

const systemLogColumns = `id, level, action, resource, resource_id, user_id, username, message, details, ip_address, user_agent, created_at`

// SystemLogRepository persists the audit trail shown on the admin log view.
type SystemLogRepository struct {
	db *sqlx.DB
}

// NewSystemLogRepository constructs the repository.
func NewSystemLogRepository(db *sqlx.DB) *SystemLogRepository {
	return &SystemLogRepository{db: db}
}

// Create stores a log entry.
func (r *SystemLogRepository) Create(ctx context.Context, log *models.SystemLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Level == "" {
		log.Level = models.LogLevelInfo
	}
	if len(log.Details) == 0 {
		log.Details = []byte("{}")
	}
	query := `INSERT INTO system_logs (` + systemLogColumns + `) VALUES (:id, :level, :action, :resource, :resource_id, :user_id, :username, :message, :details, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create system log: %w", err)
	}
	return nil
}

// List returns log entries newest first with total count.
func (r *SystemLogRepository) List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, int, error) {
	where, args := systemLogConditions(filter)
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	listQuery := fmt.Sprintf("SELECT %s FROM system_logs %s ORDER BY created_at DESC LIMIT %d OFFSET %d", systemLogColumns, where, perPage, offset)
	var logs []models.SystemLog
	if err := r.db.SelectContext(ctx, &logs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list system logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM system_logs "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count system logs: %w", err)
	}
	return logs, total, nil
}

// ListAll returns every entry matching the filter, capped at limit, for exports.
func (r *SystemLogRepository) ListAll(ctx context.Context, filter models.SystemLogFilter, limit int) ([]models.SystemLog, error) {
	if limit <= 0 {
		limit = 10000
	}
	where, args := systemLogConditions(filter)
	query := fmt.Sprintf("SELECT %s FROM system_logs %s ORDER BY created_at DESC LIMIT %d", systemLogColumns, where, limit)
	var logs []models.SystemLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("export system logs: %w", err)
	}
	return logs, nil
}

// DeleteOlderThan prunes entries created before cutoff.
func (r *SystemLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM system_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune system logs: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func systemLogConditions(filter models.SystemLogFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.Level != nil {
		args = append(args, *filter.Level)
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		pos := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(message) LIKE $%d OR LOWER(action) LIKE $%d OR LOWER(COALESCE(username, '')) LIKE $%d)", pos, pos, pos))
	}
	if filter.StartDate != nil {
		args = append(args, filter.StartDate.Time)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.EndDate != nil {
		args = append(args, filter.EndDate.AddDate(0, 0, 1))
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
