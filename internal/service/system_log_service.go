package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/export"
)

type systemLogStore interface {
	Create(ctx context.Context, log *models.SystemLog) error
	List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, int, error)
	ListAll(ctx context.Context, filter models.SystemLogFilter, limit int) ([]models.SystemLog, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// activityRecorder is the write side of the system log used by other services.
type activityRecorder interface {
	Record(ctx context.Context, entry models.SystemLog)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, models.SystemLog) {}

// SystemLogService manages the admin-visible audit trail.
type SystemLogService struct {
	repo      systemLogStore
	renderer  *export.Renderer
	logger    *zap.Logger
	retention time.Duration
}

// NewSystemLogService constructs the service.
func NewSystemLogService(repo systemLogStore, logger *zap.Logger, retention time.Duration) *SystemLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemLogService{repo: repo, renderer: export.NewRenderer(), logger: logger, retention: retention}
}

// Record stores an entry. Failures are logged, never surfaced to the caller.
func (s *SystemLogService) Record(ctx context.Context, entry models.SystemLog) {
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.logger.Warn("failed to write system log", zap.String("action", entry.Action), zap.Error(err))
	}
}

// List returns a page of entries, newest first.
func (s *SystemLogService) List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, *models.Pagination, error) {
	if err := validateLogFilter(filter); err != nil {
		return nil, nil, err
	}
	page, perPage := models.NormalizePage(filter.Page, filter.PerPage)
	filter.Page, filter.PerPage = page, perPage

	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list system logs")
	}
	if logs == nil {
		logs = []models.SystemLog{}
	}
	return logs, models.NewPagination(page, perPage, total), nil
}

// ExportCSV renders all matching entries as CSV.
func (s *SystemLogService) ExportCSV(ctx context.Context, filter models.SystemLogFilter) ([]byte, string, error) {
	if err := validateLogFilter(filter); err != nil {
		return nil, "", err
	}
	logs, err := s.repo.ListAll(ctx, filter, 0)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export system logs")
	}

	data := export.Dataset{
		Title:   "System Logs",
		Headers: []string{"timestamp", "level", "action", "resource", "username", "message", "ip_address"},
	}
	for _, entry := range logs {
		data.Append(
			entry.CreatedAt.UTC().Format(time.RFC3339),
			string(entry.Level),
			entry.Action,
			entry.Resource,
			deref(entry.Username),
			entry.Message,
			deref(entry.IPAddress),
		)
	}
	body, err := s.renderer.Render(export.FormatCSV, data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render system logs")
	}
	return body, "system-logs-" + time.Now().UTC().Format("20060102") + ".csv", nil
}

// Prune drops entries older than the retention window.
func (s *SystemLogService) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	return s.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-s.retention))
}

// StartRetentionSweep prunes old entries on every tick until ctx ends.
func (s *SystemLogService) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Prune(ctx)
				if err != nil {
					s.logger.Warn("system log prune failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					s.logger.Info("system logs pruned", zap.Int64("removed", removed))
				}
			}
		}
	}()
}

func validateLogFilter(filter models.SystemLogFilter) error {
	if filter.Level != nil && !filter.Level.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "level must be INFO, WARNING or ERROR")
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(filter.StartDate.Time) {
		return appErrors.Clone(appErrors.ErrValidation, "end_date must not be before start_date")
	}
	return nil
}

// logEntry builds a system log row with optional structured details.
func logEntry(level models.LogLevel, action, resource, message string, actor *models.JWTClaims, details map[string]interface{}) models.SystemLog {
	entry := models.SystemLog{Level: level, Action: action, Resource: resource, Message: message}
	if actor != nil {
		entry.UserID = strPtr(actor.UserID)
		entry.Username = strPtr(actor.Username)
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}
	return entry
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func strPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
