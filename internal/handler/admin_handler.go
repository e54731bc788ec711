package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

type dashboardService interface {
	AdminStats(ctx context.Context) (*models.AdminDashboardStats, bool, error)
	AdminCharts(ctx context.Context) (*models.AdminDashboardCharts, bool, error)
	SystemMetrics() models.SystemMetrics
}

type settingService interface {
	List(ctx context.Context) ([]dto.SettingItem, error)
	Get(ctx context.Context, key string) (*dto.SettingItem, error)
	Update(ctx context.Context, key, value string, actor *models.JWTClaims) (*dto.SettingItem, error)
	BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingsRequest, actor *models.JWTClaims) ([]dto.SettingItem, error)
}

type systemLogService interface {
	List(ctx context.Context, filter models.SystemLogFilter) ([]models.SystemLog, *models.Pagination, error)
	ExportCSV(ctx context.Context, filter models.SystemLogFilter) ([]byte, string, error)
}

// AdminHandler serves the admin dashboard, settings and system log endpoints.
type AdminHandler struct {
	dashboard dashboardService
	settings  settingService
	logs      systemLogService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(dashboard dashboardService, settings settingService, logs systemLogService) *AdminHandler {
	return &AdminHandler{dashboard: dashboard, settings: settings, logs: logs}
}

// Stats godoc
// @Summary Admin dashboard statistics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard-stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, hit, err := h.dashboard.AdminStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, stats, hit)
}

// Charts godoc
// @Summary Admin dashboard charts
// @Description Users by role and attendance rate per course
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard-charts [get]
func (h *AdminHandler) Charts(c *gin.Context) {
	charts, hit, err := h.dashboard.AdminCharts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, charts, hit)
}

// Metrics godoc
// @Summary Process metrics snapshot
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/metrics [get]
func (h *AdminHandler) Metrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.dashboard.SystemMetrics(), nil)
}

// ListSettings godoc
// @Summary List settings
// @Description Every allowed key with its stored value or default
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/settings [get]
func (h *AdminHandler) ListSettings(c *gin.Context) {
	items, err := h.settings.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// GetSetting godoc
// @Summary Get a setting
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param key path string true "Setting key"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/settings/{key} [get]
func (h *AdminHandler) GetSetting(c *gin.Context) {
	item, err := h.settings.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateSetting godoc
// @Summary Update a setting
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key path string true "Setting key"
// @Param payload body dto.UpdateSettingRequest true "Value"
// @Success 200 {object} response.Envelope
// @Router /admin/settings/{key} [put]
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if !bindJSON(c, &body) {
		return
	}
	item, err := h.settings.Update(c.Request.Context(), c.Param("key"), body.Value, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateSettings godoc
// @Summary Update several settings
// @Description Accepts {"items":[{key,value}]} or a flat object of key to value. All keys are applied or none.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.BulkUpdateSettingsRequest true "Settings"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/settings [put]
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var raw map[string]json.RawMessage
	if !bindJSON(c, &raw) {
		return
	}
	req, err := settingsPayload(raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.settings.BulkUpdate(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Settings updated successfully", items)
}

// settingsPayload accepts both the items form and the flat form the admin
// screen submits. Flat values may be strings, numbers or booleans.
func settingsPayload(raw map[string]json.RawMessage) (dto.BulkUpdateSettingsRequest, error) {
	var req dto.BulkUpdateSettingsRequest
	if items, ok := raw["items"]; ok {
		if err := json.Unmarshal(items, &req.Items); err != nil {
			return req, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "items must be a list of {key, value}")
		}
		return req, nil
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var value interface{}
		if err := json.Unmarshal(raw[key], &value); err != nil {
			return req, appErrors.Clone(appErrors.ErrValidation, "invalid value for "+key)
		}
		var text string
		switch v := value.(type) {
		case string:
			text = v
		case float64:
			text = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			text = strconv.FormatBool(v)
		default:
			return req, appErrors.Clone(appErrors.ErrValidation, key+" must be a string, number or boolean")
		}
		req.Items = append(req.Items, dto.UpdateSettingRequest{Key: key, Value: text})
	}
	return req, nil
}

// SystemLogs godoc
// @Summary List system logs
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Param search query string false "Matches message, action or username"
// @Param level query string false "INFO, WARNING or ERROR"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /admin/system-logs [get]
func (h *AdminHandler) SystemLogs(c *gin.Context) {
	filter, err := logFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	logs, pagination, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, pagination)
}

// ExportSystemLogs godoc
// @Summary Export system logs as CSV
// @Tags Admin
// @Produce text/csv
// @Security BearerAuth
// @Param search query string false "Search term"
// @Param level query string false "Level"
// @Param start_date query string false "YYYY-MM-DD"
// @Param end_date query string false "YYYY-MM-DD"
// @Success 200 {file} file
// @Router /admin/system-logs/export [get]
func (h *AdminHandler) ExportSystemLogs(c *gin.Context) {
	filter, err := logFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, filename, err := h.logs.ExportCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv", body)
}

func logFilter(c *gin.Context) (models.SystemLogFilter, error) {
	filter := models.SystemLogFilter{Search: strings.TrimSpace(c.Query("search"))}
	filter.Page, filter.PerPage = pageParams(c)
	if level := strings.ToUpper(strings.TrimSpace(c.Query("level"))); level != "" {
		l := models.LogLevel(level)
		filter.Level = &l
	}
	var err error
	if filter.StartDate, err = dateQuery(c, "start_date"); err != nil {
		return filter, err
	}
	if filter.EndDate, err = dateQuery(c, "end_date"); err != nil {
		return filter, err
	}
	return filter, nil
}
