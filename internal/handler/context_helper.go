package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presencepro-api/internal/middleware"
	"github.com/noah-isme/presencepro-api/internal/models"
	appErrors "github.com/noah-isme/presencepro-api/pkg/errors"
	"github.com/noah-isme/presencepro-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// requireClaims writes 401 and returns nil when the request is anonymous.
func requireClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return claims
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return false
	}
	return true
}

// pageParams reads page and per_page, leaving zero for absent or malformed values.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	perPage, _ := strconv.Atoi(c.Query("per_page"))
	return page, perPage
}

func dateQuery(c *gin.Context, key string) (*models.Date, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	date, err := models.ParseDate(raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be YYYY-MM-DD")
	}
	return &date, nil
}

// reportFilter collects course_id, start_date and end_date query parameters.
func reportFilter(c *gin.Context) (models.ReportFilter, error) {
	filter := models.ReportFilter{CourseID: strings.TrimSpace(c.Query("course_id"))}
	var err error
	if filter.StartDate, err = dateQuery(c, "start_date"); err != nil {
		return filter, err
	}
	if filter.EndDate, err = dateQuery(c, "end_date"); err != nil {
		return filter, err
	}
	return filter, nil
}

// respondCached renders a cacheable payload with cache_hit and timing meta.
func respondCached(c *gin.Context, data interface{}, hit bool) {
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ResponseMeta(c))
}
