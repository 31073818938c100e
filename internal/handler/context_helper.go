package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-lms-api/internal/middleware"
	"github.com/noah-isme/school-lms-api/internal/models"
	appErrors "github.com/noah-isme/school-lms-api/pkg/errors"
	"github.com/noah-isme/school-lms-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// mustClaims writes 401 and returns nil when the request is anonymous.
func mustClaims(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
	}
	return claims
}

func bindJSON(c *gin.Context, dest interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}

func requireParam(c *gin.Context, name string) (string, bool) {
	value := c.Param(name)
	if value == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" is required"))
		return "", false
	}
	return value, true
}

func clientInfo(c *gin.Context) models.ClientInfo {
	return models.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", c.DefaultQuery("limit", "20")))
	return page, size
}

func queryBool(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func firstQuery(c *gin.Context, keys ...string) (string, string) {
	for _, key := range keys {
		if raw := strings.TrimSpace(c.Query(key)); raw != "" {
			return key, raw
		}
	}
	return "", ""
}

// queryTime accepts RFC3339 timestamps or plain YYYY-MM-DD dates.
func queryTime(c *gin.Context, keys ...string) (*time.Time, error) {
	t, _, err := parseQueryTime(c, keys...)
	return t, err
}

// queryEndOfDay is queryTime with plain dates extended to the last second of the day.
func queryEndOfDay(c *gin.Context, keys ...string) (*time.Time, error) {
	t, dateOnly, err := parseQueryTime(c, keys...)
	if err != nil || t == nil || !dateOnly {
		return t, err
	}
	end := t.Add(24*time.Hour - time.Second)
	return &end, nil
}

func parseQueryTime(c *gin.Context, keys ...string) (*time.Time, bool, error) {
	key, raw := firstQuery(c, keys...)
	if raw == "" {
		return nil, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+" parameter")
	}
	return &t, true, nil
}

func dateRange(c *gin.Context) (*time.Time, *time.Time, error) {
	from, err := queryTime(c, "start_date", "startDate", "date_from")
	if err != nil {
		return nil, nil, err
	}
	to, err := queryEndOfDay(c, "end_date", "endDate", "date_to")
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

// respondCached writes data with the cache_hit flag and processing time in meta.
func respondCached(c *gin.Context, data interface{}, pagination *models.Pagination, cacheHit bool, start time.Time) {
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, data, pagination, meta)
}

func validationError(msg string) error {
	return appErrors.Clone(appErrors.ErrValidation, msg)
}
