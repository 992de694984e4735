package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
)

// envelope shapes every response: success payloads ride under "data",
// failures under "error". Handlers never write bare JSON.

// Meta carries list pagination
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalCount int64 `json:"total_count"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"data": data})
}

func respondList(c *gin.Context, data interface{}, meta Meta) {
	c.JSON(http.StatusOK, gin.H{"data": data, "meta": meta})
}

func respondError(c *gin.Context, status int, code, message string, violations map[string]string) {
	body := gin.H{"code": code, "message": message}
	if len(violations) > 0 {
		body["violations"] = violations
	}
	c.JSON(status, gin.H{"error": body})
}

// pathUUID parses a UUID path parameter. Malformed ids are reported as
// a missing resource, not a validation failure, so probing with junk
// ids is indistinguishable from probing with random valid ones.
func pathUUID(c *gin.Context, param, notFoundCode string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondError(c, http.StatusNotFound, notFoundCode, c.Param(param)+" not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

const defaultPerPage = 50

// pagination reads page/per_page with defaults and caps
func pagination(c *gin.Context) (page, perPage int) {
	page = queryInt(c, "page", 1)
	perPage = queryInt(c, "per_page", defaultPerPage)
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

// rawPagination reads page/per_page without clamping, for endpoints
// whose service validates the range itself and reports out-of-range
// values back to the caller instead of silently adjusting them.
func rawPagination(c *gin.Context) (page, perPage int) {
	return queryInt(c, "page", 1), queryInt(c, "per_page", defaultPerPage)
}

func queryInt(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// queryTime parses an RFC3339 query parameter
func queryTime(c *gin.Context, param string) (time.Time, bool, error) {
	val := c.Query(param)
	if val == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, domainerrors.ValidationError(
			param+" must be an RFC 3339 timestamp",
			map[string]string{param: "invalid timestamp"})
	}
	return t, true, nil
}
