// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridehail/internal/apperr"
	"ridehail/internal/types"
)

// RetryAfterSeconds is sent with 503 responses for transient conditions
// such as no reachable drivers.
const RetryAfterSeconds = 5

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// isValidID rejects ids that cannot have come from types.NewID or an auth uid.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeStatus(c, http.StatusBadRequest, "BAD_REQUEST", "invalid id")
		return "", false
	}
	return types.ID(id), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeStatus(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Code: code})
}

// writeError maps an error kind onto an HTTP status. Unclassified errors are
// logged by the request logger and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeStatus(c, http.StatusBadRequest, orCode(code, "VALIDATION_ERROR"), err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeStatus(c, http.StatusNotFound, orCode(code, "NOT_FOUND"), err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		writeStatus(c, http.StatusForbidden, orCode(code, "FORBIDDEN"), err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeStatus(c, http.StatusConflict, orCode(code, "CONFLICT"), err.Error())
	case errors.Is(err, apperr.ErrUnavailable):
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		writeStatus(c, http.StatusServiceUnavailable, orCode(code, "UNAVAILABLE"), err.Error())
	default:
		_ = c.Error(err)
		writeStatus(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func orCode(code, fallback string) string {
	if code == "" {
		return fallback
	}
	return code
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeStatus(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return false
	}
	return true
}
