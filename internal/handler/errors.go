package handler

import (
	"errors"
	"net/http"

	"portal/internal/service"
	"portal/pkg/response"

	"github.com/gin-gonic/gin"
)

// statusFor maps an engine error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case service.CodeUnauthorized:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeInvalidState:
		return http.StatusConflict
	case service.CodeResourceConflict:
		return http.StatusUnprocessableEntity
	case service.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the standard envelope. Internal errors are recorded on the
// gin context for the request logger and reported without their cause.
func respondError(c *gin.Context, err error) {
	code := service.ErrorCode(err)
	status := statusFor(code)

	var conflict *service.ResourceConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(status, response.ErrorWithDetails(status, code, err.Error(), conflict.Report))
	case status == http.StatusInternalServerError:
		_ = c.Error(err)
		c.JSON(status, response.ErrorWithDetails(status, code, "internal server error", nil))
	default:
		c.JSON(status, response.ErrorWithDetails(status, code, err.Error(), nil))
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorWithDetails(http.StatusBadRequest, service.CodeValidation, err.Error(), nil))
}
