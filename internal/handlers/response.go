package handlers

import (
	"errors"
	"net/http"

	"sensor_gateway/internal/service"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error"`
}

// ListResponse wraps a collection.
type ListResponse struct {
	Success bool        `json:"success" example:"true"`
	Count   int         `json:"count"`
	Data    interface{} `json:"data"`
}

func respondList(c *gin.Context, count int, data interface{}, extra gin.H) {
	resp := gin.H{"success": true, "count": count, "data": data}
	for k, v := range extra {
		resp[k] = v
	}
	c.JSON(http.StatusOK, resp)
}

func respondItem(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTransportUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Centralized error logging and response. Server-side failures are logged at
// error level; client mistakes only at debug.
func (h *Handler) logAndJSONError(c *gin.Context, err error, logKey string, kv ...interface{}) {
	code := statusFor(err)
	if h.log != nil {
		fields := append([]interface{}{"err", err}, kv...)
		if code >= http.StatusInternalServerError {
			h.log.Errorw(logKey, fields...)
		} else {
			h.log.Debugw(logKey, fields...)
		}
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(code, ErrorResponse{Success: false, Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: msg})
}
