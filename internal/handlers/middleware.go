package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const operatorCtxKey = "operatorId"

func (h *Handler) operatorMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: "invalid Authorization header format",
		})
		return
	}

	operatorID, err := h.services.ParseToken(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: "invalid or expired token",
		})
		return
	}

	// store in Gin context
	c.Set(operatorCtxKey, operatorID)
	c.Next()
}
