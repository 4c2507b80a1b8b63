package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// operatorCredentials is the body of both operator endpoints.
type operatorCredentials struct {
	Username string `json:"username" binding:"required" example:"night-shift"`
	Password string `json:"password" binding:"required"`
}

// bindJSONOrBadRequest decodes the body into dst. On failure it answers 400
// and reports false; the caller must return.
func (h *Handler) bindJSONOrBadRequest(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	if h.log != nil {
		h.log.Debugw("request_body_rejected", "route", c.FullPath(), "err", err)
	}
	badRequest(c, err.Error())
	return false
}

// @Summary      Register an operator
// @Description  Operators may issue relay commands once signed in.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  operatorCredentials  true  "Credentials"
// @Success      200  {object}  map[string]int
// @Failure      400  {object}  ErrorResponse
// @Router       /auth/sign-up [post]
func (h *Handler) signUp(c *gin.Context) {
	var creds operatorCredentials
	if !h.bindJSONOrBadRequest(c, &creds) {
		return
	}

	operatorID, err := h.services.SignUp(creds.Username, creds.Password)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("operator_register_failed", "operator", creds.Username, "err", err)
		}
		badRequest(c, err.Error())
		return
	}

	if h.log != nil {
		h.log.Infow("operator_registered", "operator", creds.Username, "operator_id", operatorID)
	}
	c.JSON(http.StatusOK, gin.H{"id": operatorID})
}

// @Summary      Obtain an operator token
// @Description  The token goes in `Authorization: Bearer` for HTTP and `?token=` for the push channel.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  operatorCredentials  true  "Credentials"
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  ErrorResponse
// @Router       /auth/sign-in [post]
func (h *Handler) signIn(c *gin.Context) {
	var creds operatorCredentials
	if !h.bindJSONOrBadRequest(c, &creds) {
		return
	}

	token, err := h.services.GenerateToken(creds.Username, creds.Password)
	if err != nil {
		// unknown operator and wrong password look the same to the caller
		if h.log != nil {
			h.log.Warnw("operator_sign_in_rejected", "operator", creds.Username, "err", err)
		}
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
