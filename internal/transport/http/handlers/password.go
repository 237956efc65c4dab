package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beridzemate00/codereview/internal/usecase"
)

const passwordResetMessage = "Password has been reset successfully."

// PasswordHandler exposes the password reset endpoints.
type PasswordHandler struct {
	auth *usecase.AuthService
}

// NewPasswordHandler constructs PasswordHandler.
func NewPasswordHandler(auth *usecase.AuthService) *PasswordHandler {
	return &PasswordHandler{auth: auth}
}

// RegisterRoutes binds the reset routes.
func (h *PasswordHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/forgot-password", h.forgotPassword)
	r.GET("/verify-reset-token/:token", h.verifyResetToken)
	r.POST("/reset-password", h.resetPassword)
}

func (h *PasswordHandler) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req, forgotPasswordMessages) {
		return
	}

	res, err := h.auth.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, ForgotPasswordResponse{
		Message:   res.Message,
		ResetLink: res.ResetLink,
	})
}

func (h *PasswordHandler) verifyResetToken(c *gin.Context) {
	res, err := h.auth.VerifyResetToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResetTokenResponse{Valid: true, Email: res.Email})
}

func (h *PasswordHandler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req, resetPasswordMessages) {
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), usecase.ResetPasswordInput{
		Token:    req.Token,
		Password: req.Password,
	}); err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: passwordResetMessage})
}
