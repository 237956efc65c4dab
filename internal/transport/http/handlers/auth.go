package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beridzemate00/codereview/internal/transport/http/middleware"
	"github.com/beridzemate00/codereview/internal/usecase"
)

const invalidPayloadMessage = "invalid request body"

// AuthHandler exposes registration, login and the current account.
type AuthHandler struct {
	auth *usecase.AuthService
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes binds the account routes. requireAuth guards /me.
func (h *AuthHandler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.GET("/me", requireAuth, h.me)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req, registerMessages) {
		return
	}

	res, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(res))
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req, loginMessages) {
		return
	}

	res, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(res))
}

func (h *AuthHandler) me(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		respondAuthError(c, usecase.ErrInvalidSession)
		return
	}

	account, err := h.auth.CurrentAccount(c.Request.Context(), accountID)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, MeResponse{User: newUserResponse(*account)})
}

func newAuthResponse(res *usecase.AuthResult) AuthResponse {
	return AuthResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      newUserResponse(res.Account),
	}
}
