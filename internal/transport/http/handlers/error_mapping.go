package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beridzemate00/codereview/internal/usecase"
)

const internalErrorMessage = "internal server error"

// ErrorCase maps a sentinel error to an HTTP status code and response
// message. An empty Message uses the message attached to the error.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

var authErrorCases = []ErrorCase{
	{Err: usecase.ErrValidation, Status: http.StatusBadRequest},
	{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest},
	{Err: usecase.ErrEmailTaken, Status: http.StatusBadRequest, Message: "email already registered"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusBadRequest, Message: "invalid credentials"},
	{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Message: "invalid or expired reset token"},
	{Err: usecase.ErrInvalidSession, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
}

// RespondWithMappedError resolves the provided error against known cases or
// falls back to a generic response. Unmapped errors are attached to the gin
// context for the access log and never shown to the client.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		msg := cs.Message
		if msg == "" {
			msg = usecase.ValidationMessage(err)
		}
		if msg == "" {
			msg = cs.Err.Error()
		}
		c.JSON(cs.Status, NewErrorResponse(msg))
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(fallbackMessage))
}

func respondAuthError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, authErrorCases, http.StatusInternalServerError, internalErrorMessage)
}
