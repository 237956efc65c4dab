package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// fieldMessages maps a failed binding rule, keyed "Field.tag", to the
// message returned to the client.
type fieldMessages map[string]string

var (
	registerMessages = fieldMessages{
		"Email.required":    "email and password are required",
		"Password.required": "email and password are required",
		"Email.email":       "invalid email address",
	}
	loginMessages = fieldMessages{
		"Email.required":    "email and password are required",
		"Password.required": "email and password are required",
	}
	forgotPasswordMessages = fieldMessages{
		"Email.required": "email is required",
	}
	resetPasswordMessages = fieldMessages{
		"Token.required":    "invalid or expired reset token",
		"Password.required": "password is required",
	}
)

// bindJSON decodes and validates the body into dst. On failure it writes a
// 400 with the message of the first mapped rule, or the generic body error.
func bindJSON(c *gin.Context, dst any, messages fieldMessages) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	msg := invalidPayloadMessage
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if m, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
				msg = m
				break
			}
		}
	}

	c.JSON(http.StatusBadRequest, NewErrorResponse(msg))
	return false
}
