package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const unauthorizedMessage = "unauthorized"

// Authenticator resolves a bearer credential to an account ID.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (string, error)
}

type errorBody struct {
	Error string `json:"error"`
}

// RequireAuth validates the Authorization header and stores the account ID
// under AccountIDKey. Every rejection carries the same body.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearerCredential(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: unauthorizedMessage})
			return
		}

		accountID, err := auth.Authenticate(c.Request.Context(), credential)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: unauthorizedMessage})
			return
		}

		c.Set(AccountIDKey, accountID)
		c.Next()
	}
}

func bearerCredential(header string) (string, bool) {
	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	return credential, credential != ""
}
