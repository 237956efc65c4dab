package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/beridzemate00/codereview/internal/usecase"
)

func TestRespondAuthError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "unavailable hides detail",
			err:    fmt.Errorf("%w: %w", usecase.ErrUnavailable, errors.New("pq: connection refused")),
			status: http.StatusInternalServerError,
			body:   `{"error":"internal server error"}`,
		},
		{
			name:   "unknown error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   `{"error":"internal server error"}`,
		},
		{
			name:   "invalid session",
			err:    usecase.ErrInvalidSession,
			status: http.StatusUnauthorized,
			body:   `{"error":"unauthorized"}`,
		},
		{
			name:   "account not found",
			err:    usecase.ErrAccountNotFound,
			status: http.StatusNotFound,
			body:   `{"error":"account not found"}`,
		},
		{
			name:   "bare validation sentinel",
			err:    usecase.ErrValidation,
			status: http.StatusBadRequest,
			body:   `{"error":"validation failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)

			respondAuthError(c, tt.err)

			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			if rr.Body.String() != tt.body {
				t.Fatalf("expected body %s, got %s", tt.body, rr.Body.String())
			}
		})
	}
}
