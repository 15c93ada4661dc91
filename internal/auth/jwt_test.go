package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("u-1", testSecret, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	sub, err := ParseToken("Bearer "+token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sub)

	_, err = ParseToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken("", testSecret)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestExpiredToken(t *testing.T) {
	token, _, err := GenerateToken("u-1", testSecret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateTokenRequiresInputs(t *testing.T) {
	_, _, err := GenerateToken("", testSecret, time.Hour)
	assert.Error(t, err)
	_, _, err = GenerateToken("u", " ", time.Hour)
	assert.Error(t, err)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Use(JWTMiddleware(testSecret, nil))
	e.GET("/whoami", func(c echo.Context) error {
		id, err := UserIDFromContext(c)
		if err != nil {
			return c.String(http.StatusOK, "anonymous")
		}
		return c.String(http.StatusOK, id)
	})
	return e
}

func TestJWTMiddleware(t *testing.T) {
	e := newTestEcho()
	token, _, err := GenerateToken("u-7", testSecret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "anonymous", wantStatus: http.StatusOK, wantBody: "anonymous"},
		{name: "valid", header: "Bearer " + token, wantStatus: http.StatusOK, wantBody: "u-7"},
		{name: "invalid", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}
