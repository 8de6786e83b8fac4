package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/auth"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService(expiration time.Duration) *auth.JWTService {
	return auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: expiration,
		Issuer:                "test-issuer",
	})
}

func newTestAuthenticator(tokens *auth.JWTService, blacklist auth.TokenBlacklist) *auth.AdminAuthenticator {
	return auth.NewAdminAuthenticator(config.AdminConfig{Username: "ops"}, tokens, blacklist, nil)
}

func newProtectedRouter(verifier TokenVerifier) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AdminAuth(verifier, nil))
	router.GET("/admin", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"admin": GetJWTUsername(c)})
	})
	return router
}

func serveWithToken(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuth_ValidToken(t *testing.T) {
	tokens := newTestJWTService(15 * time.Minute)
	token, err := tokens.GenerateToken("ops")
	require.NoError(t, err)

	rec := serveWithToken(newProtectedRouter(newTestAuthenticator(tokens, nil)), "Bearer "+token.AccessToken)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"admin":"ops"}`, rec.Body.String())
}

func TestAdminAuth_Rejections(t *testing.T) {
	tokens := newTestJWTService(15 * time.Minute)
	router := newProtectedRouter(newTestAuthenticator(tokens, nil))

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "ERR_UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", "ERR_UNAUTHORIZED"},
		{"empty token", "Bearer ", "ERR_UNAUTHORIZED"},
		{"garbage token", "Bearer not-a-jwt", "ERR_TOKEN_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithToken(router, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

func TestAdminAuth_ExpiredToken(t *testing.T) {
	tokens := newTestJWTService(-time.Minute)
	token, err := tokens.GenerateToken("ops")
	require.NoError(t, err)

	rec := serveWithToken(newProtectedRouter(newTestAuthenticator(tokens, nil)), "Bearer "+token.AccessToken)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_TOKEN_EXPIRED")
}

func TestAdminAuth_RevokedToken(t *testing.T) {
	tokens := newTestJWTService(15 * time.Minute)
	blacklist := auth.NewInMemoryTokenBlacklist()
	authenticator := newTestAuthenticator(tokens, blacklist)
	token, err := tokens.GenerateToken("ops")
	require.NoError(t, err)

	claims, err := authenticator.Verify(context.Background(), token.AccessToken)
	require.NoError(t, err)
	require.NoError(t, authenticator.Logout(context.Background(), claims))

	rec := serveWithToken(newProtectedRouter(authenticator), "Bearer "+token.AccessToken)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_TOKEN_REVOKED")
}

type failingVerifier struct{ err error }

func (f failingVerifier) Verify(context.Context, string) (*auth.Claims, error) {
	return nil, f.err
}

func TestAdminAuth_StoreUnavailable(t *testing.T) {
	router := newProtectedRouter(failingVerifier{err: errors.New("redis: connection refused")})

	rec := serveWithToken(router, "Bearer whatever")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_UNAVAILABLE")
}

func TestAdminAuth_WrongRole(t *testing.T) {
	router := newProtectedRouter(failingVerifier{err: auth.ErrInvalidClaims})

	rec := serveWithToken(router, "Bearer whatever")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJWTAuthMiddleware_SkipPathsAndOnError(t *testing.T) {
	var gotErr error
	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		Verifier:  failingVerifier{err: auth.ErrInvalidToken},
		SkipPaths: []string{"/open"},
		OnError: func(c *gin.Context, err error) {
			gotErr = err
			c.AbortWithStatus(http.StatusTeapot)
		},
	}))
	router.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/closed", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/closed", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, gotErr, auth.ErrInvalidToken)
}

func TestGetJWTClaims_NotFound(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTUsername(c))
}
