package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/auth"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

// AdminAuthenticator issues and revokes operator tokens
type AdminAuthenticator interface {
	Login(ctx context.Context, username, password string) (*auth.Token, error)
	Logout(ctx context.Context, claims *auth.Claims) error
}

// AuthHandler handles admin authentication requests
type AuthHandler struct {
	BaseHandler
	authenticator AdminAuthenticator
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authenticator AdminAuthenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// Login exchanges the operator credentials for a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	token, err := h.authenticator.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, LoginResponse{Token: *token, User: req.Username})
}

// Logout revokes the presented token for the rest of its lifetime.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetJWTClaims(c)
	if claims == nil {
		h.ErrorWithCode(c, dto.ErrCodeUnauthorized, "Authentication required")
		return
	}

	if err := h.authenticator.Logout(c.Request.Context(), claims); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, LogoutResponse{Message: "Logged out"})
}
