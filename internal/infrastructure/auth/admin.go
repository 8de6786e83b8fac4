package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

// AdminAuthenticator authenticates the single operator account configured
// under [admin] and issues its tokens.
type AdminAuthenticator struct {
	username     string
	passwordHash []byte
	tokens       *JWTService
	blacklist    TokenBlacklist
	logger       *zap.Logger
	now          func() time.Time
}

// NewAdminAuthenticator creates an authenticator. A nil blacklist disables logout.
func NewAdminAuthenticator(cfg config.AdminConfig, tokens *JWTService, blacklist TokenBlacklist, logger *zap.Logger) *AdminAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminAuthenticator{
		username:     cfg.Username,
		passwordHash: []byte(cfg.PasswordHash),
		tokens:       tokens,
		blacklist:    blacklist,
		logger:       logger.Named("auth"),
		now:          time.Now,
	}
}

// Login checks the credentials and returns a fresh token
func (a *AdminAuthenticator) Login(_ context.Context, username, password string) (*Token, error) {
	if a.username == "" || len(a.passwordHash) == 0 {
		return nil, ErrAdminNotConfigured
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		a.logger.Warn("Admin login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	return a.tokens.GenerateToken(a.username)
}

// Verify validates a bearer token and checks it has not been revoked
func (a *AdminAuthenticator) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := a.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, ErrInvalidClaims
	}
	if a.blacklist == nil {
		return claims, nil
	}
	revoked, err := a.blacklist.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		// fail closed on the admin surface
		return nil, fmt.Errorf("check token revocation: %w", err)
	}
	if revoked {
		return nil, ErrTokenBlacklisted
	}
	return claims, nil
}

// Logout revokes the token for the rest of its lifetime
func (a *AdminAuthenticator) Logout(ctx context.Context, claims *Claims) error {
	if a.blacklist == nil || claims == nil {
		return nil
	}
	return a.blacklist.AddToBlacklist(ctx, claims.ID, claims.GetRemainingTTL(a.now()))
}

// HashPassword returns the bcrypt hash to put in admin.password_hash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
