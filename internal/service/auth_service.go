package service

import (
	"context"
	"crypto/subtle"

	"github.com/spec-kit/rumi-monitor/internal/auth"
	"github.com/spec-kit/rumi-monitor/internal/config"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/pkg/util"
)

// AuthService authenticates the operator of the control API.
type AuthService struct {
	username     string
	passwordHash string
	tokenMgr     *auth.TokenManager
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		username:     cfg.OperatorUsername,
		passwordHash: cfg.OperatorPasswordHash,
		tokenMgr:     tokens,
	}
}

// Login checks the operator credentials and issues a bearer token.
func (s *AuthService) Login(_ context.Context, username, password string) (string, domain.Token, error) {
	if s.passwordHash == "" {
		return "", domain.Token{}, util.NewForbidden("operator login is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return "", domain.Token{}, util.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(s.passwordHash, password); err != nil {
		return "", domain.Token{}, util.NewUnauthorized("invalid credentials")
	}
	return s.tokenMgr.GenerateToken(username, domain.SubjectTypeOperator)
}
