package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/auth"
	"github.com/sakif/attendance-ledger/internal/model"
)

// AuthService turns a provider login into a ledger identity plus a token.
//
//	AuthHandler → AuthService → IdentityService.Provision → UserRepository
//	                          ↘ TokenService (JWT)
type AuthService struct {
	identity *IdentityService
	tokens   *auth.TokenService
	logger   *slog.Logger
}

func NewAuthService(identity *IdentityService, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		identity: identity,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginWithGitHub provisions (or finds) the active user for the GitHub
// account's email and issues a token for it.
//
// GitHub IDs are not stored: the ledger keys identities by email, so a user
// who changes the email on their GitHub account arrives as a new user.
func (s *AuthService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}

	name := strings.TrimSpace(gh.Name)
	if name == "" {
		name = gh.Login
	}
	u, err := s.identity.Provision(ctx, ExternalProfile{
		Name:    name,
		Email:   gh.Email,
		Picture: gh.AvatarURL,
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: provisioning %s: %w", gh.Login, err)
	}

	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", u.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", u.ID),
		slog.String("login", gh.Login),
	)
	return &AuthResult{User: u, Token: token}, nil
}

// ValidateToken returns the user ID a token was issued for. Any failure is
// reported as apperror.ErrUnauthorized.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", apperror.Unauthorized(err.Error())
	}
	return userID, nil
}
